// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	wqconfig "github.com/liquidqueue/withdrawalqueue/config"
	"github.com/liquidqueue/withdrawalqueue/storage"
	"github.com/liquidqueue/withdrawalqueue/withdrawal"
)

// statusView mirrors spec.md §6's `status(request_id)` result shape:
// STK, shares, owner, timestamp, finalized?, claimed?.
type statusView struct {
	RequestID        uint64 `json:"request_id"`
	Owner            string `json:"owner"`
	CreatedAt        uint64 `json:"created_at"`
	Finalized        bool   `json:"finalized"`
	Claimed          bool   `json:"claimed"`
	CumulativeSTK    string `json:"cumulative_stk"`
	CumulativeShares string `json:"cumulative_shares"`
}

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <request-id>",
		Short: "Print the status of a withdrawal request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			cfg, err := wqconfig.Load(configPath)
			if err != nil {
				return err
			}

			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid request id %q: %w", args[0], err)
			}

			store, err := storage.OpenBoltStore(cfg.Store.DataPath)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer store.Close()

			view, err := status(store, withdrawal.RequestID(id))
			if err != nil {
				return err
			}

			if asJSON {
				encoded, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(view, "", "  ")
				if err != nil {
					return err
				}

				fmt.Println(string(encoded))

				return nil
			}

			fmt.Printf("request %d: owner=%s created_at=%d finalized=%t claimed=%t stk=%s shares=%s\n",
				view.RequestID, view.Owner, view.CreatedAt, view.Finalized, view.Claimed,
				view.CumulativeSTK, view.CumulativeShares)

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")

	return cmd
}

func status(store withdrawal.Store, id withdrawal.RequestID) (statusView, error) {
	req, err := store.RequestAt(id)
	if err != nil {
		return statusView{}, err
	}

	lastFinalized, err := store.LastFinalizedRequestID()
	if err != nil {
		return statusView{}, err
	}

	return statusView{
		RequestID:        uint64(id),
		Owner:            string(req.Owner),
		CreatedAt:        req.CreatedAt,
		Finalized:        id <= lastFinalized,
		Claimed:          req.Claimed,
		CumulativeSTK:    req.CumulativeSTK.String(),
		CumulativeShares: req.CumulativeShares.String(),
	}, nil
}
