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

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/liquidqueue/withdrawalqueue/storage"
	"github.com/liquidqueue/withdrawalqueue/withdrawal"
)

// newSimulateCmd drives a short, in-memory enqueue/calculate/finalize/
// claim cycle, useful for sanity-checking a deployment's parameters
// (share rate cap, NAT budget) without touching a real store.
func newSimulateCmd() *cobra.Command {
	var (
		requests int
		maxRate  string
		budget   string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an in-memory enqueue/finalize/claim cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := uint256.FromDecimal(maxRate)
			if err != nil {
				return fmt.Errorf("invalid max-rate: %w", err)
			}

			natBudget, err := uint256.FromDecimal(budget)
			if err != nil {
				return fmt.Errorf("invalid budget: %w", err)
			}

			return runSimulation(requests, rate, natBudget)
		},
	}

	cmd.Flags().IntVar(&requests, "requests", 10, "number of requests to enqueue")
	cmd.Flags().StringVar(&maxRate, "max-rate", withdrawal.E27.String(), "max share rate (E27-scaled)")
	cmd.Flags().StringVar(&budget, "budget", "1000000000000000000000", "NAT budget to finalize with")

	return cmd
}

func runSimulation(n int, maxRate, budget *uint256.Int) error {
	log := logrus.NewEntry(logrus.New())

	store := storage.NewMemoryStore()
	queue := withdrawal.NewQueue(store, log)
	checkpoints := withdrawal.NewCheckpoints(store, log)
	calculator := withdrawal.NewBatchCalculator(store, log)
	finalizer := withdrawal.NewFinalizer(store, checkpoints, nil, log)
	claims := withdrawal.NewClaimResolver(store, checkpoints, nil, log)

	one := uint256.NewInt(1_000000000_000000000)

	var now uint64 = 1

	for i := 0; i < n; i++ {
		id, err := queue.Enqueue(one, one, withdrawal.Owner(fmt.Sprintf("owner-%d", i)), now, now)
		if err != nil {
			return err
		}

		fmt.Printf("enqueued request %d\n", id)
		now++
	}

	state := withdrawal.CalcState{NATBudget: new(uint256.Int).Set(budget)}

	state, err := calculator.Calculate(maxRate, now, state)
	if err != nil {
		return fmt.Errorf("calculate: %w", err)
	}

	fmt.Printf("batches: %v finished=%t\n", state.Batches, state.Finished)

	if len(state.Batches) == 0 {
		return nil
	}

	pre, err := finalizer.Prefinalize(state.Batches, maxRate)
	if err != nil {
		return fmt.Errorf("prefinalize: %w", err)
	}

	signal, err := finalizer.Finalize(state.Batches, pre.NATToLock, maxRate, now)
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}

	fmt.Printf("finalized [%d, %d] nat_locked=%s shares_burned=%s\n",
		signal.FromID, signal.ToID, signal.NATLocked.String(), signal.SharesBurned.String())

	for id := uint64(1); id <= uint64(state.Batches[len(state.Batches)-1]); id++ {
		hint, err := claims.FindCheckpointHint(withdrawal.RequestID(id))
		if err != nil {
			return fmt.Errorf("find_checkpoint_hint(%d): %w", id, err)
		}

		req, err := store.RequestAt(withdrawal.RequestID(id))
		if err != nil {
			return err
		}

		claimed, err := claims.Claim(withdrawal.RequestID(id), req.Owner, req.Owner, hint, now)
		if err != nil {
			return fmt.Errorf("claim(%d): %w", id, err)
		}

		fmt.Printf("claimed request %d: nat_paid=%s\n", claimed.RequestID, claimed.NATPaid.String())
	}

	return nil
}
