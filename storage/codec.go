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

package storage

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/holiman/uint256"

	"github.com/liquidqueue/withdrawalqueue/withdrawal"
)

func parseUint256(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, err
	}

	return v, nil
}

var codecAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// wireRequest/wireCheckpoint mirror withdrawal.Request/Checkpoint with
// *uint256.Int fields swapped for their text encoding: jsoniter (like
// encoding/json) round-trips uint256.Int via its MarshalText/
// UnmarshalText methods already, but a dedicated wire type keeps the
// on-disk format decoupled from field additions to the domain struct.
type wireRequest struct {
	CumulativeSTK    string `json:"cumulative_stk"`
	CumulativeShares string `json:"cumulative_shares"`
	Owner            string `json:"owner"`
	CreatedAt        uint64 `json:"created_at"`
	ReportAt         uint64 `json:"report_at"`
	Claimed          bool   `json:"claimed"`
}

func encodeRequest(req withdrawal.Request) ([]byte, error) {
	w := wireRequest{
		CumulativeSTK:    req.CumulativeSTK.Dec(),
		CumulativeShares: req.CumulativeShares.Dec(),
		Owner:            string(req.Owner),
		CreatedAt:        req.CreatedAt,
		ReportAt:         req.ReportAt,
		Claimed:          req.Claimed,
	}

	encoded, err := codecAPI.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	return encoded, nil
}

func decodeRequest(raw []byte) (withdrawal.Request, error) {
	var w wireRequest
	if err := codecAPI.Unmarshal(raw, &w); err != nil {
		return withdrawal.Request{}, fmt.Errorf("failed to decode request: %w", err)
	}

	stk, err := parseUint256(w.CumulativeSTK)
	if err != nil {
		return withdrawal.Request{}, fmt.Errorf("failed to parse cumulative_stk: %w", err)
	}

	shares, err := parseUint256(w.CumulativeShares)
	if err != nil {
		return withdrawal.Request{}, fmt.Errorf("failed to parse cumulative_shares: %w", err)
	}

	return withdrawal.Request{
		CumulativeSTK:    stk,
		CumulativeShares: shares,
		Owner:            withdrawal.Owner(w.Owner),
		CreatedAt:        w.CreatedAt,
		ReportAt:         w.ReportAt,
		Claimed:          w.Claimed,
	}, nil
}

type wireCheckpoint struct {
	FromRequestID uint64 `json:"from_request_id"`
	MaxShareRate  string `json:"max_share_rate"`
}

func encodeCheckpoint(cp withdrawal.Checkpoint) ([]byte, error) {
	w := wireCheckpoint{
		FromRequestID: uint64(cp.FromRequestID),
		MaxShareRate:  cp.MaxShareRate.Dec(),
	}

	encoded, err := codecAPI.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	return encoded, nil
}

func decodeCheckpoint(raw []byte) (withdrawal.Checkpoint, error) {
	var w wireCheckpoint
	if err := codecAPI.Unmarshal(raw, &w); err != nil {
		return withdrawal.Checkpoint{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	rate, err := parseUint256(w.MaxShareRate)
	if err != nil {
		return withdrawal.Checkpoint{}, fmt.Errorf("failed to parse max_share_rate: %w", err)
	}

	return withdrawal.Checkpoint{
		FromRequestID: withdrawal.RequestID(w.FromRequestID),
		MaxShareRate:  rate,
	}, nil
}
