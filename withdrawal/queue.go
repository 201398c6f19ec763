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

package withdrawal

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// Queue is the append-only partial-sum request book (component A).
// It never fails except on the integer overflow the 256-bit widening
// and the bounded economic universe make impossible in practice;
// Enqueue asserts this rather than silently wrapping.
type Queue struct {
	store Store
	log   *logrus.Entry
}

// NewQueue wires a Queue on top of the given Store.
func NewQueue(store Store, log *logrus.Entry) *Queue {
	return &Queue{store: store, log: log.WithField("component", "queue")}
}

// Enqueue appends request (stk, shares, owner) to the book and returns
// its newly assigned id. Inputs are not validated here (spec.md §4.A);
// the caller (the STK token boundary) enforces non-zero amounts.
func (q *Queue) Enqueue(stk, shares *uint256.Int, owner Owner, now, reportAt uint64) (RequestID, error) {
	lastID, err := q.store.LastRequestID()
	if err != nil {
		return 0, fmt.Errorf("failed to read last_request_id: %w", err)
	}

	prev, err := q.store.RequestAt(lastID)
	if err != nil {
		return 0, fmt.Errorf("failed to read request %d: %w", lastID, err)
	}

	newCumulativeSTK, overflow1 := new(uint256.Int).AddOverflow(prev.CumulativeSTK, stk)
	if overflow1 {
		return 0, fmt.Errorf("cumulative_stk overflow at request %d", lastID+1)
	}

	newCumulativeShares, overflow2 := new(uint256.Int).AddOverflow(prev.CumulativeShares, shares)
	if overflow2 {
		return 0, fmt.Errorf("cumulative_shares overflow at request %d", lastID+1)
	}

	req := Request{
		CumulativeSTK:    newCumulativeSTK,
		CumulativeShares: newCumulativeShares,
		Owner:            owner,
		CreatedAt:        now,
		ReportAt:         reportAt,
		Claimed:          false,
	}

	id := lastID + 1

	if err := q.store.PutRequest(id, req); err != nil {
		return 0, fmt.Errorf("failed to persist request %d: %w", id, err)
	}

	if err := q.store.SetLastRequestID(id); err != nil {
		return 0, fmt.Errorf("failed to advance last_request_id: %w", err)
	}

	if err := q.store.AddOwnerRequest(owner, id); err != nil {
		return 0, fmt.Errorf("failed to index owner %s for request %d: %w", owner, id, err)
	}

	q.log.WithFields(logrus.Fields{
		"request_id": uint64(id),
		"owner":      string(owner),
	}).Debug("request enqueued")

	return id, nil
}

// RangeSums summarises range (a, b] in constant time using the
// partial sums: Δstk = request[b].cumulative_stk - request[a].cumulative_stk,
// likewise for shares (spec.md §4.A).
func RangeSums(a, b Request) (deltaSTK, deltaShares *uint256.Int) {
	deltaSTK = new(uint256.Int).Sub(b.CumulativeSTK, a.CumulativeSTK)
	deltaShares = new(uint256.Int).Sub(b.CumulativeShares, a.CumulativeShares)
	return deltaSTK, deltaShares
}

// BatchRate computes the batch share rate r = Δstk * 10^27 / Δshares
// for the pair (Δstk, Δshares). Returns zero if Δshares is zero (an
// empty range); callers only invoke this over non-empty ranges in
// practice.
//
// The fields are full-width uint256 values, so deltaSTK * E27 can exceed
// 256 bits (spec.md §9, "Integer semantics"); the
// multiply-then-divide goes through uint256's own 512-bit-intermediate
// primitive rather than uint256.Int.Mul, which would wrap silently.
func BatchRate(deltaSTK, deltaShares *uint256.Int) (*uint256.Int, error) {
	if deltaShares.IsZero() {
		return new(uint256.Int), nil
	}

	return mulDiv(deltaSTK, E27, deltaShares)
}

// MulDivRoundDown computes shares * maxShareRate / E27 (rounding
// toward zero per spec.md §9), widened the same way BatchRate is.
// This is the discounted-payout formula used by components C, D and E.
func MulDivRoundDown(shares, maxShareRate *uint256.Int) (*uint256.Int, error) {
	return mulDiv(shares, maxShareRate, E27)
}

// mulDiv computes floor(x*y/d) using uint256's widened MulDivOverflow,
// which carries the x*y product in full 512-bit precision before
// dividing, so it never truncates the way Mul followed by Div would.
func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	result, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, fmt.Errorf("mul-div result overflows 256 bits for x=%s y=%s d=%s", x, y, d)
	}

	return result, nil
}
