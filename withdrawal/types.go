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

// Package withdrawal implements the withdrawal-queue core: an
// append-only request book, its checkpoint discount history, the
// two-phase batch-calculate/finalize algorithm, and claim-time
// discount resolution.
package withdrawal

import "github.com/holiman/uint256"

// RequestID identifies a withdrawal request. Ids are dense, starting
// at 1; id 0 is the sentinel row (invariant 1).
type RequestID uint64

// CheckpointIndex identifies a checkpoint. Indices are dense, starting
// at 1; index 0 is the sentinel row.
type CheckpointIndex uint64

// Owner is the principal authorised to claim or transfer a request.
type Owner string

// E27 is the fixed-point scale applied to share rates (10^27).
var E27 = computeE27()

// UNLIMITED is the sentinel max_share_rate meaning "no discount applied" (2^256 - 1).
var UNLIMITED = new(uint256.Int).Sub(new(uint256.Int), uint256.NewInt(1))

const (
	// MaxBatches bounds the number of batches BatchCalculator.Calculate
	// produces; Prefinalize and Finalize do not check the batch count.
	MaxBatches = 36

	// MaxRequestsPerCall bounds how many requests one calculate_finalization_batches
	// invocation may scan.
	MaxRequestsPerCall = 1000

	// NotFound is returned by FindCheckpointHint when no real checkpoint has
	// been appended yet; index 0, the sentinel checkpoint, still governs in
	// that case, so callers can pass it straight through to Claim.
	NotFound CheckpointIndex = 0
)

func computeE27() *uint256.Int {
	e27 := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := 0; i < 27; i++ {
		e27 = new(uint256.Int).Mul(e27, ten)
	}
	return e27
}

// Request is one withdrawal request, carrying the running partial
// sums of STK and shares for requests 1..id (invariant 2).
type Request struct {
	// CumulativeSTK is the running sum of STK amounts of requests 1..id.
	CumulativeSTK *uint256.Int
	// CumulativeShares is the running sum of STK-shares of requests 1..id.
	CumulativeShares *uint256.Int
	// Owner is the principal authorised to claim or transfer this request.
	Owner Owner
	// CreatedAt is the wall-clock timestamp captured at enqueue.
	CreatedAt uint64
	// ReportAt is the timestamp of the most recent oracle report at enqueue,
	// used to group requests that share the same oracle view (§4.C).
	ReportAt uint64
	// Claimed is a one-shot flag: false at enqueue, true after claim.
	Claimed bool
}

// sentinelRequest returns the synthetic zero-index request so that
// request[id-1] is always in range (spec.md §3, §9 Open Questions).
func sentinelRequest() Request {
	return Request{
		CumulativeSTK:    new(uint256.Int),
		CumulativeShares: new(uint256.Int),
		Claimed:          true,
	}
}

// Checkpoint is a discount record: the share-rate cap applied to
// requests finalized from FromRequestID up to (but not including) the
// next checkpoint's FromRequestID.
type Checkpoint struct {
	// FromRequestID is the smallest request id covered by this checkpoint.
	FromRequestID RequestID
	// MaxShareRate is the cap applied to requests finalized under this
	// checkpoint; UNLIMITED encodes "no discount".
	MaxShareRate *uint256.Int
}

// sentinelCheckpoint returns the synthetic zero-index checkpoint
// (spec.md §3).
func sentinelCheckpoint() Checkpoint {
	return Checkpoint{
		FromRequestID: 0,
		MaxShareRate:  new(uint256.Int).Set(UNLIMITED),
	}
}

// CalcState is the caller-owned cursor threaded across invocations of
// BatchCalculator.Calculate (component C). finished is true once
// the unfinalized prefix has been fully scanned or the per-call quota
// is spent with nothing left to do.
type CalcState struct {
	// NATBudget is the remaining NAT budget available to lock, decremented
	// as batches are produced.
	NATBudget *uint256.Int
	// Finished reports whether the unfinalized prefix has been fully scanned.
	Finished bool
	// Batches holds the ending request id of each batch produced so far.
	Batches []RequestID
}

// RatePayout is the (batch share rate, STK-to-lock, shares) triple
// derived from a partial-sum diff, the fundamental primitive shared by
// components C, D and E.
type RatePayout struct {
	Rate      *uint256.Int
	STKToLock *uint256.Int
	Shares    *uint256.Int
}
