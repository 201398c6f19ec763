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

// PrefinalizeResult is the pure, read-only view Prefinalize computes
// over a proposed batch list (spec.md §4.D).
type PrefinalizeResult struct {
	NATToLock     *uint256.Int
	SharesToBurn  *uint256.Int
	batchRates    []*uint256.Int // per-batch rate, retained for Finalize's effective_cap decision
	totalSTK      *uint256.Int   // total STK across (last_finalized_request_id, B[k]], for the amount_sent bound
}

// Finalizer is the on-chain validator that accepts a batch list,
// recomputes locked NAT, and advances the finalized frontier
// (component D).
type Finalizer struct {
	store       Store
	checkpoints *Checkpoints
	metrics     *Metrics
	log         *logrus.Entry
}

// NewFinalizer wires a Finalizer on top of the given Store and Checkpoints.
func NewFinalizer(store Store, checkpoints *Checkpoints, metrics *Metrics, log *logrus.Entry) *Finalizer {
	return &Finalizer{store: store, checkpoints: checkpoints, metrics: metrics, log: log.WithField("component", "finalizer")}
}

// Prefinalize walks the batch list and, for each batch, computes
// (batch_rate, stk, shares) from the partial-sum diff, asserting the
// alternation property and accumulating nat_to_lock and
// shares_to_burn (spec.md §4.D "Pre-flight (pure)").
func (f *Finalizer) Prefinalize(batches []RequestID, maxShareRate *uint256.Int) (PrefinalizeResult, error) {
	if len(batches) == 0 {
		return PrefinalizeResult{}, ErrEmptyBatches
	}

	if maxShareRate.IsZero() {
		return PrefinalizeResult{}, ErrZeroShareRate
	}

	for i := 1; i < len(batches); i++ {
		if batches[i] <= batches[i-1] {
			return PrefinalizeResult{}, fmt.Errorf("%w: batches[%d]=%d <= batches[%d]=%d", ErrReversedRange, i, batches[i], i-1, batches[i-1])
		}
	}

	lastFinalized, err := f.store.LastFinalizedRequestID()
	if err != nil {
		return PrefinalizeResult{}, fmt.Errorf("failed to read last_finalized_request_id: %w", err)
	}

	natToLock := new(uint256.Int)
	sharesToBurn := new(uint256.Int)
	totalSTK := new(uint256.Int)
	rates := make([]*uint256.Int, len(batches))

	prevBoundary := lastFinalized

	var prevRate *uint256.Int

	for i, end := range batches {
		start := prevBoundary

		startReq, err := f.store.RequestAt(start)
		if err != nil {
			return PrefinalizeResult{}, fmt.Errorf("failed to read request %d: %w", start, err)
		}

		endReq, err := f.store.RequestAt(end)
		if err != nil {
			return PrefinalizeResult{}, fmt.Errorf("failed to read request %d: %w", end, err)
		}

		deltaSTK, deltaShares := RangeSums(startReq, endReq)

		rate, err := BatchRate(deltaSTK, deltaShares)
		if err != nil {
			return PrefinalizeResult{}, err
		}

		rates[i] = rate

		discounted := rate.Cmp(maxShareRate) > 0

		if i >= 1 {
			prevDiscounted := prevRate.Cmp(maxShareRate) > 0
			if prevDiscounted == discounted {
				return PrefinalizeResult{}, fmt.Errorf("%w: batch %d and %d both %s max_share_rate", ErrAlternationViolated, i-1, i, sideLabel(discounted))
			}
		}

		stk := deltaSTK
		if discounted {
			stk, err = MulDivRoundDown(deltaShares, maxShareRate)
			if err != nil {
				return PrefinalizeResult{}, err
			}
		}

		natToLock = new(uint256.Int).Add(natToLock, stk)
		sharesToBurn = new(uint256.Int).Add(sharesToBurn, deltaShares)
		totalSTK = new(uint256.Int).Add(totalSTK, deltaSTK)

		prevBoundary = end
		prevRate = rate
	}

	return PrefinalizeResult{
		NATToLock:    natToLock,
		SharesToBurn: sharesToBurn,
		batchRates:   rates,
		totalSTK:     totalSTK,
	}, nil
}

func sideLabel(discounted bool) string {
	if discounted {
		return "exceed"
	}

	return "stay under"
}

// BatchFinalizedSignal is the WithdrawalBatchFinalized signal emitted
// by Finalize (spec.md §6).
type BatchFinalizedSignal struct {
	FromID       RequestID
	ToID         RequestID
	NATLocked    *uint256.Int
	SharesBurned *uint256.Int
	Timestamp    uint64
}

// Finalize validates batches against the required preconditions,
// computes the effective cap, advances the finalized frontier, locks
// NAT, and writes at most one new checkpoint (spec.md §4.D "Finalize
// proper").
func (f *Finalizer) Finalize(batches []RequestID, amountSent *uint256.Int, maxShareRate *uint256.Int, now uint64) (BatchFinalizedSignal, error) {
	pre, err := f.Prefinalize(batches, maxShareRate)
	if err != nil {
		return BatchFinalizedSignal{}, err
	}

	lastFinalized, err := f.store.LastFinalizedRequestID()
	if err != nil {
		return BatchFinalizedSignal{}, fmt.Errorf("failed to read last_finalized_request_id: %w", err)
	}

	lastRequest, err := f.store.LastRequestID()
	if err != nil {
		return BatchFinalizedSignal{}, fmt.Errorf("failed to read last_request_id: %w", err)
	}

	firstBatchEnd := batches[0]
	end := batches[len(batches)-1]

	if firstBatchEnd <= lastFinalized {
		return BatchFinalizedSignal{}, fmt.Errorf("%w: batch start %d <= last_finalized_request_id %d", ErrBatchOutOfSequence, firstBatchEnd, lastFinalized)
	}

	if end > lastRequest {
		return BatchFinalizedSignal{}, fmt.Errorf("%w: batch end %d > last_request_id %d", ErrRequestNotInBook, end, lastRequest)
	}

	if amountSent.Cmp(pre.totalSTK) > 0 {
		return BatchFinalizedSignal{}, fmt.Errorf("%w: amount_sent=%s total_stk=%s", ErrAmountExceedsRange, amountSent, pre.totalSTK)
	}

	lastCheckpoint, err := f.checkpoints.Last()
	if err != nil {
		return BatchFinalizedSignal{}, err
	}

	nominalCase := len(batches) == 1 && amountSent.Eq(pre.totalSTK)

	effectiveCap := new(uint256.Int).Set(maxShareRate)
	if nominalCase {
		effectiveCap = new(uint256.Int).Set(UNLIMITED)
	}

	if !effectiveCap.Eq(lastCheckpoint.MaxShareRate) {
		if _, err := f.checkpoints.AppendIfChanged(lastFinalized+1, effectiveCap); err != nil {
			return BatchFinalizedSignal{}, err
		}
	}

	if err := f.store.SetLastFinalizedRequestID(end); err != nil {
		return BatchFinalizedSignal{}, fmt.Errorf("failed to advance last_finalized_request_id: %w", err)
	}

	lockedNAT, err := f.store.LockedNAT()
	if err != nil {
		return BatchFinalizedSignal{}, fmt.Errorf("failed to read locked_nat: %w", err)
	}

	newLockedNAT := new(uint256.Int).Add(lockedNAT, amountSent)
	if err := f.store.SetLockedNAT(newLockedNAT); err != nil {
		return BatchFinalizedSignal{}, fmt.Errorf("failed to advance locked_nat: %w", err)
	}

	if f.metrics != nil {
		f.metrics.ObserveFinalize(end-lastFinalized, amountSent, pre.SharesToBurn)
	}

	f.log.WithFields(logrus.Fields{
		"from_id":       uint64(lastFinalized + 1),
		"to_id":         uint64(end),
		"nat_locked":    amountSent.String(),
		"shares_burned": pre.SharesToBurn.String(),
	}).Info("batch finalized")

	return BatchFinalizedSignal{
		FromID:       lastFinalized + 1,
		ToID:         end,
		NATLocked:    amountSent,
		SharesBurned: pre.SharesToBurn,
		Timestamp:    now,
	}, nil
}
