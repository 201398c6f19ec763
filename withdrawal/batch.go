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

// BatchCalculator partitions the unfinalized prefix into homogeneous
// batches under a NAT budget (component C). It is a pure, read-only,
// resumable iterator: CalcState is caller-owned and threaded across
// invocations until Finished is true.
type BatchCalculator struct {
	store Store
	log   *logrus.Entry
}

// NewBatchCalculator wires a BatchCalculator on top of the given Store.
func NewBatchCalculator(store Store, log *logrus.Entry) *BatchCalculator {
	return &BatchCalculator{store: store, log: log.WithField("component", "batch_calculator")}
}

// Calculate runs one invocation of the batch calculator starting just
// past the last id already handled in state, and returns the updated
// state (spec.md §4.C). It never mutates global state.
func (b *BatchCalculator) Calculate(maxShareRate *uint256.Int, maxTimestamp uint64, state CalcState) (CalcState, error) {
	if state.Finished {
		return state, ErrCalcFinished
	}

	if maxShareRate.IsZero() {
		return state, ErrZeroShareRate
	}

	if state.NATBudget == nil || state.NATBudget.IsZero() {
		return state, ErrCalcNoBudget
	}

	lastFinalized, err := b.store.LastFinalizedRequestID()
	if err != nil {
		return state, fmt.Errorf("failed to read last_finalized_request_id: %w", err)
	}

	lastRequest, err := b.store.LastRequestID()
	if err != nil {
		return state, fmt.Errorf("failed to read last_request_id: %w", err)
	}

	// Resume from the last id already placed into a batch, or from the
	// finalized frontier if this is the first invocation against state.
	startID := lastFinalized
	if len(state.Batches) > 0 {
		startID = state.Batches[len(state.Batches)-1]
	}

	budget := new(uint256.Int).Set(state.NATBudget)
	batches := append([]RequestID{}, state.Batches...)

	var (
		prevReq       Request
		prevRate      *uint256.Int
		haveOpenBatch bool
	)

	if len(batches) > 0 {
		lastBatchedID := batches[len(batches)-1]

		prevReq, err = b.store.RequestAt(lastBatchedID)
		if err != nil {
			return state, fmt.Errorf("failed to read request %d: %w", lastBatchedID, err)
		}

		// On a resumed invocation prevRate (the step rate of the last
		// request already placed into a batch) is not carried in CalcState,
		// so re-derive it from the store rather than leave it nil: the loop
		// below calls shouldExtendBatch(..., prevRate, ...) on its very
		// first iteration whenever the new request's report_at differs.
		priorReq, err := b.store.RequestAt(lastBatchedID - 1)
		if err != nil {
			return state, fmt.Errorf("failed to read request %d: %w", lastBatchedID-1, err)
		}

		priorDeltaSTK, priorDeltaShares := RangeSums(priorReq, prevReq)

		prevRate, err = BatchRate(priorDeltaSTK, priorDeltaShares)
		if err != nil {
			return state, err
		}
	} else {
		prevReq, err = b.store.RequestAt(lastFinalized)
		if err != nil {
			return state, fmt.Errorf("failed to read request %d: %w", lastFinalized, err)
		}
	}

	haveOpenBatch = len(batches) > 0

	processed := 0

	finished := false

	id := startID + 1

	for ; id <= lastRequest; id++ {
		if processed >= MaxRequestsPerCall {
			break
		}

		this, err := b.store.RequestAt(id)
		if err != nil {
			return state, fmt.Errorf("failed to read request %d: %w", id, err)
		}

		if this.CreatedAt > maxTimestamp {
			// Requests newer than the oracle view are excluded; this is not
			// "finished" in the spec.md §4.C sense (reaching last_request_id or
			// quota-exhaustion-into-an-empty-tail) — more requests may still
			// exist beyond maxTimestamp for a later invocation to pick up once
			// the oracle view advances.
			break
		}

		deltaSTK, deltaShares := RangeSums(prevReq, this)

		requestRate, err := BatchRate(deltaSTK, deltaShares)
		if err != nil {
			return state, err
		}

		stkToLock := new(uint256.Int).Set(deltaSTK)

		discounted := requestRate.Cmp(maxShareRate) > 0
		if discounted {
			stkToLock, err = MulDivRoundDown(deltaShares, maxShareRate)
			if err != nil {
				return state, err
			}
		}

		if stkToLock.Cmp(budget) > 0 {
			// Budget break: stop without consuming this request.
			break
		}

		sameBatch := haveOpenBatch && shouldExtendBatch(prevReq, this, prevRate, requestRate, maxShareRate)

		if !sameBatch && haveOpenBatch && len(batches) >= MaxBatches {
			// Opening a new batch would exceed the MAX_BATCHES budget; stop
			// with no progress on this request so the caller finalizes first.
			break
		}

		budget = new(uint256.Int).Sub(budget, stkToLock)
		processed++

		if sameBatch {
			batches[len(batches)-1] = id
		} else {
			batches = append(batches, id)
			haveOpenBatch = true
		}

		prevReq = this
		prevRate = requestRate

		if id == lastRequest {
			finished = true
		}
	}

	if len(batches) > MaxBatches {
		batches = batches[:MaxBatches]
	}

	b.log.WithFields(logrus.Fields{
		"batches":   len(batches),
		"finished":  finished,
		"processed": processed,
	}).Debug("calculate_finalization_batches invocation complete")

	return CalcState{
		NATBudget: budget,
		Finished:  finished,
		Batches:   batches,
	}, nil
}

// shouldExtendBatch implements the group-or-split rule of spec.md
// §4.C step 5: extend the current batch if the two requests share an
// oracle view (tolerating 1-2 wei rate jitter), or if both ratify the
// same side of the max_share_rate boundary.
func shouldExtendBatch(prev, this Request, prevRate, requestRate, maxShareRate *uint256.Int) bool {
	if prev.ReportAt == this.ReportAt {
		return true
	}

	prevNominal := prevRate.Cmp(maxShareRate) <= 0
	thisNominal := requestRate.Cmp(maxShareRate) <= 0

	return prevNominal == thisNominal
}
