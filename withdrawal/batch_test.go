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

package withdrawal_test

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/liquidqueue/withdrawalqueue/storage"
	"github.com/liquidqueue/withdrawalqueue/withdrawal"
)

func enqueueN(t *testing.T, q *withdrawal.Queue, n int, stk, shares uint64, reportAt uint64) {
	t.Helper()

	for i := 0; i < n; i++ {
		_, err := q.Enqueue(uint256.NewInt(stk), uint256.NewInt(shares), withdrawal.Owner("owner"), uint64(i+1), reportAt)
		require.NoError(t, err)
	}
}

func TestBatchCalculatorGroupsRequestsSharingOracleView(t *testing.T) {
	store := storage.NewMemoryStore()
	q := withdrawal.NewQueue(store, nullLogger())
	b := withdrawal.NewBatchCalculator(store, nullLogger())

	enqueueN(t, q, 5, 100, 10, 1) // all share report_at=1

	state := withdrawal.CalcState{NATBudget: uint256.NewInt(1_000_000)}

	state, err := b.Calculate(withdrawal.UNLIMITED, 100, state)
	require.NoError(t, err)
	require.True(t, state.Finished)
	require.Len(t, state.Batches, 1, "requests sharing one oracle view collapse into a single batch")
	require.Equal(t, withdrawal.RequestID(5), state.Batches[0])
}

func TestBatchCalculatorSplitsOnDifferentOracleViewsWhenOnOppositeSides(t *testing.T) {
	store := storage.NewMemoryStore()
	q := withdrawal.NewQueue(store, nullLogger())
	b := withdrawal.NewBatchCalculator(store, nullLogger())

	// First request: rate = 100*E27/10 = 10*E27, far above a tiny cap -> discounted.
	_, err := q.Enqueue(uint256.NewInt(100), uint256.NewInt(10), withdrawal.Owner("a"), 1, 1)
	require.NoError(t, err)
	// Second request, different report_at, rate = 1*E27/100 -> far below cap -> nominal.
	_, err = q.Enqueue(uint256.NewInt(1), uint256.NewInt(100), withdrawal.Owner("b"), 2, 2)
	require.NoError(t, err)

	rateCap := new(uint256.Int).Div(withdrawal.E27, uint256.NewInt(2))

	state := withdrawal.CalcState{NATBudget: uint256.NewInt(1_000_000)}
	state, err = b.Calculate(rateCap, 100, state)
	require.NoError(t, err)
	require.True(t, state.Finished)
	require.Len(t, state.Batches, 2, "requests on opposite sides of the cap must split into separate batches")
}

func TestBatchCalculatorStopsAtBudgetBoundaryWithNoProgress(t *testing.T) {
	store := storage.NewMemoryStore()
	q := withdrawal.NewQueue(store, nullLogger())
	b := withdrawal.NewBatchCalculator(store, nullLogger())

	enqueueN(t, q, 3, 100, 10, 1)

	// Budget covers exactly 2 requests worth of STK (200), not the third.
	state := withdrawal.CalcState{NATBudget: uint256.NewInt(200)}

	state, err := b.Calculate(withdrawal.UNLIMITED, 100, state)
	require.NoError(t, err)
	require.False(t, state.Finished, "budget exhaustion with more requests pending is not finished")
	require.Equal(t, withdrawal.RequestID(2), state.Batches[0], "same report_at coalesces requests 1-2 into one batch, the third stops on budget")
	require.Equal(t, "0", state.NATBudget.String())
}

func TestBatchCalculatorExcludesRequestsNewerThanMaxTimestamp(t *testing.T) {
	store := storage.NewMemoryStore()
	q := withdrawal.NewQueue(store, nullLogger())
	b := withdrawal.NewBatchCalculator(store, nullLogger())

	_, err := q.Enqueue(uint256.NewInt(100), uint256.NewInt(10), withdrawal.Owner("a"), 5, 5)
	require.NoError(t, err)
	_, err = q.Enqueue(uint256.NewInt(100), uint256.NewInt(10), withdrawal.Owner("b"), 50, 50)
	require.NoError(t, err)

	state := withdrawal.CalcState{NATBudget: uint256.NewInt(1_000_000)}

	state, err = b.Calculate(withdrawal.UNLIMITED, 10, state)
	require.NoError(t, err)
	require.False(t, state.Finished, "a timestamp cutoff is not full-prefix completion")
	require.Equal(t, withdrawal.RequestID(1), state.Batches[0])
}

func TestBatchCalculatorRejectsZeroBudget(t *testing.T) {
	store := storage.NewMemoryStore()
	b := withdrawal.NewBatchCalculator(store, nullLogger())

	_, err := b.Calculate(withdrawal.UNLIMITED, 100, withdrawal.CalcState{NATBudget: new(uint256.Int)})
	require.ErrorIs(t, err, withdrawal.ErrCalcNoBudget)
}

func TestBatchCalculatorRejectsCallOnFinishedState(t *testing.T) {
	store := storage.NewMemoryStore()
	b := withdrawal.NewBatchCalculator(store, nullLogger())

	_, err := b.Calculate(withdrawal.UNLIMITED, 100, withdrawal.CalcState{NATBudget: uint256.NewInt(1), Finished: true})
	require.ErrorIs(t, err, withdrawal.ErrCalcFinished)
}

func TestBatchCalculatorCapsAtMaxBatches(t *testing.T) {
	store := storage.NewMemoryStore()
	q := withdrawal.NewQueue(store, nullLogger())
	b := withdrawal.NewBatchCalculator(store, nullLogger())

	// Each request gets its own report_at and alternates sides of the cap
	// (rate 10*E27 above it, E27/100 below it), so none coalesce, forcing
	// one batch per request.
	rateCap := new(uint256.Int).Div(withdrawal.E27, uint256.NewInt(2))

	for i := 0; i < withdrawal.MaxBatches+5; i++ {
		stk, shares := uint64(100), uint64(10)
		if i%2 == 1 {
			stk, shares = 1, 100
		}

		_, err := q.Enqueue(uint256.NewInt(stk), uint256.NewInt(shares), withdrawal.Owner("owner"), uint64(i+1), uint64(i+1))
		require.NoError(t, err)
	}

	state := withdrawal.CalcState{NATBudget: uint256.NewInt(1_000_000_000)}

	state, err := b.Calculate(rateCap, uint64(withdrawal.MaxBatches+10), state)
	require.NoError(t, err)
	require.Len(t, state.Batches, withdrawal.MaxBatches)
	require.False(t, state.Finished, "hitting MAX_BATCHES must not be reported as finished")
}
