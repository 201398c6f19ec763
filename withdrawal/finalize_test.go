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

func newFinalizeHarness() (*withdrawal.Queue, *withdrawal.Checkpoints, *withdrawal.Finalizer, *storage.MemoryStore) {
	store := storage.NewMemoryStore()
	q := withdrawal.NewQueue(store, nullLogger())
	cp := withdrawal.NewCheckpoints(store, nullLogger())
	f := withdrawal.NewFinalizer(store, cp, nil, nullLogger())

	return q, cp, f, store
}

func TestFinalizeNominalCaseLeavesCheckpointAtUnlimited(t *testing.T) {
	q, cp, f, store := newFinalizeHarness()

	_, err := q.Enqueue(uint256.NewInt(1000), uint256.NewInt(10), withdrawal.Owner("a"), 1, 1)
	require.NoError(t, err)

	signal, err := f.Finalize([]withdrawal.RequestID{1}, uint256.NewInt(1000), withdrawal.UNLIMITED, 2)
	require.NoError(t, err)
	require.Equal(t, withdrawal.RequestID(1), signal.FromID)
	require.Equal(t, withdrawal.RequestID(1), signal.ToID)
	require.Equal(t, "1000", signal.NATLocked.String())

	last, err := cp.Last()
	require.NoError(t, err)
	require.Equal(t, withdrawal.RequestID(0), last.FromRequestID, "nominal full payout must not write a new checkpoint when the cap is unchanged")

	lastFinalized, err := store.LastFinalizedRequestID()
	require.NoError(t, err)
	require.Equal(t, withdrawal.RequestID(1), lastFinalized)

	locked, err := store.LockedNAT()
	require.NoError(t, err)
	require.Equal(t, "1000", locked.String(), "locked_nat accumulates the amount sent in by finalize")
}

func TestFinalizeDiscountedCaseWritesCheckpoint(t *testing.T) {
	q, cp, f, _ := newFinalizeHarness()

	_, err := q.Enqueue(uint256.NewInt(1000), uint256.NewInt(10), withdrawal.Owner("a"), 1, 1)
	require.NoError(t, err)

	// rate = 1000*E27/10 = 100*E27, far above a cap of 1*E27 -> discounted.
	signal, err := f.Finalize([]withdrawal.RequestID{1}, uint256.NewInt(10), withdrawal.E27, 2)
	require.NoError(t, err)
	require.Equal(t, "10", signal.NATLocked.String())

	last, err := cp.Last()
	require.NoError(t, err)
	require.Equal(t, withdrawal.RequestID(1), last.FromRequestID)
	require.Equal(t, withdrawal.E27.String(), last.MaxShareRate.String())
}

func TestFinalizeRejectsAlternationViolation(t *testing.T) {
	q, _, f, _ := newFinalizeHarness()

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(uint256.NewInt(100), uint256.NewInt(1000), withdrawal.Owner("a"), uint64(i+1), uint64(i+1))
		require.NoError(t, err)
	}

	// Every request has the same low rate (100*E27/1000 = 0.1*E27), nominal
	// under a cap of E27; batches [2] then [2,3] are both nominal, violating
	// the required alternation.
	_, err := f.Prefinalize([]withdrawal.RequestID{2, 3}, withdrawal.E27)
	require.ErrorIs(t, err, withdrawal.ErrAlternationViolated)
}

func TestFinalizeRejectsBatchOutOfSequence(t *testing.T) {
	q, _, f, _ := newFinalizeHarness()

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(uint256.NewInt(100), uint256.NewInt(10), withdrawal.Owner("a"), uint64(i+1), uint64(i+1))
		require.NoError(t, err)
	}

	_, err := f.Finalize([]withdrawal.RequestID{2}, uint256.NewInt(200), withdrawal.UNLIMITED, 10)
	require.NoError(t, err)

	_, err = f.Finalize([]withdrawal.RequestID{1}, uint256.NewInt(100), withdrawal.UNLIMITED, 11)
	require.ErrorIs(t, err, withdrawal.ErrBatchOutOfSequence)
}

func TestFinalizeRejectsAmountExceedingRange(t *testing.T) {
	q, _, f, _ := newFinalizeHarness()

	_, err := q.Enqueue(uint256.NewInt(100), uint256.NewInt(10), withdrawal.Owner("a"), 1, 1)
	require.NoError(t, err)

	_, err = f.Finalize([]withdrawal.RequestID{1}, uint256.NewInt(101), withdrawal.UNLIMITED, 2)
	require.ErrorIs(t, err, withdrawal.ErrAmountExceedsRange)
}

func TestFinalizeRejectsEmptyBatches(t *testing.T) {
	_, _, f, _ := newFinalizeHarness()

	_, err := f.Prefinalize(nil, withdrawal.UNLIMITED)
	require.ErrorIs(t, err, withdrawal.ErrEmptyBatches)
}

func TestFinalizeRejectsZeroShareRate(t *testing.T) {
	_, _, f, _ := newFinalizeHarness()

	_, err := f.Prefinalize([]withdrawal.RequestID{1}, new(uint256.Int))
	require.ErrorIs(t, err, withdrawal.ErrZeroShareRate)
}
