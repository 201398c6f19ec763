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

func TestCheckpointsLastIsSentinelWhenEmpty(t *testing.T) {
	store := storage.NewMemoryStore()
	cp := withdrawal.NewCheckpoints(store, nullLogger())

	last, err := cp.Last()
	require.NoError(t, err)
	require.Equal(t, withdrawal.RequestID(0), last.FromRequestID)
	require.Equal(t, withdrawal.UNLIMITED.String(), last.MaxShareRate.String())
}

func TestCheckpointsAppendIfChangedCoalescesIdenticalCaps(t *testing.T) {
	store := storage.NewMemoryStore()
	cp := withdrawal.NewCheckpoints(store, nullLogger())

	rate := uint256.NewInt(42)

	idx1, err := cp.AppendIfChanged(1, rate)
	require.NoError(t, err)
	require.Equal(t, withdrawal.CheckpointIndex(1), idx1)

	idx2, err := cp.AppendIfChanged(5, rate)
	require.NoError(t, err)
	require.Equal(t, idx1, idx2, "identical cap must not append a second checkpoint")

	last, err := store.LastCheckpointIndex()
	require.NoError(t, err)
	require.Equal(t, withdrawal.CheckpointIndex(1), last)
}

func TestCheckpointsAppendIfChangedAppendsOnChange(t *testing.T) {
	store := storage.NewMemoryStore()
	cp := withdrawal.NewCheckpoints(store, nullLogger())

	_, err := cp.AppendIfChanged(1, uint256.NewInt(42))
	require.NoError(t, err)

	idx2, err := cp.AppendIfChanged(10, uint256.NewInt(43))
	require.NoError(t, err)
	require.Equal(t, withdrawal.CheckpointIndex(2), idx2)

	last, err := cp.Last()
	require.NoError(t, err)
	require.Equal(t, withdrawal.RequestID(10), last.FromRequestID)
}
