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
	"io"
	"testing"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/liquidqueue/withdrawalqueue/storage"
	"github.com/liquidqueue/withdrawalqueue/withdrawal"
)

func nullLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)

	return logrus.NewEntry(l)
}

func TestQueueEnqueueAssignsIdsDenselyStartingAt1(t *testing.T) {
	store := storage.NewMemoryStore()
	q := withdrawal.NewQueue(store, nullLogger())

	for i := 1; i <= 5; i++ {
		id, err := q.Enqueue(uint256.NewInt(100), uint256.NewInt(10), withdrawal.Owner("alice"), uint64(i), uint64(i))
		require.NoError(t, err)
		require.Equal(t, withdrawal.RequestID(i), id)
	}

	last, err := store.LastRequestID()
	require.NoError(t, err)
	require.Equal(t, withdrawal.RequestID(5), last)
}

func TestQueueCumulativeSumsAreNonDecreasing(t *testing.T) {
	store := storage.NewMemoryStore()
	q := withdrawal.NewQueue(store, nullLogger())

	amounts := []uint64{100, 200, 50, 0, 999}

	for i, amt := range amounts {
		_, err := q.Enqueue(uint256.NewInt(amt), uint256.NewInt(amt/10+1), withdrawal.Owner("alice"), uint64(i+1), uint64(i+1))
		require.NoError(t, err)
	}

	// Start from the sentinel row so request 1 is compared against zero sums.
	prev, err := store.RequestAt(0)
	require.NoError(t, err)

	for id := withdrawal.RequestID(1); id <= 5; id++ {
		req, err := store.RequestAt(id)
		require.NoError(t, err)
		require.True(t, req.CumulativeSTK.Cmp(prev.CumulativeSTK) >= 0)
		require.True(t, req.CumulativeShares.Cmp(prev.CumulativeShares) >= 0)
		prev = req
	}
}

func TestQueueSentinelRowIsZeroAndClaimed(t *testing.T) {
	store := storage.NewMemoryStore()

	sentinel, err := store.RequestAt(0)
	require.NoError(t, err)
	require.True(t, sentinel.CumulativeSTK.IsZero())
	require.True(t, sentinel.CumulativeShares.IsZero())
	require.True(t, sentinel.Claimed)
}

func TestRangeSumsMatchesDirectDifference(t *testing.T) {
	store := storage.NewMemoryStore()
	q := withdrawal.NewQueue(store, nullLogger())

	_, err := q.Enqueue(uint256.NewInt(100), uint256.NewInt(10), withdrawal.Owner("a"), 1, 1)
	require.NoError(t, err)
	_, err = q.Enqueue(uint256.NewInt(300), uint256.NewInt(20), withdrawal.Owner("b"), 2, 2)
	require.NoError(t, err)

	r1, _ := store.RequestAt(1)
	r2, _ := store.RequestAt(2)

	deltaSTK, deltaShares := withdrawal.RangeSums(r1, r2)
	require.Equal(t, "300", deltaSTK.String())
	require.Equal(t, "20", deltaShares.String())
}

func TestBatchRateZeroSharesReturnsZero(t *testing.T) {
	rate, err := withdrawal.BatchRate(uint256.NewInt(100), new(uint256.Int))
	require.NoError(t, err)
	require.True(t, rate.IsZero())
}

func TestBatchRateComputesFixedPointRate(t *testing.T) {
	// delta_stk=2, delta_shares=1 => rate = 2 * E27 / 1 = 2 * E27
	rate, err := withdrawal.BatchRate(uint256.NewInt(2), uint256.NewInt(1))
	require.NoError(t, err)

	expected := new(uint256.Int).Mul(uint256.NewInt(2), withdrawal.E27)
	require.Equal(t, expected.String(), rate.String())
}

func TestMulDivRoundDownRoundsTowardZero(t *testing.T) {
	// shares=3, maxShareRate=E27/2 (i.e. 0.5 scaled) => 3 * (E27/2) / E27 = 1 (rounds down from 1.5)
	half := new(uint256.Int).Div(withdrawal.E27, uint256.NewInt(2))

	result, err := withdrawal.MulDivRoundDown(uint256.NewInt(3), half)
	require.NoError(t, err)
	require.Equal(t, "1", result.String())
}
