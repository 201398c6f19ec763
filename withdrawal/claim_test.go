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

type claimHarness struct {
	store  *storage.MemoryStore
	queue  *withdrawal.Queue
	cp     *withdrawal.Checkpoints
	final  *withdrawal.Finalizer
	claims *withdrawal.ClaimResolver
}

func newClaimHarness() claimHarness {
	store := storage.NewMemoryStore()
	q := withdrawal.NewQueue(store, nullLogger())
	cp := withdrawal.NewCheckpoints(store, nullLogger())
	f := withdrawal.NewFinalizer(store, cp, nil, nullLogger())
	c := withdrawal.NewClaimResolver(store, cp, nil, nullLogger())

	return claimHarness{store: store, queue: q, cp: cp, final: f, claims: c}
}

func TestFindCheckpointHintNotFoundWhenNoCheckpointsWritten(t *testing.T) {
	h := newClaimHarness()

	idx, err := h.claims.FindCheckpointHint(1)
	require.NoError(t, err)
	require.Equal(t, withdrawal.NotFound, idx)
}

func TestFindCheckpointHintIsMonotonicAcrossCheckpoints(t *testing.T) {
	h := newClaimHarness()

	_, err := h.cp.AppendIfChanged(1, uint256.NewInt(10))
	require.NoError(t, err)
	_, err = h.cp.AppendIfChanged(5, uint256.NewInt(20))
	require.NoError(t, err)
	_, err = h.cp.AppendIfChanged(9, uint256.NewInt(30))
	require.NoError(t, err)

	cases := []struct {
		id       withdrawal.RequestID
		expected withdrawal.CheckpointIndex
	}{
		{1, 1},
		{4, 1},
		{5, 2},
		{8, 2},
		{9, 3},
		{1000, 3},
	}

	for _, tc := range cases {
		idx, err := h.claims.FindCheckpointHint(tc.id)
		require.NoError(t, err)
		require.Equal(t, tc.expected, idx, "request %d", tc.id)
	}
}

// TestClaimPaysNominalAmountWhenUnderCap also covers invariant 6 and
// scenario 1 of spec.md §8: locked_nat must fall back to zero once the
// single finalized, unclaimed request is claimed.
func TestClaimPaysNominalAmountWhenUnderCap(t *testing.T) {
	h := newClaimHarness()

	id, err := h.queue.Enqueue(uint256.NewInt(1000), uint256.NewInt(10), withdrawal.Owner("alice"), 1, 1)
	require.NoError(t, err)

	_, err = h.final.Finalize([]withdrawal.RequestID{id}, uint256.NewInt(1000), withdrawal.UNLIMITED, 2)
	require.NoError(t, err)

	lockedAfterFinalize, err := h.store.LockedNAT()
	require.NoError(t, err)
	require.Equal(t, "1000", lockedAfterFinalize.String())

	hint, err := h.claims.FindCheckpointHint(id)
	require.NoError(t, err)

	signal, err := h.claims.Claim(id, withdrawal.Owner("alice"), withdrawal.Owner("alice"), hint, 3)
	require.NoError(t, err)
	require.Equal(t, id, signal.RequestID)
	require.Equal(t, withdrawal.Owner("alice"), signal.Recipient)
	require.Equal(t, "1000", signal.NATPaid.String())

	lockedAfterClaim, err := h.store.LockedNAT()
	require.NoError(t, err)
	require.True(t, lockedAfterClaim.IsZero(), "locked_nat must be decremented by the full payout once the only finalized request is claimed")
}

func TestClaimPaysDiscountedAmountWhenOverCap(t *testing.T) {
	h := newClaimHarness()

	id, err := h.queue.Enqueue(uint256.NewInt(1000), uint256.NewInt(10), withdrawal.Owner("alice"), 1, 1)
	require.NoError(t, err)

	_, err = h.final.Finalize([]withdrawal.RequestID{id}, uint256.NewInt(10), withdrawal.E27, 2)
	require.NoError(t, err)

	hint, err := h.claims.FindCheckpointHint(id)
	require.NoError(t, err)

	signal, err := h.claims.Claim(id, withdrawal.Owner("alice"), withdrawal.Owner("alice"), hint, 3)
	require.NoError(t, err)
	require.Equal(t, "10", signal.NATPaid.String(), "rate (100*E27) exceeds the 1*E27 cap, so the claim is discounted to shares*cap")

	locked, err := h.store.LockedNAT()
	require.NoError(t, err)
	require.True(t, locked.IsZero())
}

func TestClaimRejectsUnfinalizedRequest(t *testing.T) {
	h := newClaimHarness()

	id, err := h.queue.Enqueue(uint256.NewInt(1000), uint256.NewInt(10), withdrawal.Owner("alice"), 1, 1)
	require.NoError(t, err)

	_, err = h.claims.Claim(id, withdrawal.Owner("alice"), withdrawal.Owner("alice"), withdrawal.NotFound, 2)
	require.ErrorIs(t, err, withdrawal.ErrNotYetFinalized)
}

func TestClaimRejectsNonOwner(t *testing.T) {
	h := newClaimHarness()

	id, err := h.queue.Enqueue(uint256.NewInt(1000), uint256.NewInt(10), withdrawal.Owner("alice"), 1, 1)
	require.NoError(t, err)

	_, err = h.final.Finalize([]withdrawal.RequestID{id}, uint256.NewInt(1000), withdrawal.UNLIMITED, 2)
	require.NoError(t, err)

	hint, err := h.claims.FindCheckpointHint(id)
	require.NoError(t, err)

	_, err = h.claims.Claim(id, withdrawal.Owner("mallory"), withdrawal.Owner("mallory"), hint, 3)
	require.ErrorIs(t, err, withdrawal.ErrNotOwner)
}

func TestClaimRejectsDoubleClaim(t *testing.T) {
	h := newClaimHarness()

	id, err := h.queue.Enqueue(uint256.NewInt(1000), uint256.NewInt(10), withdrawal.Owner("alice"), 1, 1)
	require.NoError(t, err)

	_, err = h.final.Finalize([]withdrawal.RequestID{id}, uint256.NewInt(1000), withdrawal.UNLIMITED, 2)
	require.NoError(t, err)

	hint, err := h.claims.FindCheckpointHint(id)
	require.NoError(t, err)

	_, err = h.claims.Claim(id, withdrawal.Owner("alice"), withdrawal.Owner("alice"), hint, 3)
	require.NoError(t, err)

	_, err = h.claims.Claim(id, withdrawal.Owner("alice"), withdrawal.Owner("alice"), hint, 4)
	require.ErrorIs(t, err, withdrawal.ErrAlreadyClaimed)
}

func TestClaimRejectsStaleHint(t *testing.T) {
	h := newClaimHarness()

	id1, err := h.queue.Enqueue(uint256.NewInt(1000), uint256.NewInt(10), withdrawal.Owner("alice"), 1, 1)
	require.NoError(t, err)
	id2, err := h.queue.Enqueue(uint256.NewInt(1000), uint256.NewInt(10), withdrawal.Owner("bob"), 2, 2)
	require.NoError(t, err)

	// First batch discounted under a tiny cap, second nominal under UNLIMITED:
	// two checkpoints, so a hint naming the first checkpoint for id2 is stale.
	_, err = h.final.Finalize([]withdrawal.RequestID{id1}, uint256.NewInt(1), withdrawal.E27, 2)
	require.NoError(t, err)
	_, err = h.final.Finalize([]withdrawal.RequestID{id2}, uint256.NewInt(1000), withdrawal.UNLIMITED, 3)
	require.NoError(t, err)

	_, err = h.claims.Claim(id2, withdrawal.Owner("bob"), withdrawal.Owner("bob"), withdrawal.CheckpointIndex(1), 4)
	require.ErrorIs(t, err, withdrawal.ErrInvalidHint)
}

func TestClaimRejectsHintOutOfRange(t *testing.T) {
	h := newClaimHarness()

	id, err := h.queue.Enqueue(uint256.NewInt(1000), uint256.NewInt(10), withdrawal.Owner("alice"), 1, 1)
	require.NoError(t, err)

	_, err = h.final.Finalize([]withdrawal.RequestID{id}, uint256.NewInt(1000), withdrawal.UNLIMITED, 2)
	require.NoError(t, err)

	_, err = h.claims.Claim(id, withdrawal.Owner("alice"), withdrawal.Owner("alice"), withdrawal.CheckpointIndex(99), 3)
	require.ErrorIs(t, err, withdrawal.ErrHintOutOfRange)
}

func TestClaimRejectsUnknownRequest(t *testing.T) {
	h := newClaimHarness()

	_, err := h.claims.Claim(withdrawal.RequestID(1), withdrawal.Owner("alice"), withdrawal.Owner("alice"), withdrawal.NotFound, 1)
	require.ErrorIs(t, err, withdrawal.ErrUnknownRequest)
}

// TestClaimLeavesLockedNATForOtherUnclaimedRequests covers invariant 6
// precisely: locked_nat after one of two finalized requests is claimed
// must equal the remaining request's own payout, not zero and not the
// pre-claim total.
func TestClaimLeavesLockedNATForOtherUnclaimedRequests(t *testing.T) {
	h := newClaimHarness()

	id1, err := h.queue.Enqueue(uint256.NewInt(1000), uint256.NewInt(10), withdrawal.Owner("alice"), 1, 1)
	require.NoError(t, err)
	id2, err := h.queue.Enqueue(uint256.NewInt(500), uint256.NewInt(5), withdrawal.Owner("bob"), 1, 1)
	require.NoError(t, err)

	_, err = h.final.Finalize([]withdrawal.RequestID{id2}, uint256.NewInt(1500), withdrawal.UNLIMITED, 2)
	require.NoError(t, err)

	hint, err := h.claims.FindCheckpointHint(id1)
	require.NoError(t, err)

	_, err = h.claims.Claim(id1, withdrawal.Owner("alice"), withdrawal.Owner("alice"), hint, 3)
	require.NoError(t, err)

	locked, err := h.store.LockedNAT()
	require.NoError(t, err)
	require.Equal(t, "500", locked.String(), "bob's request is still finalized but unclaimed")
}
