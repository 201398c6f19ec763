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

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// hintCacheSize bounds the claim-hint LRU, keyed by request id: a
// repeated FindCheckpointHint lookup for an already-finalized request is
// a cache hit instead of a binary search. The cache is a speed-up only,
// not a correctness requirement.
const hintCacheSize = 4096

// ClaimedSignal is the WithdrawalClaimed signal emitted by Claim
// (spec.md §6).
type ClaimedSignal struct {
	RequestID RequestID
	Owner     Owner
	Recipient Owner
	NATPaid   *uint256.Int
	Timestamp uint64
}

// ClaimResolver binds a checkpoint index to a request at claim time
// and computes the discounted payout (component E).
type ClaimResolver struct {
	store       Store
	checkpoints *Checkpoints
	metrics     *Metrics
	hints       *lru.Cache[RequestID, CheckpointIndex]
	log         *logrus.Entry
}

// NewClaimResolver wires a ClaimResolver on top of the given Store and Checkpoints.
func NewClaimResolver(store Store, checkpoints *Checkpoints, metrics *Metrics, log *logrus.Entry) *ClaimResolver {
	hints, err := lru.New[RequestID, CheckpointIndex](hintCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which hintCacheSize never is.
		panic(fmt.Sprintf("claim hint cache: %v", err))
	}

	return &ClaimResolver{
		store:       store,
		checkpoints: checkpoints,
		metrics:     metrics,
		hints:       hints,
		log:         log.WithField("component", "claim_resolver"),
	}
}

// FindCheckpointHint returns the index of the checkpoint governing id,
// i.e. the largest index whose from_request_id <= id (spec.md §4.E).
// It is a pure read, safe to call off the critical path to precompute
// a hint for a later Claim call.
func (c *ClaimResolver) FindCheckpointHint(id RequestID) (CheckpointIndex, error) {
	if cached, ok := c.hints.Get(id); ok {
		return cached, nil
	}

	idx, err := c.findCheckpointHintUncached(id)
	if err != nil {
		return 0, err
	}

	lastFinalized, err := c.store.LastFinalizedRequestID()
	if err != nil {
		return 0, fmt.Errorf("failed to read last_finalized_request_id: %w", err)
	}

	// A later finalize may append a checkpoint governing a not-yet-finalized
	// id, so only finalized ids, whose governing checkpoint is fixed, are cached.
	if id <= lastFinalized {
		c.hints.Add(id, idx)
	}

	return idx, nil
}

func (c *ClaimResolver) findCheckpointHintUncached(id RequestID) (CheckpointIndex, error) {
	last, err := c.store.LastCheckpointIndex()
	if err != nil {
		return 0, fmt.Errorf("failed to read last_checkpoint_index: %w", err)
	}

	if last == 0 {
		return NotFound, nil
	}

	// Classic upper-bound binary search over the dense, monotonic
	// from_request_id sequence: find the largest index whose
	// from_request_id <= id.
	lo, hi := CheckpointIndex(1), last

	best := NotFound

	for lo <= hi {
		mid := lo + (hi-lo)/2

		cp, err := c.store.CheckpointAt(mid)
		if err != nil {
			return 0, fmt.Errorf("failed to read checkpoint %d: %w", mid, err)
		}

		if cp.FromRequestID <= id {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	return best, nil
}

// verifyHint checks that the caller-supplied hint actually governs id:
// hint's from_request_id <= id, and (hint is the last checkpoint, or
// the next checkpoint's from_request_id > id). Hint 0 is the sentinel
// checkpoint (UNLIMITED from request 0) and is a valid hint whenever no
// real checkpoint has yet been written, or none governs id.
func (c *ClaimResolver) verifyHint(id RequestID, hint CheckpointIndex) (Checkpoint, error) {
	last, err := c.store.LastCheckpointIndex()
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to read last_checkpoint_index: %w", err)
	}

	if hint > last {
		return Checkpoint{}, fmt.Errorf("%w: hint %d exceeds last_checkpoint_index %d", ErrHintOutOfRange, hint, last)
	}

	cp, err := c.store.CheckpointAt(hint)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to read checkpoint %d: %w", hint, err)
	}

	if cp.FromRequestID > id {
		return Checkpoint{}, fmt.Errorf("%w: checkpoint %d governs from %d, after request %d", ErrInvalidHint, hint, cp.FromRequestID, id)
	}

	if hint < last {
		next, err := c.store.CheckpointAt(hint + 1)
		if err != nil {
			return Checkpoint{}, fmt.Errorf("failed to read checkpoint %d: %w", hint+1, err)
		}

		if next.FromRequestID <= id {
			return Checkpoint{}, fmt.Errorf("%w: checkpoint %d+1 governs from %d, not after request %d", ErrInvalidHint, hint, next.FromRequestID, id)
		}
	}

	return cp, nil
}

// Claim resolves the discount for request id using the caller-supplied
// hint, validates ownership and finalization state, marks the request
// claimed, decrements locked_nat by the payout, and returns the NAT
// payout (spec.md §4.E). recipient is the address the NAT is sent to,
// which the caller may set to something other than the owner.
func (c *ClaimResolver) Claim(id RequestID, caller, recipient Owner, hint CheckpointIndex, now uint64) (ClaimedSignal, error) {
	lastRequest, err := c.store.LastRequestID()
	if err != nil {
		return ClaimedSignal{}, fmt.Errorf("failed to read last_request_id: %w", err)
	}

	if id == 0 || id > lastRequest {
		return ClaimedSignal{}, fmt.Errorf("%w: %d", ErrUnknownRequest, id)
	}

	lastFinalized, err := c.store.LastFinalizedRequestID()
	if err != nil {
		return ClaimedSignal{}, fmt.Errorf("failed to read last_finalized_request_id: %w", err)
	}

	if id > lastFinalized {
		return ClaimedSignal{}, fmt.Errorf("%w: request %d, last_finalized_request_id %d", ErrNotYetFinalized, id, lastFinalized)
	}

	req, err := c.store.RequestAt(id)
	if err != nil {
		return ClaimedSignal{}, fmt.Errorf("failed to read request %d: %w", id, err)
	}

	if req.Claimed {
		return ClaimedSignal{}, fmt.Errorf("%w: %d", ErrAlreadyClaimed, id)
	}

	if req.Owner != caller {
		return ClaimedSignal{}, fmt.Errorf("%w: request %d owned by %s", ErrNotOwner, id, req.Owner)
	}

	prev, err := c.store.RequestAt(id - 1)
	if err != nil {
		return ClaimedSignal{}, fmt.Errorf("failed to read request %d: %w", id-1, err)
	}

	cp, err := c.verifyHint(id, hint)
	if err != nil {
		return ClaimedSignal{}, err
	}

	deltaSTK, deltaShares := RangeSums(prev, req)

	rate, err := BatchRate(deltaSTK, deltaShares)
	if err != nil {
		return ClaimedSignal{}, err
	}

	payout := deltaSTK
	if rate.Cmp(cp.MaxShareRate) > 0 {
		payout, err = MulDivRoundDown(deltaShares, cp.MaxShareRate)
		if err != nil {
			return ClaimedSignal{}, err
		}
	}

	if err := c.store.MarkClaimed(id); err != nil {
		return ClaimedSignal{}, fmt.Errorf("failed to mark request %d claimed: %w", id, err)
	}

	if err := c.store.RemoveOwnerRequest(caller, id); err != nil {
		return ClaimedSignal{}, fmt.Errorf("failed to unindex owner %s for request %d: %w", caller, id, err)
	}

	lockedNAT, err := c.store.LockedNAT()
	if err != nil {
		return ClaimedSignal{}, fmt.Errorf("failed to read locked_nat: %w", err)
	}

	if err := c.store.SetLockedNAT(new(uint256.Int).Sub(lockedNAT, payout)); err != nil {
		return ClaimedSignal{}, fmt.Errorf("failed to decrement locked_nat: %w", err)
	}

	if c.metrics != nil {
		c.metrics.ObserveClaim(payout)
	}

	c.log.WithFields(logrus.Fields{
		"request_id": uint64(id),
		"owner":      string(caller),
		"recipient":  string(recipient),
		"nat_paid":   payout.String(),
	}).Info("request claimed")

	return ClaimedSignal{
		RequestID: id,
		Owner:     caller,
		Recipient: recipient,
		NATPaid:   payout,
		Timestamp: now,
	}, nil
}
