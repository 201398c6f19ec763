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

import "github.com/holiman/uint256"

// Store is the persistence boundary components A-E are built against.
// spec.md §6 describes the logical namespaces (queue/, checkpoints/,
// owner_index/ and the scalar slots) without mandating an encoding;
// Store is that boundary, with a bbolt-backed implementation and an
// in-memory implementation (for tests) in package storage.
//
// Implementations must make every method safe to call without
// external locking from a single goroutine at a time: spec.md §5's
// "single-threaded, transactional" model means the Queue/Finalizer/
// ClaimResolver callers serialize access, not Store itself.
type Store interface {
	// RequestAt returns the request at id, or the sentinel row for id 0.
	RequestAt(id RequestID) (Request, error)
	// PutRequest writes the request at id (id must be lastRequestID+1 when
	// called from Enqueue).
	PutRequest(id RequestID, req Request) error
	// MarkClaimed sets the Claimed flag on the request at id.
	MarkClaimed(id RequestID) error

	// LastRequestID returns last_request_id (0 if the book is empty).
	LastRequestID() (RequestID, error)
	// SetLastRequestID advances last_request_id.
	SetLastRequestID(id RequestID) error

	// LastFinalizedRequestID returns last_finalized_request_id.
	LastFinalizedRequestID() (RequestID, error)
	// SetLastFinalizedRequestID advances last_finalized_request_id.
	SetLastFinalizedRequestID(id RequestID) error

	// CheckpointAt returns the checkpoint at index, or the sentinel row for index 0.
	CheckpointAt(index CheckpointIndex) (Checkpoint, error)
	// AppendCheckpoint appends a new checkpoint and returns its index.
	AppendCheckpoint(cp Checkpoint) (CheckpointIndex, error)
	// LastCheckpointIndex returns last_checkpoint_index (0 if none written yet).
	LastCheckpointIndex() (CheckpointIndex, error)

	// LockedNAT returns locked_nat.
	LockedNAT() (*uint256.Int, error)
	// SetLockedNAT overwrites locked_nat.
	SetLockedNAT(v *uint256.Int) error

	// LastReportTimestamp returns last_report_timestamp.
	LastReportTimestamp() (uint64, error)
	// SetLastReportTimestamp overwrites last_report_timestamp.
	SetLastReportTimestamp(ts uint64) error

	// AddOwnerRequest adds id to owner's request-id set.
	AddOwnerRequest(owner Owner, id RequestID) error
	// RemoveOwnerRequest removes id from owner's request-id set.
	RemoveOwnerRequest(owner Owner, id RequestID) error
	// OwnerRequests returns the sorted set of request ids owned by owner.
	OwnerRequests(owner Owner) ([]RequestID, error)
}
