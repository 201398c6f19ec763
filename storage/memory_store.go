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

package storage

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"github.com/liquidqueue/withdrawalqueue/withdrawal"
)

// MemoryStore is a withdrawal.Store implementation backed by plain Go
// maps, used by package withdrawal's tests and by the cmd `simulate`
// subcommand, which never wants an on-disk file.
type MemoryStore struct {
	requests    map[withdrawal.RequestID]withdrawal.Request
	checkpoints map[withdrawal.CheckpointIndex]withdrawal.Checkpoint
	ownerIndex  map[withdrawal.Owner][]withdrawal.RequestID

	lastRequestID          withdrawal.RequestID
	lastFinalizedRequestID withdrawal.RequestID
	lastCheckpointIndex    withdrawal.CheckpointIndex
	lockedNAT              *uint256.Int
	lastReportTimestamp    uint64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:    make(map[withdrawal.RequestID]withdrawal.Request),
		checkpoints: make(map[withdrawal.CheckpointIndex]withdrawal.Checkpoint),
		ownerIndex:  make(map[withdrawal.Owner][]withdrawal.RequestID),
		lockedNAT:   new(uint256.Int),
	}
}

func (s *MemoryStore) RequestAt(id withdrawal.RequestID) (withdrawal.Request, error) {
	if id == 0 {
		return sentinelRequestCopy(), nil
	}

	req, ok := s.requests[id]
	if !ok {
		return withdrawal.Request{}, fmt.Errorf("%w: %d", withdrawal.ErrUnknownRequest, id)
	}

	return req, nil
}

func (s *MemoryStore) PutRequest(id withdrawal.RequestID, req withdrawal.Request) error {
	s.requests[id] = req
	return nil
}

func (s *MemoryStore) MarkClaimed(id withdrawal.RequestID) error {
	req, ok := s.requests[id]
	if !ok {
		return fmt.Errorf("%w: %d", withdrawal.ErrUnknownRequest, id)
	}

	req.Claimed = true
	s.requests[id] = req

	return nil
}

func (s *MemoryStore) LastRequestID() (withdrawal.RequestID, error) {
	return s.lastRequestID, nil
}

func (s *MemoryStore) SetLastRequestID(id withdrawal.RequestID) error {
	s.lastRequestID = id
	return nil
}

func (s *MemoryStore) LastFinalizedRequestID() (withdrawal.RequestID, error) {
	return s.lastFinalizedRequestID, nil
}

func (s *MemoryStore) SetLastFinalizedRequestID(id withdrawal.RequestID) error {
	s.lastFinalizedRequestID = id
	return nil
}

func (s *MemoryStore) CheckpointAt(index withdrawal.CheckpointIndex) (withdrawal.Checkpoint, error) {
	if index == 0 {
		return sentinelCheckpointCopy(), nil
	}

	cp, ok := s.checkpoints[index]
	if !ok {
		return withdrawal.Checkpoint{}, fmt.Errorf("checkpoint %d not found", index)
	}

	return cp, nil
}

func (s *MemoryStore) AppendCheckpoint(cp withdrawal.Checkpoint) (withdrawal.CheckpointIndex, error) {
	s.lastCheckpointIndex++
	s.checkpoints[s.lastCheckpointIndex] = cp

	return s.lastCheckpointIndex, nil
}

func (s *MemoryStore) LastCheckpointIndex() (withdrawal.CheckpointIndex, error) {
	return s.lastCheckpointIndex, nil
}

func (s *MemoryStore) LockedNAT() (*uint256.Int, error) {
	return new(uint256.Int).Set(s.lockedNAT), nil
}

func (s *MemoryStore) SetLockedNAT(v *uint256.Int) error {
	s.lockedNAT = new(uint256.Int).Set(v)
	return nil
}

func (s *MemoryStore) LastReportTimestamp() (uint64, error) {
	return s.lastReportTimestamp, nil
}

func (s *MemoryStore) SetLastReportTimestamp(ts uint64) error {
	s.lastReportTimestamp = ts
	return nil
}

func (s *MemoryStore) AddOwnerRequest(owner withdrawal.Owner, id withdrawal.RequestID) error {
	s.ownerIndex[owner] = insertSorted(s.ownerIndex[owner], id)
	return nil
}

func (s *MemoryStore) RemoveOwnerRequest(owner withdrawal.Owner, id withdrawal.RequestID) error {
	ids := removeSorted(s.ownerIndex[owner], id)
	if len(ids) == 0 {
		delete(s.ownerIndex, owner)
	} else {
		s.ownerIndex[owner] = ids
	}

	return nil
}

func (s *MemoryStore) OwnerRequests(owner withdrawal.Owner) ([]withdrawal.RequestID, error) {
	ids := append([]withdrawal.RequestID{}, s.ownerIndex[owner]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}
