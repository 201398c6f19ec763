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

// Checkpoints is the append-only, 1-indexed checkpoint history
// (component B). A new checkpoint is written by the Finalizer iff the
// rate cap governing the just-finalized requests differs from the
// last recorded cap (spec.md §4.B); Checkpoints itself only knows how
// to append and read.
type Checkpoints struct {
	store Store
	log   *logrus.Entry
}

// NewCheckpoints wires a Checkpoints on top of the given Store.
func NewCheckpoints(store Store, log *logrus.Entry) *Checkpoints {
	return &Checkpoints{store: store, log: log.WithField("component", "checkpoints")}
}

// Last returns the most recently written checkpoint, or the sentinel
// (0, UNLIMITED) row if none has been written yet.
func (c *Checkpoints) Last() (Checkpoint, error) {
	idx, err := c.store.LastCheckpointIndex()
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to read last_checkpoint_index: %w", err)
	}

	cp, err := c.store.CheckpointAt(idx)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to read checkpoint %d: %w", idx, err)
	}

	return cp, nil
}

// AppendIfChanged appends a new checkpoint (fromRequestID, cap) iff
// cap differs from the last recorded cap, coalescing consecutive
// identical finalizations (spec.md §4.B). Returns the index of the
// checkpoint now governing fromRequestID (either the newly-appended
// one, or the unchanged last one).
func (c *Checkpoints) AppendIfChanged(fromRequestID RequestID, maxShareRate *uint256.Int) (CheckpointIndex, error) {
	last, err := c.Last()
	if err != nil {
		return 0, err
	}

	if last.MaxShareRate.Eq(maxShareRate) {
		idx, err := c.store.LastCheckpointIndex()
		if err != nil {
			return 0, fmt.Errorf("failed to read last_checkpoint_index: %w", err)
		}

		return idx, nil
	}

	idx, err := c.store.AppendCheckpoint(Checkpoint{
		FromRequestID: fromRequestID,
		MaxShareRate:  new(uint256.Int).Set(maxShareRate),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append checkpoint at request %d: %w", fromRequestID, err)
	}

	c.log.WithFields(logrus.Fields{
		"checkpoint_index": uint64(idx),
		"from_request_id":  uint64(fromRequestID),
		"max_share_rate":   maxShareRate.String(),
	}).Info("checkpoint appended")

	return idx, nil
}
