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

// Package storage provides withdrawal.Store implementations: a
// bbolt-backed on-disk store for production use and an in-memory store
// for tests (spec.md §6, "persisted state layout... logical only; an
// implementation chooses encoding").
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/gofrs/flock"
	"github.com/holiman/uint256"
	"go.etcd.io/bbolt"

	"github.com/liquidqueue/withdrawalqueue/withdrawal"
)

var (
	bucketQueue       = []byte("queue")
	bucketCheckpoints = []byte("checkpoints")
	bucketOwnerIndex  = []byte("owner_index")
	bucketScalars     = []byte("scalars")

	keyLastRequestID          = []byte("last_request_id")
	keyLastFinalizedRequestID = []byte("last_finalized_request_id")
	keyLastCheckpointIndex    = []byte("last_checkpoint_index")
	keyLockedNAT              = []byte("locked_nat")
	keyLastReportTimestamp    = []byte("last_report_timestamp")
)

// BoltStore is a bbolt-backed withdrawal.Store. One BoltStore owns one
// data file for the lifetime of the process; a sibling lock file
// (guarded by gofrs/flock) prevents a second instance from opening the
// same file concurrently, since spec.md §5 assumes single-threaded,
// transactional access from exactly one writer.
type BoltStore struct {
	db       *bbolt.DB
	fileLock *flock.Flock
}

// OpenBoltStore opens (creating if needed) the bbolt file at path,
// after acquiring an exclusive process lock on path+".lock".
func OpenBoltStore(path string) (*BoltStore, error) {
	fileLock := flock.New(path + ".lock")

	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", path, err)
	}

	if !locked {
		return nil, fmt.Errorf("withdrawal store at %s is already open by another process", path)
	}

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		_ = fileLock.Unlock()
		return nil, fmt.Errorf("failed to open bbolt store at %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketQueue, bucketCheckpoints, bucketOwnerIndex, bucketScalars} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}

		return nil
	})
	if err != nil {
		_ = db.Close()
		_ = fileLock.Unlock()
		return nil, err
	}

	return &BoltStore{db: db, fileLock: fileLock}, nil
}

// Close releases the bbolt file and the process lock.
func (s *BoltStore) Close() error {
	closeErr := s.db.Close()
	unlockErr := s.fileLock.Unlock()

	if closeErr != nil {
		return fmt.Errorf("failed to close bbolt store: %w", closeErr)
	}

	if unlockErr != nil {
		return fmt.Errorf("failed to release store lock: %w", unlockErr)
	}

	return nil
}

func requestKey(id withdrawal.RequestID) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))

	return key
}

func checkpointKey(idx withdrawal.CheckpointIndex) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(idx))

	return key
}

func (s *BoltStore) RequestAt(id withdrawal.RequestID) (withdrawal.Request, error) {
	if id == 0 {
		return sentinelRequestCopy(), nil
	}

	var req withdrawal.Request

	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketQueue).Get(requestKey(id))
		if raw == nil {
			return fmt.Errorf("%w: %d", withdrawal.ErrUnknownRequest, id)
		}

		decoded, err := decodeRequest(raw)
		if err != nil {
			return err
		}

		req = decoded

		return nil
	})

	return req, err
}

func (s *BoltStore) PutRequest(id withdrawal.RequestID, req withdrawal.Request) error {
	encoded, err := encodeRequest(req)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketQueue).Put(requestKey(id), encoded)
	})
}

func (s *BoltStore) MarkClaimed(id withdrawal.RequestID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)

		raw := bucket.Get(requestKey(id))
		if raw == nil {
			return fmt.Errorf("%w: %d", withdrawal.ErrUnknownRequest, id)
		}

		req, err := decodeRequest(raw)
		if err != nil {
			return err
		}

		req.Claimed = true

		encoded, err := encodeRequest(req)
		if err != nil {
			return err
		}

		return bucket.Put(requestKey(id), encoded)
	})
}

func (s *BoltStore) LastRequestID() (withdrawal.RequestID, error) {
	return withdrawal.RequestID(s.getScalar(keyLastRequestID)), nil
}

func (s *BoltStore) SetLastRequestID(id withdrawal.RequestID) error {
	return s.setScalar(keyLastRequestID, uint64(id))
}

func (s *BoltStore) LastFinalizedRequestID() (withdrawal.RequestID, error) {
	return withdrawal.RequestID(s.getScalar(keyLastFinalizedRequestID)), nil
}

func (s *BoltStore) SetLastFinalizedRequestID(id withdrawal.RequestID) error {
	return s.setScalar(keyLastFinalizedRequestID, uint64(id))
}

func (s *BoltStore) LastCheckpointIndex() (withdrawal.CheckpointIndex, error) {
	return withdrawal.CheckpointIndex(s.getScalar(keyLastCheckpointIndex)), nil
}

func (s *BoltStore) CheckpointAt(index withdrawal.CheckpointIndex) (withdrawal.Checkpoint, error) {
	if index == 0 {
		return sentinelCheckpointCopy(), nil
	}

	var cp withdrawal.Checkpoint

	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketCheckpoints).Get(checkpointKey(index))
		if raw == nil {
			return fmt.Errorf("checkpoint %d not found", index)
		}

		decoded, err := decodeCheckpoint(raw)
		if err != nil {
			return err
		}

		cp = decoded

		return nil
	})

	return cp, err
}

func (s *BoltStore) AppendCheckpoint(cp withdrawal.Checkpoint) (withdrawal.CheckpointIndex, error) {
	var idx withdrawal.CheckpointIndex

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketScalars)

		last := withdrawal.CheckpointIndex(binary.BigEndian.Uint64(orZero(bucket.Get(keyLastCheckpointIndex))))
		idx = last + 1

		encoded, err := encodeCheckpoint(cp)
		if err != nil {
			return err
		}

		if err := tx.Bucket(bucketCheckpoints).Put(checkpointKey(idx), encoded); err != nil {
			return err
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(idx))

		return bucket.Put(keyLastCheckpointIndex, buf)
	})

	return idx, err
}

func (s *BoltStore) LockedNAT() (*uint256.Int, error) {
	var v *uint256.Int

	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketScalars).Get(keyLockedNAT)
		v = new(uint256.Int)

		if raw != nil {
			if err := v.UnmarshalText(raw); err != nil {
				return fmt.Errorf("failed to decode locked_nat: %w", err)
			}
		}

		return nil
	})

	return v, err
}

func (s *BoltStore) SetLockedNAT(v *uint256.Int) error {
	text, err := v.MarshalText()
	if err != nil {
		return fmt.Errorf("failed to encode locked_nat: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScalars).Put(keyLockedNAT, text)
	})
}

func (s *BoltStore) LastReportTimestamp() (uint64, error) {
	return s.getScalar(keyLastReportTimestamp), nil
}

func (s *BoltStore) SetLastReportTimestamp(ts uint64) error {
	return s.setScalar(keyLastReportTimestamp, ts)
}

func (s *BoltStore) AddOwnerRequest(owner withdrawal.Owner, id withdrawal.RequestID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOwnerIndex)

		ids, err := decodeOwnerSet(bucket.Get([]byte(owner)))
		if err != nil {
			return err
		}

		ids = insertSorted(ids, id)

		return bucket.Put([]byte(owner), encodeOwnerSet(ids))
	})
}

func (s *BoltStore) RemoveOwnerRequest(owner withdrawal.Owner, id withdrawal.RequestID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOwnerIndex)

		ids, err := decodeOwnerSet(bucket.Get([]byte(owner)))
		if err != nil {
			return err
		}

		ids = removeSorted(ids, id)

		if len(ids) == 0 {
			return bucket.Delete([]byte(owner))
		}

		return bucket.Put([]byte(owner), encodeOwnerSet(ids))
	})
}

func (s *BoltStore) OwnerRequests(owner withdrawal.Owner) ([]withdrawal.RequestID, error) {
	var ids []withdrawal.RequestID

	err := s.db.View(func(tx *bbolt.Tx) error {
		decoded, err := decodeOwnerSet(tx.Bucket(bucketOwnerIndex).Get([]byte(owner)))
		if err != nil {
			return err
		}

		ids = decoded

		return nil
	})

	return ids, err
}

func (s *BoltStore) getScalar(key []byte) uint64 {
	var v uint64

	_ = s.db.View(func(tx *bbolt.Tx) error {
		v = binary.BigEndian.Uint64(orZero(tx.Bucket(bucketScalars).Get(key)))
		return nil
	})

	return v
}

func (s *BoltStore) setScalar(key []byte, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScalars).Put(key, buf)
	})
}

func orZero(raw []byte) []byte {
	if raw == nil {
		return make([]byte, 8)
	}

	return raw
}

func insertSorted(ids []withdrawal.RequestID, id withdrawal.RequestID) []withdrawal.RequestID {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i < len(ids) && ids[i] == id {
		return ids
	}

	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = id

	return ids
}

func removeSorted(ids []withdrawal.RequestID, id withdrawal.RequestID) []withdrawal.RequestID {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i == len(ids) || ids[i] != id {
		return ids
	}

	return append(ids[:i], ids[i+1:]...)
}

func encodeOwnerSet(ids []withdrawal.RequestID) []byte {
	buf := make([]byte, 8*len(ids))

	for i, id := range ids {
		binary.BigEndian.PutUint64(buf[i*8:], uint64(id))
	}

	return buf
}

func decodeOwnerSet(raw []byte) ([]withdrawal.RequestID, error) {
	if len(raw)%8 != 0 {
		return nil, errors.New("corrupt owner index entry")
	}

	ids := make([]withdrawal.RequestID, len(raw)/8)
	for i := range ids {
		ids[i] = withdrawal.RequestID(binary.BigEndian.Uint64(raw[i*8:]))
	}

	return ids, nil
}

func sentinelRequestCopy() withdrawal.Request {
	return withdrawal.Request{
		CumulativeSTK:    new(uint256.Int),
		CumulativeShares: new(uint256.Int),
		Claimed:          true,
	}
}

func sentinelCheckpointCopy() withdrawal.Checkpoint {
	return withdrawal.Checkpoint{
		MaxShareRate: new(uint256.Int).Set(withdrawal.UNLIMITED),
	}
}
