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
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// OwnerIndex maps an owner to the dense, monotonically increasing set
// of request ids they hold, backed by a roaring bitmap per owner.
// Request ids are exactly the kind of dense 32/64-bit integer sequence
// roaring bitmaps are built for, and an owner with thousands of open
// requests is the one place this queue benefits from compressed,
// mergeable integer sets over a plain slice or map[RequestID]struct{}.
//
// OwnerIndex is an in-memory helper a Store implementation can embed;
// it is not itself a Store.
type OwnerIndex struct {
	mu   sync.RWMutex
	bits map[Owner]*roaring.Bitmap
}

// NewOwnerIndex returns an empty OwnerIndex.
func NewOwnerIndex() *OwnerIndex {
	return &OwnerIndex{bits: make(map[Owner]*roaring.Bitmap)}
}

// Add records id as owned by owner.
func (o *OwnerIndex) Add(owner Owner, id RequestID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	bm, ok := o.bits[owner]
	if !ok {
		bm = roaring.New()
		o.bits[owner] = bm
	}

	bm.Add(requestIDToUint32(id))
}

// Remove clears id from owner's set.
func (o *OwnerIndex) Remove(owner Owner, id RequestID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	bm, ok := o.bits[owner]
	if !ok {
		return
	}

	bm.Remove(requestIDToUint32(id))

	if bm.IsEmpty() {
		delete(o.bits, owner)
	}
}

// Requests returns owner's request ids in ascending order.
func (o *OwnerIndex) Requests(owner Owner) []RequestID {
	o.mu.RLock()
	defer o.mu.RUnlock()

	bm, ok := o.bits[owner]
	if !ok {
		return nil
	}

	ids := make([]RequestID, 0, bm.GetCardinality())
	it := bm.Iterator()

	for it.HasNext() {
		ids = append(ids, RequestID(it.Next()))
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// requestIDToUint32 narrows a RequestID for the bitmap's 32-bit cells.
// A withdrawal book reaching 2^32 requests (four billion) is outside
// any economically plausible deployment; spec.md's own id space is
// stated as "practically unbounded" monotonic integers, not literally
// unbounded in a fixed-width encoding.
func requestIDToUint32(id RequestID) uint32 {
	return uint32(id)
}
