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
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// EventKind names the three signals spec.md §6 says the core emits.
type EventKind string

const (
	EventRequested      EventKind = "WithdrawalRequested"
	EventBatchFinalized EventKind = "WithdrawalBatchFinalized"
	EventClaimed        EventKind = "WithdrawalClaimed"
)

// Event is the envelope every emitted signal travels in: a stable
// correlation id plus the kind-specific payload, ready for whatever
// transport the caller (httpapi, cmd, or a future on-chain bridge)
// chooses to ship it over.
type Event struct {
	ID      string    `json:"id"`
	Kind    EventKind `json:"kind"`
	Payload any       `json:"payload"`
}

// NewEvent stamps a fresh correlation id onto payload.
func NewEvent(kind EventKind, payload any) Event {
	return Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		Payload: payload,
	}
}

// RequestedPayload is the WithdrawalRequested payload, emitted by
// callers wrapping Queue.Enqueue (the core queue itself has no event
// bus; spec.md §1 leaves signal transport to the integrator).
type RequestedPayload struct {
	RequestID RequestID `json:"request_id"`
	Owner     Owner     `json:"owner"`
	CreatedAt uint64    `json:"created_at"`
}

// MarshalJSON serialises an Event via jsoniter as a JSON document with
// id, kind and payload fields.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event

	return jsonAPI.Marshal(alias(e))
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	type alias Event

	var a alias
	if err := jsonAPI.Unmarshal(data, &a); err != nil {
		return err
	}

	*e = Event(a)

	return nil
}
