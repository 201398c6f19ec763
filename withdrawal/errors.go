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

import "errors"

// Named error kinds (spec.md §7). Every mutating operation fails
// atomically with one of these, wrapped with call-site context via
// fmt.Errorf("...: %w", err).
var (
	// Domain violations.
	ErrZeroShareRate = errors.New("zero share rate")
	ErrZeroTimestamp = errors.New("zero timestamp")
	ErrZeroNAT       = errors.New("zero NAT amount")
	ErrEmptyBatches  = errors.New("empty batch list")

	// Range violations.
	ErrUnknownRequest   = errors.New("unknown request id")
	ErrReversedRange    = errors.New("request id range reversed")
	ErrHintOutOfRange   = errors.New("hint outside checkpoint range")
	ErrRequestNotInBook = errors.New("request id above last_request_id")

	// State violations.
	ErrCalcFinished       = errors.New("calculate_finalization_batches called with finished state")
	ErrCalcNoBudget       = errors.New("calculate_finalization_batches called with zero budget")
	ErrAlreadyFinalized   = errors.New("request already finalized")
	ErrNotYetFinalized    = errors.New("request not yet finalized")
	ErrAlreadyClaimed     = errors.New("request already claimed")
	ErrBatchOutOfSequence = errors.New("batch start below last_finalized_request_id")

	// Authorisation violations.
	ErrNotOwner      = errors.New("claim called by non-owner")
	ErrUnauthorized  = errors.New("caller lacks required role")
	ErrInvalidToken  = errors.New("invalid authorisation token")
	ErrRoleNotClaimed = errors.New("token does not carry required role claim")

	// Economic violations.
	ErrAmountExceedsRange = errors.New("too much NAT to finalize")
	ErrInsufficientNAT    = errors.New("custodied NAT balance below claim payout")
	ErrRecipientRefused   = errors.New("recipient refused NAT transfer")

	// Structural violations.
	ErrAlternationViolated = errors.New("batch alternation property violated")
	ErrInvalidHint         = errors.New("invalid hint")
)
