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

// Package collab holds the fixed-interface collaborators the
// withdrawal-queue core consumes but does not own: the STK token, the
// oracle, and the authorisation layer (spec.md §1, "treated as
// external collaborators whose interfaces are fixed in §6").
package collab

import (
	"context"

	"github.com/holiman/uint256"
)

// STKToken is the share/token bookkeeping collaborator. The queue core
// never holds STK balances itself and does not call this interface;
// callers of Enqueue and Finalize use it to move shares into and out of
// custody.
type STKToken interface {
	// SharesToToken converts a share amount to its STK-token value at
	// the current share rate.
	SharesToToken(ctx context.Context, shares *uint256.Int) (*uint256.Int, error)
	// TokenToShares converts an STK-token amount to shares at the
	// current share rate.
	TokenToShares(ctx context.Context, tokens *uint256.Int) (*uint256.Int, error)
	// LockSharesForWithdrawal transfers shares into withdrawal custody
	// on enqueue.
	LockSharesForWithdrawal(ctx context.Context, owner string, shares *uint256.Int) error
	// BurnLockedShares burns shares previously locked by
	// LockSharesForWithdrawal, called by the Finalize caller.
	BurnLockedShares(ctx context.Context, shares *uint256.Int) error
}
