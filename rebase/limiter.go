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

// Package rebase implements the rebase limiter: a small stateful
// helper the report pipeline consults at the finalization boundary to
// bound how much the post/pre share-rate may grow in one report
// (spec.md "Rebase-limiter (adjacent; brief)"). It is independent of
// package withdrawal; a finalize caller wires the two together.
package rebase

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	// ErrRebaseLimitOutOfRange is returned by Init when rebase_limit is
	// not in (0, UNLIMITED].
	ErrRebaseLimitOutOfRange = errors.New("rebase limit out of range")
	// ErrZeroPreTotals is returned by Init when either pre-total is zero,
	// which would make the share-rate growth bound meaningless.
	ErrZeroPreTotals = errors.New("zero pre-total pooled or pre-total shares")
)

// e27 mirrors withdrawal.E27 (the fixed-point scale share rates are
// carried at); duplicated here rather than imported so package rebase
// has no dependency on package withdrawal, matching spec.md's framing
// of the limiter as "adjacent but independent".
var e27 = computeE27()

func computeE27() *uint256.Int {
	v := uint256.NewInt(1)
	ten := uint256.NewInt(10)

	for i := 0; i < 27; i++ {
		v = new(uint256.Int).Mul(v, ten)
	}

	return v
}

// unlimited is 2^256 - 1, the "no cap" sentinel for rebase_limit.
var unlimited = new(uint256.Int).Sub(new(uint256.Int), uint256.NewInt(1))

// Limiter bounds the growth of post_total_pooled/pre_total_pooled
// relative to pre_total_shares over the course of one report.
type Limiter struct {
	preTotalPooled  *uint256.Int
	preTotalShares  *uint256.Int
	postTotalPooled *uint256.Int
	rebaseLimit     *uint256.Int
}

// Init starts a new limiter window. rebaseLimit must be in (0, UNLIMITED].
func Init(rebaseLimit, preTotalPooled, preTotalShares *uint256.Int) (*Limiter, error) {
	if rebaseLimit.IsZero() || rebaseLimit.Cmp(unlimited) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrRebaseLimitOutOfRange, rebaseLimit)
	}

	if preTotalPooled.IsZero() || preTotalShares.IsZero() {
		return nil, ErrZeroPreTotals
	}

	return &Limiter{
		preTotalPooled:  new(uint256.Int).Set(preTotalPooled),
		preTotalShares:  new(uint256.Int).Set(preTotalShares),
		postTotalPooled: new(uint256.Int).Set(preTotalPooled),
		rebaseLimit:     new(uint256.Int).Set(rebaseLimit),
	}, nil
}

// RaiseLimit decreases post_total_pooled, widening the headroom a
// withdrawal leaving the pool creates.
func (l *Limiter) RaiseLimit(amount *uint256.Int) {
	if amount.Cmp(l.postTotalPooled) >= 0 {
		l.postTotalPooled = new(uint256.Int)
		return
	}

	l.postTotalPooled = new(uint256.Int).Sub(l.postTotalPooled, amount)
}

// ConsumeLimit increases post_total_pooled by at most the amount that
// keeps post/pre share-rate growth within rebase_limit, returning the
// amount actually consumed.
func (l *Limiter) ConsumeLimit(amount *uint256.Int) *uint256.Int {
	headroom := l.headroom()

	consumed := amount
	if consumed.Cmp(headroom) > 0 {
		consumed = headroom
	}

	l.postTotalPooled = new(uint256.Int).Add(l.postTotalPooled, consumed)

	return consumed
}

// IsLimitReached reports whether no further growth is available this window.
func (l *Limiter) IsLimitReached() bool {
	return l.headroom().IsZero()
}

// SharesToBurnLimit derives the largest number of shares that may
// still be burned this window without post/pre growth exceeding
// rebase_limit, i.e. the share-equivalent of the remaining headroom at
// the pre-window share rate.
func (l *Limiter) SharesToBurnLimit() *uint256.Int {
	headroom := l.headroom()
	if headroom.IsZero() {
		return new(uint256.Int)
	}

	// shares = headroom * pre_total_shares / pre_total_pooled, the
	// inverse of the share-rate formula withdrawal.BatchRate applies
	// (rate = stk * E27 / shares), evaluated without the E27 scale since
	// this ratio is a plain pooled/shares rate, not the fixed-point one.
	shares, overflow := new(uint256.Int).MulDivOverflow(headroom, l.preTotalShares, l.preTotalPooled)
	if overflow {
		return new(uint256.Int).Set(unlimited)
	}

	return shares
}

// headroom returns the maximum further increase post_total_pooled may
// take on without post/pre growth exceeding rebase_limit:
//
//	(post_total_pooled + h) / pre_total_pooled <= 1 + rebase_limit/E27
//
// rearranged to avoid division before the bound check:
//
//	h <= pre_total_pooled * (E27 + rebase_limit) / E27 - post_total_pooled
func (l *Limiter) headroom() *uint256.Int {
	if l.rebaseLimit.Cmp(unlimited) == 0 {
		return new(uint256.Int).Set(unlimited)
	}

	scale := new(uint256.Int).Add(e27, l.rebaseLimit)

	// pre_total_pooled * scale can exceed 256 bits even though both
	// operands fit comfortably alone; MulDivOverflow carries the product
	// at full width rather than risk a silent wraparound through Mul.
	bound, overflow := new(uint256.Int).MulDivOverflow(l.preTotalPooled, scale, e27)
	if overflow {
		return new(uint256.Int).Set(unlimited)
	}

	if l.postTotalPooled.Cmp(bound) >= 0 {
		return new(uint256.Int)
	}

	return new(uint256.Int).Sub(bound, l.postTotalPooled)
}
