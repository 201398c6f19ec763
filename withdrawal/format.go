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
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// shareRateExponent is the fixed-point scale share rates are carried
// at (spec.md §9: "share rates use a fixed 10^27 scale").
const shareRateExponent = 27

// FormatShareRate renders a raw E27-scaled share rate as a
// human-readable decimal string, e.g. for the CLI's `status` and
// `monitor` subcommands. It never loses precision: shopspring/decimal
// carries the full uint256 value through its underlying big.Int rather
// than routing through float64.
func FormatShareRate(rate *uint256.Int) string {
	if rate == nil {
		return "0"
	}

	d := decimal.NewFromBigInt(rate.ToBig(), -shareRateExponent)

	return d.String()
}

// FormatNAT renders a raw NAT/STK base-unit amount at the given
// display exponent (e.g. 18 for an 18-decimal token), matching the
// precision guarantee FormatShareRate makes.
func FormatNAT(amount *uint256.Int, exponent int32) string {
	if amount == nil {
		return "0"
	}

	d := decimal.NewFromBigInt(amount.ToBig(), -exponent)

	return d.String()
}
