// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package safemath is the checked-arithmetic layer every ledger, clearing,
// and allocation computation in this core runs through. Quantities and quote
// amounts are carried as uint64 at the API boundary (spec units: Wh and
// micro-quote) but every multiply/divide intermediate is widened through
// uint256.Int so a seller-count * quantity product can never silently wrap
// before it is range-checked back down to uint64.
package safemath

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrOverflow is returned when a sum or product would not fit in uint64.
	ErrOverflow = errors.New("safemath: arithmetic overflow")
	// ErrUnderflow is returned when a subtraction would go negative.
	ErrUnderflow = errors.New("safemath: arithmetic underflow")
	// ErrDivByZero is returned by MulDiv when the divisor is zero.
	ErrDivByZero = errors.New("safemath: division by zero")
)

// AddU64 computes a+b, failing on overflow rather than wrapping.
func AddU64(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// SubU64 computes a-b, failing if b > a.
func SubU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// MulU64 computes a*b via uint256 so the intermediate product can exceed
// 64 bits without wrapping before the final range check.
func MulU64(a, b uint64) (uint64, error) {
	x := new(uint256.Int).SetUint64(a)
	y := new(uint256.Int).SetUint64(b)
	product := new(uint256.Int).Mul(x, y)
	if !product.IsUint64() {
		return 0, ErrOverflow
	}
	return product.Uint64(), nil
}

// MulDivU64 computes floor(a*b/d) via a uint256 intermediate, so a numerator
// that overflows 64 bits still yields a result when every operand and the
// final result fit. BpsOf and the slashing penalty in pkg/delivery use it.
func MulDivU64(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivByZero
	}
	x := new(uint256.Int).SetUint64(a)
	y := new(uint256.Int).SetUint64(b)
	denom := new(uint256.Int).SetUint64(d)

	product := new(uint256.Int).Mul(x, y)
	quotient := new(uint256.Int).Div(product, denom)
	if !quotient.IsUint64() {
		return 0, ErrOverflow
	}
	return quotient.Uint64(), nil
}

// MulDivRoundUpU64 computes ceil(a*b/d), used when rounding against the
// protocol (e.g. quote amount owed) so dust never accrues to a participant's
// advantage.
func MulDivRoundUpU64(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivByZero
	}
	x := new(uint256.Int).SetUint64(a)
	y := new(uint256.Int).SetUint64(b)
	denom := new(uint256.Int).SetUint64(d)

	product := new(uint256.Int).Mul(x, y)
	quotient, rem := new(uint256.Int).DivMod(product, denom, new(uint256.Int))
	if !rem.IsZero() {
		quotient.AddUint64(quotient, 1)
	}
	if !quotient.IsUint64() {
		return 0, ErrOverflow
	}
	return quotient.Uint64(), nil
}

// BpsOf computes floor(amount * bps / 10000), the fee/penalty-rate pattern
// used by pkg/allocation and pkg/engine.
func BpsOf(amount uint64, bps uint32) (uint64, error) {
	return MulDivU64(amount, uint64(bps), 10000)
}

// SumU64 adds a slice of uint64 values, failing closed on overflow. Used by
// the Invariant Guard to total vault balances across a batch.
func SumU64(values ...uint64) (uint64, error) {
	var total uint64
	for _, v := range values {
		var err error
		total, err = AddU64(total, v)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
