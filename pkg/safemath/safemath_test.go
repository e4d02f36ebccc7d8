// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

package safemath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddU64Overflow(t *testing.T) {
	_, err := AddU64(math.MaxUint64, 1)
	require.ErrorIs(t, err, ErrOverflow)

	sum, err := AddU64(2, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(5), sum)
}

func TestSubU64Underflow(t *testing.T) {
	_, err := SubU64(1, 2)
	require.ErrorIs(t, err, ErrUnderflow)

	diff, err := SubU64(5, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(3), diff)
}

func TestMulU64Overflow(t *testing.T) {
	_, err := MulU64(math.MaxUint64, 2)
	require.ErrorIs(t, err, ErrOverflow)

	product, err := MulU64(6, 7)
	require.NoError(t, err)
	require.Equal(t, uint64(42), product)
}

func TestMulDivU64(t *testing.T) {
	// intermediate product (MaxUint64 * 2) overflows uint64 but the final
	// quotient does not.
	got, err := MulDivU64(math.MaxUint64, 2, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), got)

	_, err = MulDivU64(10, 5, 0)
	require.ErrorIs(t, err, ErrDivByZero)
}

func TestMulDivRoundUpU64(t *testing.T) {
	got, err := MulDivRoundUpU64(10, 1, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(4), got)

	exact, err := MulDivRoundUpU64(9, 1, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(3), exact)
}

func TestBpsOf(t *testing.T) {
	got, err := BpsOf(100_000, 250) // 2.5%
	require.NoError(t, err)
	require.Equal(t, uint64(2500), got)
}

func TestSumU64(t *testing.T) {
	total, err := SumU64(1, 2, 3, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(10), total)

	_, err = SumU64(math.MaxUint64, 1)
	require.ErrorIs(t, err, ErrOverflow)
}
