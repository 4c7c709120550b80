package solver

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSolve(t *testing.T) {
	cases := []struct {
		c    Challenge
		want uint64
	}{
		{Challenge{'+', 10, 32}, 42},
		{Challenge{'*', 6, 7}, 42},
		{Challenge{'-', 50, 8}, 42},
		{Challenge{'/', 85, 2}, 42},
		{Challenge{'%', 100, 58}, 42},
		{Challenge{'+', math.MaxUint32, math.MaxUint32}, 2 * uint64(math.MaxUint32)},
		{Challenge{'*', math.MaxUint32, math.MaxUint32}, uint64(math.MaxUint32) * uint64(math.MaxUint32)},
		{Challenge{'-', 0, 1}, math.MaxUint64},
		{Challenge{'-', 3, 5}, math.MaxUint64 - 1},
		{Challenge{'/', 7, 0xffffffff}, 0},
	}
	for _, tc := range cases {
		got, err := tc.c.Solve()
		require.NoError(t, err, tc.c.String())
		require.Equal(t, tc.want, got, tc.c.String())
	}
}

func TestSolveDivideByZero(t *testing.T) {
	for _, op := range []byte{OpDiv, OpMod} {
		_, err := Challenge{Op: op, Left: 9, Right: 0}.Solve()
		require.ErrorIs(t, err, ErrDivideByZero)
		require.ErrorIs(t, err, ErrArithmetic)
	}
}

func TestSolveUnknownOperator(t *testing.T) {
	_, err := Challenge{Op: '^', Left: 2, Right: 3}.Solve()
	var uoe *UnknownOperatorError
	require.True(t, errors.As(err, &uoe))
	require.Equal(t, byte('^'), uoe.Op)
	require.ErrorIs(t, err, ErrArithmetic)
}

func TestDecode(t *testing.T) {
	b := []byte{'+', 0, 0, 0, 10, 0, 0, 0, 32}
	c, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, Challenge{Op: '+', Left: 10, Right: 32}, c)
	require.Equal(t, b, c.Encode())

	v, err := Solve(b)
	require.NoError(t, err)
	require.EqualValues(t, 42, v)

	_, err = Decode(b[:8])
	require.ErrorIs(t, err, ErrMalformedChallenge)
	_, err = Solve(append(b, 0))
	require.ErrorIs(t, err, ErrMalformedChallenge)
}

func TestDecodeNetworkOrder(t *testing.T) {
	c, err := Decode([]byte{'*', 0x01, 0x02, 0x03, 0x04, 0xa0, 0xb0, 0xc0, 0xd0})
	require.NoError(t, err)
	require.Equal(t, uint32(0x01020304), c.Left)
	require.Equal(t, uint32(0xa0b0c0d0), c.Right)
}
