// Package solver decodes and evaluates arithmetic challenges.
package solver

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ChallengeSize op(1) + left(4) + right(4).
const ChallengeSize = 9

// Operators.
const (
	OpAdd byte = '+'
	OpSub byte = '-'
	OpMul byte = '*'
	OpDiv byte = '/'
	OpMod byte = '%'
)

// Operators lists the supported operators.
var Operators = []byte{OpAdd, OpSub, OpMul, OpDiv, OpMod}

var (
	ErrArithmetic         = errors.New("arithmetic error")
	ErrDivideByZero       = fmt.Errorf("%w: division by zero", ErrArithmetic)
	ErrMalformedChallenge = errors.New("malformed challenge")
)

// UnknownOperatorError: operator outside Operators.
type UnknownOperatorError struct {
	Op byte
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("%v: unknown operation %q", ErrArithmetic, e.Op)
}

func (e *UnknownOperatorError) Unwrap() error { return ErrArithmetic }

// Challenge: decoded plaintext.
type Challenge struct {
	Op    byte
	Left  uint32
	Right uint32
}

func (c Challenge) String() string {
	return fmt.Sprintf("%d %c %d", c.Left, c.Op, c.Right)
}

// Decode parses 9 bytes: op, left BE, right BE.
func Decode(b []byte) (Challenge, error) {
	if len(b) != ChallengeSize {
		return Challenge{}, fmt.Errorf("%w: %d bytes, want %d", ErrMalformedChallenge, len(b), ChallengeSize)
	}
	return Challenge{
		Op:    b[0],
		Left:  binary.BigEndian.Uint32(b[1:5]),
		Right: binary.BigEndian.Uint32(b[5:9]),
	}, nil
}

// Encode is the inverse of Decode (server side).
func (c Challenge) Encode() []byte {
	b := make([]byte, ChallengeSize)
	b[0] = c.Op
	binary.BigEndian.PutUint32(b[1:5], c.Left)
	binary.BigEndian.PutUint32(b[5:9], c.Right)
	return b
}

// Solve evaluates with both operands widened to 64 bits.
// Subtraction wraps modulo 2^64 when Right > Left.
func (c Challenge) Solve() (uint64, error) {
	l, r := uint64(c.Left), uint64(c.Right)
	switch c.Op {
	case OpAdd:
		return l + r, nil
	case OpSub:
		return l - r, nil
	case OpMul:
		return l * r, nil
	case OpDiv:
		if r == 0 {
			return 0, ErrDivideByZero
		}
		return l / r, nil
	case OpMod:
		if r == 0 {
			return 0, ErrDivideByZero
		}
		return l % r, nil
	default:
		return 0, &UnknownOperatorError{Op: c.Op}
	}
}

// Solve decodes b and evaluates it.
func Solve(b []byte) (uint64, error) {
	c, err := Decode(b)
	if err != nil {
		return 0, err
	}
	return c.Solve()
}
