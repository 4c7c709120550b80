package client

import "fmt"

// Reason classifies a fatal session error.
type Reason string

const (
	ReasonTransport         Reason = "transport"
	ReasonServerReported    Reason = "server-reported"
	ReasonProtocolViolation Reason = "protocol-violation"
	ReasonCryptoFailure     Reason = "crypto-failure"
	ReasonArithmetic        Reason = "arithmetic"
	ReasonUnexpectedStatus  Reason = "unexpected-status"
)

// Error: terminal Error state. State is where the session was when it failed.
type Error struct {
	State  State
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Reason, e.State, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
