package client

import (
	"errors"
	"io"

	"gopkg.in/op/go-logging.v1"

	"dev.c0redev.chalresp/internal/crypto"
	"dev.c0redev.chalresp/internal/log"
	"dev.c0redev.chalresp/internal/proto"
	"dev.c0redev.chalresp/internal/solver"
	"dev.c0redev.chalresp/internal/transport"
)

// State of a session. Success, Failure and Error are terminal.
type State int

const (
	StateInit State = iota
	StateAwaitChallenge
	StateChallengeReceived
	StateResponseSent
	StateSuccess
	StateFailure
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitChallenge:
		return "await-challenge"
	case StateChallengeReceived:
		return "challenge-received"
	case StateResponseSent:
		return "response-sent"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal true for Success, Failure, Error.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure || s == StateError
}

// Cipher is the crypto engine contract; *crypto.Engine implements it.
type Cipher interface {
	Encrypt(plaintext []byte, key crypto.Key) (crypto.Buffer, crypto.IV, error)
	Decrypt(ciphertext []byte, key crypto.Key, iv crypto.IV) (crypto.Buffer, error)
}

// Config for one session.
type Config struct {
	Username string
	Key      crypto.Key
	// Cipher nil = crypto.NewEngine(nil).
	Cipher Cipher
	// LogBackend nil = discard.
	LogBackend *log.Backend
}

// Session runs one request/challenge/response/status round over conn.
// conn is established and closed by the caller. No deadlines are set: a silent peer blocks Run.
type Session struct {
	conn     io.ReadWriter
	username proto.Username
	key      crypto.Key
	cipher   Cipher
	log      *logging.Logger

	state     State
	err       error
	plaintext []byte
	challenge solver.Challenge
	result    uint64
}

// NewSession prepares a session in StateInit.
func NewSession(conn io.ReadWriter, cfg *Config) *Session {
	c := cfg.Cipher
	if c == nil {
		c = crypto.NewEngine(nil)
	}
	b := cfg.LogBackend
	if b == nil {
		b = log.Discard()
	}
	return &Session{
		conn:     conn,
		username: proto.NewUsername(cfg.Username),
		key:      cfg.Key,
		cipher:   c,
		log:      b.GetLogger("session"),
	}
}

// State current state.
func (s *Session) State() State { return s.state }

// Challenge decoded challenge (valid from ChallengeReceived on, unless decoding failed).
func (s *Session) Challenge() solver.Challenge { return s.challenge }

// Result computed answer (valid from ResponseSent on).
func (s *Session) Result() uint64 { return s.result }

// Run drives the session to a terminal state. Returns StateSuccess or StateFailure with a
// nil error, or StateError with an *Error. Calling Run again does no I/O.
func (s *Session) Run() (State, error) {
	for !s.state.Terminal() {
		var err *Error
		switch s.state {
		case StateInit:
			err = s.sendRequest()
		case StateAwaitChallenge:
			err = s.receiveChallenge()
		case StateChallengeReceived:
			err = s.sendResponse()
		case StateResponseSent:
			err = s.receiveStatus()
		}
		if err != nil {
			s.log.Errorf("%v", err)
			s.state, s.err = StateError, err
		}
	}
	return s.state, s.err
}

func (s *Session) transition(next State) {
	s.log.Debugf("%s -> %s", s.state, next)
	s.state = next
}

func (s *Session) fail(reason Reason, err error) *Error {
	return &Error{State: s.state, Reason: reason, Err: err}
}

func (s *Session) sendRequest() *Error {
	s.log.Notice("send request")
	b := proto.EncodeRequest(&proto.RequestFrame{Username: s.username})
	if err := transport.WriteExact(s.conn, b); err != nil {
		return s.fail(ReasonTransport, err)
	}
	s.transition(StateAwaitChallenge)
	return nil
}

func (s *Session) receiveChallenge() *Error {
	s.log.Notice("receive challenge")
	b, err := transport.ReadFrame(s.conn, proto.ChallengeSize)
	if err != nil {
		return s.fail(ReasonTransport, err)
	}
	f, err := proto.DecodeChallenge(b)
	if err != nil {
		if errors.Is(err, proto.ErrServerError) {
			return s.fail(ReasonServerReported, err)
		}
		return s.fail(ReasonProtocolViolation, err)
	}
	pt, err := s.cipher.Decrypt(f.Payload, s.key, crypto.IV(f.IV))
	if err != nil {
		return s.fail(ReasonCryptoFailure, err)
	}
	s.plaintext = pt.Bytes()
	s.transition(StateChallengeReceived)
	return nil
}

func (s *Session) sendResponse() *Error {
	c, err := solver.Decode(s.plaintext)
	if err != nil {
		return s.fail(ReasonProtocolViolation, err)
	}
	s.challenge = c
	result, err := c.Solve()
	if err != nil {
		return s.fail(ReasonArithmetic, err)
	}
	s.result = result
	s.log.Debugf("challenge %v = %d", c, result)

	ct, iv, err := s.cipher.Encrypt(proto.EncodeResult(result), s.key)
	if err != nil {
		return s.fail(ReasonCryptoFailure, err)
	}
	b, err := proto.EncodeResponse(&proto.ResponseFrame{Username: s.username, IV: iv, Payload: ct.Bytes()})
	if err != nil {
		return s.fail(ReasonProtocolViolation, err)
	}
	s.log.Notice("send challenge response")
	if err := transport.WriteExact(s.conn, b); err != nil {
		return s.fail(ReasonTransport, err)
	}
	s.transition(StateResponseSent)
	return nil
}

func (s *Session) receiveStatus() *Error {
	s.log.Notice("receive status")
	b, err := transport.ReadFrame(s.conn, proto.StatusSize)
	if err != nil {
		return s.fail(ReasonTransport, err)
	}
	f, err := proto.DecodeStatus(b)
	if err != nil {
		if errors.Is(err, proto.ErrServerError) {
			return s.fail(ReasonServerReported, err)
		}
		return s.fail(ReasonUnexpectedStatus, err)
	}
	if f.Code == proto.CodeSuccess {
		s.transition(StateSuccess)
	} else {
		s.transition(StateFailure)
	}
	return nil
}

// Run is NewSession(conn, cfg).Run().
func Run(conn io.ReadWriter, cfg *Config) (State, error) {
	return NewSession(conn, cfg).Run()
}
