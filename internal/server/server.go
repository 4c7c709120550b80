// Package server: reference challenge server (one session per connection).
package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"dev.c0redev.chalresp/internal/crypto"
	"dev.c0redev.chalresp/internal/instrument"
	"dev.c0redev.chalresp/internal/log"
	"dev.c0redev.chalresp/internal/proto"
	"dev.c0redev.chalresp/internal/solver"
	"dev.c0redev.chalresp/internal/store"
	"dev.c0redev.chalresp/internal/transport"
)

// Verdicts.
const (
	VerdictSuccess = "success"
	VerdictFailure = "failure"
	VerdictError   = "error"
)

// ErrUnknownUser: request for a login with no key.
var ErrUnknownUser = errors.New("unknown user")

// KeyStore looks up pre-shared keys; *store.DB implements it.
type KeyStore interface {
	KeyFor(login string) (crypto.Key, bool, error)
}

// Journal records verdicts; *store.DB implements it.
type Journal interface {
	RecordAttempt(a *store.Attempt) error
}

// Server answers requests with encrypted challenges and checks responses.
type Server struct {
	keys    KeyStore
	journal Journal
	engine  *crypto.Engine
	metrics *instrument.Metrics
	log     *logging.Logger
	rng     io.Reader

	// NextChallenge overrides random challenges (tests).
	NextChallenge func() solver.Challenge

	wg sync.WaitGroup
}

// Opts optional collaborators; zero values are fine.
type Opts struct {
	Journal    Journal
	Metrics    *instrument.Metrics
	LogBackend *log.Backend
	Rand       io.Reader
}

// New creates a server over keys.
func New(keys KeyStore, opts Opts) *Server {
	b := opts.LogBackend
	if b == nil {
		b = log.Discard()
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.Reader
	}
	return &Server{
		keys:    keys,
		journal: opts.Journal,
		engine:  crypto.NewEngine(rng),
		metrics: opts.Metrics,
		log:     b.GetLogger("server"),
		rng:     rng,
	}
}

// randomOperator draws one of solver.Operators uniformly; bytes at or
// above the largest multiple of len(Operators) are redrawn.
func (s *Server) randomOperator() (byte, error) {
	n := len(solver.Operators)
	limit := 256 - 256%n
	var b [1]byte
	for {
		if _, err := io.ReadFull(s.rng, b[:]); err != nil {
			return 0, err
		}
		if int(b[0]) < limit {
			return solver.Operators[int(b[0])%n], nil
		}
	}
}

// randomChallenge: uniform operator and operands; divisor never zero.
func (s *Server) randomChallenge() (solver.Challenge, error) {
	op, err := s.randomOperator()
	if err != nil {
		return solver.Challenge{}, err
	}
	var b [8]byte
	if _, err := io.ReadFull(s.rng, b[:]); err != nil {
		return solver.Challenge{}, err
	}
	c := solver.Challenge{
		Op:    op,
		Left:  binary.BigEndian.Uint32(b[0:4]),
		Right: binary.BigEndian.Uint32(b[4:8]),
	}
	if (c.Op == solver.OpDiv || c.Op == solver.OpMod) && c.Right == 0 {
		c.Right = 1
	}
	return c, nil
}

// ServeConn runs one session on conn and returns the verdict.
// A 305 frame is sent (sized for the point the client is waiting at) for unknown users
// and malformed frames.
func (s *Server) ServeConn(conn io.ReadWriter) (string, error) {
	verdict, err := s.serve(conn)
	s.metrics.Verdict(verdict)
	return verdict, err
}

func (s *Server) serve(conn io.ReadWriter) (string, error) {
	b, err := transport.ReadFrame(conn, proto.RequestSize)
	if err != nil {
		return VerdictError, err
	}
	req, err := proto.DecodeRequest(b)
	if err != nil {
		_ = transport.WriteExact(conn, proto.EncodeError(proto.ChallengeSize, proto.Username{}))
		return VerdictError, err
	}
	login := req.Username.String()
	key, ok, err := s.keys.KeyFor(login)
	if err != nil || !ok {
		_ = transport.WriteExact(conn, proto.EncodeError(proto.ChallengeSize, req.Username))
		if err == nil {
			err = fmt.Errorf("%w: %q", ErrUnknownUser, login)
		}
		return VerdictError, err
	}

	var c solver.Challenge
	if s.NextChallenge != nil {
		c = s.NextChallenge()
	} else if c, err = s.randomChallenge(); err != nil {
		return VerdictError, err
	}
	ct, iv, err := s.engine.Encrypt(c.Encode(), key)
	if err != nil {
		return VerdictError, err
	}
	frame, err := proto.EncodeChallenge(&proto.ChallengeFrame{Username: req.Username, IV: iv, Payload: ct.Bytes()})
	if err != nil {
		return VerdictError, err
	}
	if err := transport.WriteExact(conn, frame); err != nil {
		return VerdictError, err
	}
	s.log.Debugf("%s: challenge %v", login, c)

	b, err = transport.ReadFrame(conn, proto.ResponseSize)
	if err != nil {
		return VerdictError, err
	}
	resp, err := proto.DecodeResponse(b)
	if err != nil {
		_ = transport.WriteExact(conn, proto.EncodeError(proto.StatusSize, req.Username))
		return VerdictError, err
	}

	verdict := VerdictFailure
	expected, solveErr := c.Solve()
	pt, err := s.engine.Decrypt(resp.Payload, key, crypto.IV(resp.IV))
	if err == nil && solveErr == nil {
		if subtle.ConstantTimeCompare(pt.Bytes(), proto.EncodeResult(expected)) == 1 {
			verdict = VerdictSuccess
		}
	}
	code := proto.CodeFailure
	if verdict == VerdictSuccess {
		code = proto.CodeSuccess
	}
	s.record(login, c, expected, verdict)
	s.log.Infof("%s: %v = %d: %s", login, c, expected, verdict)
	if err := transport.WriteExact(conn, proto.EncodeStatus(&proto.StatusFrame{Code: code, Username: req.Username})); err != nil {
		return verdict, err
	}
	return verdict, nil
}

func (s *Server) record(login string, c solver.Challenge, expected uint64, verdict string) {
	if s.journal == nil {
		return
	}
	a := &store.Attempt{Login: login, Op: string(c.Op), Left: c.Left, Right: c.Right, Expected: expected, Verdict: verdict}
	if err := s.journal.RecordAttempt(a); err != nil {
		s.log.Warningf("journal: %v", err)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	if _, err := s.ServeConn(conn); err != nil {
		s.log.Noticef("%v: %v", conn.RemoteAddr(), err)
	}
}

// Serve accepts on ln until it is closed; one goroutine per connection.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.handle(conn)
	}
}

// ServeQUIC accepts QUIC connections until ctx is done or the listener closes.
func (s *Server) ServeQUIC(ctx context.Context, ln *transport.QUICListener) error {
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.handle(conn)
	}
}

// Wait blocks until in-flight sessions finish.
func (s *Server) Wait() {
	s.wg.Wait()
}
