package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidFrame   = errors.New("invalid frame")
	ErrInvalidLength  = errors.New("invalid payload length")
	ErrServerError    = errors.New("server reported error")
	ErrUnexpectedCode = errors.New("unexpected code")
)

// UnexpectedCodeError: code outside the set valid for this point in the session.
type UnexpectedCodeError struct {
	Code Code
	Want []Code
}

func (e *UnexpectedCodeError) Error() string {
	want := make([]string, len(e.Want))
	for i, c := range e.Want {
		want[i] = string(c)
	}
	return fmt.Sprintf("unexpected code %q, want %s", string(e.Code), strings.Join(want, "|"))
}

func (e *UnexpectedCodeError) Unwrap() error { return ErrUnexpectedCode }

func codeOf(b []byte) Code {
	return Code(b[:CodeSize])
}

// checkCode: size first, then 305 short-circuit, then expected set.
func checkCode(b []byte, size int, want ...Code) (Code, error) {
	if len(b) != size {
		return "", fmt.Errorf("%w: %d bytes, want %d", ErrInvalidFrame, len(b), size)
	}
	c := codeOf(b)
	if c == CodeError {
		return c, ErrServerError
	}
	for _, w := range want {
		if c == w {
			return c, nil
		}
	}
	return c, &UnexpectedCodeError{Code: c, Want: want}
}

func putHeader(b []byte, c Code, u Username) {
	copy(b[:CodeSize], string(c))
	copy(b[CodeSize:HeaderSize], u[:])
}

func username(b []byte) Username {
	var u Username
	copy(u[:], b[CodeSize:HeaderSize])
	return u
}

// EncodeRequest: "105" + username, RequestSize bytes.
func EncodeRequest(f *RequestFrame) []byte {
	b := make([]byte, RequestSize)
	putHeader(b, CodeRequest, f.Username)
	return b
}

// DecodeRequest parses a request (server side).
func DecodeRequest(b []byte) (*RequestFrame, error) {
	if _, err := checkCode(b, RequestSize, CodeRequest); err != nil {
		return nil, err
	}
	return &RequestFrame{Username: username(b)}, nil
}

func encodeSealed(c Code, u Username, iv [IVSize]byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, len(payload))
	}
	b := make([]byte, ChallengeSize)
	putHeader(b, c, u)
	copy(b[offIV:offLength], iv[:])
	binary.BigEndian.PutUint32(b[offLength:offPayload], uint32(len(payload)))
	copy(b[offPayload:], payload)
	return b, nil
}

// decodeSealed extracts iv + payload[:len]; len checked against limit.
func decodeSealed(b []byte, limit uint32) (iv [IVSize]byte, payload []byte, err error) {
	copy(iv[:], b[offIV:offLength])
	n := binary.BigEndian.Uint32(b[offLength:offPayload])
	if n > MaxPayloadSize || n > limit {
		return iv, nil, fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}
	payload = append([]byte(nil), b[offPayload:offPayload+int(n)]...)
	return iv, payload, nil
}

// EncodeChallenge: "110" frame, always ChallengeSize bytes (server side).
func EncodeChallenge(f *ChallengeFrame) ([]byte, error) {
	if len(f.Payload) > MaxChallengePayload {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, len(f.Payload))
	}
	return encodeSealed(CodeChallenge, f.Username, f.IV, f.Payload)
}

// DecodeChallenge parses a challenge; 305 returns ErrServerError before any field is read.
func DecodeChallenge(b []byte) (*ChallengeFrame, error) {
	if _, err := checkCode(b, ChallengeSize, CodeChallenge); err != nil {
		return nil, err
	}
	iv, payload, err := decodeSealed(b, MaxChallengePayload)
	if err != nil {
		return nil, err
	}
	return &ChallengeFrame{Username: username(b), IV: iv, Payload: payload}, nil
}

// EncodeResponse: "115" frame, ResponseSize bytes; unused payload tail zero.
func EncodeResponse(f *ResponseFrame) ([]byte, error) {
	return encodeSealed(CodeResponse, f.Username, f.IV, f.Payload)
}

// DecodeResponse parses a response (server side).
func DecodeResponse(b []byte) (*ResponseFrame, error) {
	if _, err := checkCode(b, ResponseSize, CodeResponse); err != nil {
		return nil, err
	}
	iv, payload, err := decodeSealed(b, MaxPayloadSize)
	if err != nil {
		return nil, err
	}
	return &ResponseFrame{Username: username(b), IV: iv, Payload: payload}, nil
}

// EncodeStatus: "205"/"210" + username.
func EncodeStatus(f *StatusFrame) []byte {
	b := make([]byte, StatusSize)
	putHeader(b, f.Code, f.Username)
	return b
}

// DecodeStatus parses a status; 305 -> ErrServerError, not 205/210 -> UnexpectedCodeError.
func DecodeStatus(b []byte) (*StatusFrame, error) {
	c, err := checkCode(b, StatusSize, CodeSuccess, CodeFailure)
	if err != nil {
		return nil, err
	}
	return &StatusFrame{Code: c, Username: username(b)}, nil
}

// EncodeError: "305" frame padded to size (ChallengeSize or StatusSize, as the peer expects).
func EncodeError(size int, u Username) []byte {
	if size < HeaderSize {
		size = HeaderSize
	}
	b := make([]byte, size)
	putHeader(b, CodeError, u)
	return b
}

// EncodeResult uint64 -> 8 bytes BE (response plaintext).
func EncodeResult(v uint64) []byte {
	b := make([]byte, ResultSize)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// DecodeResult 8 bytes BE -> uint64.
func DecodeResult(b []byte) (uint64, error) {
	if len(b) != ResultSize {
		return 0, fmt.Errorf("%w: result %d bytes", ErrInvalidLength, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
