package proto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUsernameTruncateAndPad(t *testing.T) {
	u := NewUsername("abcdefghijklmnopqrst") // 20 bytes
	want := append([]byte("abcdefghijklmno"), 0)
	if !bytes.Equal(u[:], want) {
		t.Fatalf("truncated: got %q", u[:])
	}
	if u.String() != "abcdefghijklmno" {
		t.Fatalf("String: %q", u.String())
	}

	u = NewUsername("bob")
	want = append([]byte("bob"), make([]byte, 13)...)
	if !bytes.Equal(u[:], want) {
		t.Fatalf("padded: got %q", u[:])
	}
	if len(u) != UsernameSize {
		t.Fatalf("size %d", len(u))
	}
}

func TestEncodeRequest(t *testing.T) {
	b := EncodeRequest(&RequestFrame{Username: NewUsername("alice")})
	if len(b) != RequestSize || RequestSize != 19 {
		t.Fatalf("request size %d", len(b))
	}
	if string(b[:3]) != "105" {
		t.Fatalf("code %q", b[:3])
	}
	dec, err := DecodeRequest(b)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Username.String() != "alice" {
		t.Fatalf("username %q", dec.Username.String())
	}
}

func TestEncodeDecodeChallenge(t *testing.T) {
	require := require.New(t)
	f := &ChallengeFrame{Username: NewUsername("alice"), Payload: bytes.Repeat([]byte{0xee}, 16)}
	for i := range f.IV {
		f.IV[i] = byte(i)
	}
	b, err := EncodeChallenge(f)
	require.NoError(err)
	require.Len(b, ChallengeSize)
	require.Equal(167, ChallengeSize)
	require.Equal([]byte{0, 0, 0, 16}, b[offLength:offPayload])

	dec, err := DecodeChallenge(b)
	require.NoError(err)
	require.Equal(f.IV, dec.IV)
	require.Equal(f.Payload, dec.Payload)
	require.Equal(f.Username, dec.Username)
}

func TestDecodeChallengeIgnoresPayloadTail(t *testing.T) {
	b, err := EncodeChallenge(&ChallengeFrame{Payload: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}})
	require.NoError(t, err)
	for i := offPayload + 16; i < len(b); i++ {
		b[i] = 0x5a
	}
	dec, err := DecodeChallenge(b)
	require.NoError(t, err)
	require.Len(t, dec.Payload, 16)
}

func TestDecodeChallengeServerError(t *testing.T) {
	b := EncodeError(ChallengeSize, NewUsername("alice"))
	// garbage length must not be looked at
	b[offLength] = 0xff
	_, err := DecodeChallenge(b)
	if !errors.Is(err, ErrServerError) {
		t.Fatalf("want ErrServerError, got %v", err)
	}
}

func TestDecodeChallengeUnexpectedCode(t *testing.T) {
	b := make([]byte, ChallengeSize)
	copy(b, "115")
	_, err := DecodeChallenge(b)
	require.ErrorIs(t, err, ErrUnexpectedCode)
	var uce *UnexpectedCodeError
	require.ErrorAs(t, err, &uce)
	require.Equal(t, Code("115"), uce.Code)
}

func TestDecodeChallengeLengthBounds(t *testing.T) {
	for _, n := range []uint32{MaxChallengePayload + 1, MaxPayloadSize, MaxPayloadSize + 1, 0xffffffff} {
		b := make([]byte, ChallengeSize)
		copy(b, CodeChallenge)
		b[offLength] = byte(n >> 24)
		b[offLength+1] = byte(n >> 16)
		b[offLength+2] = byte(n >> 8)
		b[offLength+3] = byte(n)
		_, err := DecodeChallenge(b)
		require.ErrorIs(t, err, ErrInvalidLength, "len %d", n)
	}
	_, err := EncodeChallenge(&ChallengeFrame{Payload: make([]byte, MaxChallengePayload+1)})
	require.ErrorIs(t, err, ErrInvalidLength)
}

func TestDecodeShortFrame(t *testing.T) {
	_, err := DecodeChallenge([]byte("110"))
	if !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("expected ErrInvalidFrame, got %v", err)
	}
	_, err = DecodeStatus(make([]byte, StatusSize+1))
	if !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("expected ErrInvalidFrame, got %v", err)
	}
}

func TestEncodeDecodeResponse(t *testing.T) {
	require := require.New(t)
	f := &ResponseFrame{Username: NewUsername("alice"), Payload: bytes.Repeat([]byte{7}, 16)}
	f.IV[0] = 9
	b, err := EncodeResponse(f)
	require.NoError(err)
	require.Len(b, ResponseSize)
	require.Equal("115", string(b[:3]))
	require.Equal(make([]byte, MaxPayloadSize-16), b[offPayload+16:])

	dec, err := DecodeResponse(b)
	require.NoError(err)
	require.Equal(f.Payload, dec.Payload)
	require.Equal(f.IV, dec.IV)

	_, err = EncodeResponse(&ResponseFrame{Payload: make([]byte, MaxPayloadSize+1)})
	require.ErrorIs(err, ErrInvalidLength)
}

func TestDecodeStatus(t *testing.T) {
	require := require.New(t)
	u := NewUsername("alice")
	for _, c := range []Code{CodeSuccess, CodeFailure} {
		f, err := DecodeStatus(EncodeStatus(&StatusFrame{Code: c, Username: u}))
		require.NoError(err)
		require.Equal(c, f.Code)
	}
	_, err := DecodeStatus(EncodeError(StatusSize, u))
	require.ErrorIs(err, ErrServerError)

	_, err = DecodeStatus(EncodeStatus(&StatusFrame{Code: "999", Username: u}))
	require.ErrorIs(err, ErrUnexpectedCode)
}

func TestEncodeResult(t *testing.T) {
	b := EncodeResult(42)
	if !bytes.Equal(b, []byte{0, 0, 0, 0, 0, 0, 0, 0x2a}) {
		t.Fatalf("got % x", b)
	}
	v, err := DecodeResult(b)
	if err != nil || v != 42 {
		t.Fatalf("DecodeResult: %d %v", v, err)
	}
	if _, err := DecodeResult(b[:7]); err == nil {
		t.Fatal("expected error on short result")
	}
}
