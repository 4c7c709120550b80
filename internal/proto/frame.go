package proto

import "bytes"

// Username: fixed 16-byte field, <= 15 visible bytes, zero padded.
type Username [UsernameSize]byte

// NewUsername truncates name to 15 bytes and zero-pads.
func NewUsername(name string) Username {
	var u Username
	n := len(name)
	if n > UsernameSize-1 {
		n = UsernameSize - 1
	}
	copy(u[:], name[:n])
	return u
}

// String returns visible bytes (up to first zero).
func (u Username) String() string {
	if i := bytes.IndexByte(u[:], 0); i >= 0 {
		return string(u[:i])
	}
	return string(u[:])
}

// RequestFrame: client asks for a challenge ("105").
type RequestFrame struct {
	Username Username
}

// ChallengeFrame: encrypted challenge ("110"); Payload is the first Length bytes.
type ChallengeFrame struct {
	Username Username
	IV       [IVSize]byte
	Payload  []byte
}

// ResponseFrame: encrypted result ("115").
type ResponseFrame struct {
	Username Username
	IV       [IVSize]byte
	Payload  []byte
}

// StatusFrame: verdict ("205"/"210").
type StatusFrame struct {
	Code     Code
	Username Username
}
