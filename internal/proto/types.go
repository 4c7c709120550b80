package proto

// Code: 3-byte ASCII command/status on wire.
type Code string

const (
	CodeRequest   Code = "105"
	CodeChallenge Code = "110"
	CodeResponse  Code = "115"
	CodeSuccess   Code = "205"
	CodeFailure   Code = "210"
	CodeError     Code = "305" // server-side error, valid at either receive point
)

// Field sizes.
const (
	CodeSize     = 3
	UsernameSize = 16
	IVSize       = 16
	LengthSize   = 4
	// MaxPayloadSize payload area of challenge/response frames.
	MaxPayloadSize = 128
	// MaxChallengePayload accepted ciphertext length (pre-encryption bound).
	MaxChallengePayload = 96
	// ResultSize response plaintext (uint64 BE).
	ResultSize = 8
)

// HeaderSize code + username; whole request and status frames.
const HeaderSize = CodeSize + UsernameSize

// Frame sizes, fixed by direction and code.
const (
	RequestSize   = HeaderSize
	StatusSize    = HeaderSize
	ChallengeSize = HeaderSize + IVSize + LengthSize + MaxPayloadSize // 167
	ResponseSize  = ChallengeSize
)

// Offsets inside challenge/response frames.
const (
	offIV      = HeaderSize
	offLength  = offIV + IVSize
	offPayload = offLength + LengthSize
)
