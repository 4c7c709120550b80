// Package crypto: AES-128-CBC + PKCS#7 for challenge/response payloads.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"gitlab.com/yawning/bsaes.git"
)

const (
	// KeySize AES-128 key (16 bytes).
	KeySize = 16
	// BlockSize AES block, also IV size.
	BlockSize = 16
	// MaxPlaintextSize keeps padded ciphertext within MaxCiphertextSize.
	MaxPlaintextSize = 96
	// MaxCiphertextSize payload ceiling on the wire.
	MaxCiphertextSize = 128
)

// ErrCrypto: any encrypt/decrypt failure (bad length, padding, rng).
var ErrCrypto = errors.New("crypto failure")

// Key: pre-shared session key.
type Key [KeySize]byte

// IV: one CBC block.
type IV [BlockSize]byte

// ParseKey takes 16 raw bytes (ASCII key as configured).
func ParseKey(s string) (Key, error) {
	var k Key
	if len(s) != KeySize {
		return k, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(s))
	}
	copy(k[:], s)
	return k, nil
}

// ParseKeyHex takes 32 hex chars.
func ParseKeyHex(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("key hex: %w", err)
	}
	if len(b) != KeySize {
		return k, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// Buffer: owned output of Encrypt/Decrypt. Zero value = failure sentinel (Len 0).
type Buffer struct {
	b []byte
}

// Bytes returns the buffer contents; caller owns them.
func (b Buffer) Bytes() []byte { return b.b }

// Len length of contents.
func (b Buffer) Len() int { return len(b.b) }

// Engine encrypts/decrypts; stateless apart from the rng, safe for concurrent use.
type Engine struct {
	rng io.Reader
}

// NewEngine uses rng for IVs; nil = crypto/rand.
func NewEngine(rng io.Reader) *Engine {
	if rng == nil {
		rng = rand.Reader
	}
	return &Engine{rng: rng}
}

// Encrypt pads plaintext (<= MaxPlaintextSize) and CBC-encrypts it under a fresh IV.
func (e *Engine) Encrypt(plaintext []byte, key Key) (Buffer, IV, error) {
	var iv IV
	if len(plaintext) > MaxPlaintextSize {
		return Buffer{}, iv, fmt.Errorf("%w: plaintext %d bytes exceeds %d", ErrCrypto, len(plaintext), MaxPlaintextSize)
	}
	if _, err := io.ReadFull(e.rng, iv[:]); err != nil {
		return Buffer{}, iv, fmt.Errorf("%w: iv: %v", ErrCrypto, err)
	}
	block, err := bsaes.NewCipher(key[:])
	if err != nil {
		return Buffer{}, iv, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	out := pad(plaintext)
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(out, out)
	return Buffer{b: out}, iv, nil
}

// Decrypt reverses Encrypt. On any failure returns the zero Buffer and ErrCrypto.
func (e *Engine) Decrypt(ciphertext []byte, key Key, iv IV) (Buffer, error) {
	n := len(ciphertext)
	if n == 0 || n%BlockSize != 0 || n > MaxCiphertextSize {
		return Buffer{}, fmt.Errorf("%w: ciphertext length %d", ErrCrypto, n)
	}
	block, err := bsaes.NewCipher(key[:])
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	out := make([]byte, n)
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(out, ciphertext)
	plain, ok := unpad(out)
	if !ok {
		return Buffer{}, fmt.Errorf("%w: bad padding", ErrCrypto)
	}
	return Buffer{b: plain}, nil
}

// pad PKCS#7; always adds 1..BlockSize bytes.
func pad(data []byte) []byte {
	padLen := BlockSize - len(data)%BlockSize
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

func unpad(data []byte) ([]byte, bool) {
	if len(data) == 0 {
		return nil, false
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > BlockSize || padLen > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, false
		}
	}
	return data[:len(data)-padLen], true
}
