package transport

import (
	"errors"
	"fmt"
	"io"
)

// ErrUnexpectedClose: peer closed (zero-length read) before the frame was complete.
var ErrUnexpectedClose = errors.New("connection closed unexpectedly")

// ReadExact fills buf, looping over short reads.
func ReadExact(r io.Reader, buf []byte) error {
	got := 0
	for got < len(buf) {
		n, err := r.Read(buf[got:])
		got += n
		if got == len(buf) {
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("recv: %w (%d of %d bytes)", ErrUnexpectedClose, got, len(buf))
			}
			return fmt.Errorf("recv: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("recv: %w (%d of %d bytes)", ErrUnexpectedClose, got, len(buf))
		}
	}
	return nil
}

// WriteExact writes all of buf, looping over short writes.
func WriteExact(w io.Writer, buf []byte) error {
	sent := 0
	for sent < len(buf) {
		n, err := w.Write(buf[sent:])
		sent += n
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("send: %w", io.ErrShortWrite)
		}
	}
	return nil
}

// ReadFrame reads exactly size bytes.
func ReadFrame(r io.Reader, size int) ([]byte, error) {
	b := make([]byte, size)
	if err := ReadExact(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
