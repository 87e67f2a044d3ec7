package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	ErrScalarTooLarge = errors.New("scalar exceeds maximum size")
)

// Reads one length-prefixed scalar from r.
//
// Returns a bare [io.EOF] only when the stream ends cleanly before any byte
// of the length header arrives; callers treat that as a benign end of
// stream. A stream that ends mid-header or mid-payload yields
// [io.ErrUnexpectedEOF]. A declared length above maxSize fails with
// [ErrScalarTooLarge] before any payload memory is allocated.
func ReadScalar(r io.Reader, maxSize uint32) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read scalar length: %w", err)
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxSize {
		return nil, fmt.Errorf("scalar of %d bytes (limit %d): %w", n, maxSize, ErrScalarTooLarge)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read scalar payload: %w", err)
	}

	return payload, nil
}

// Writes one length-prefixed scalar to w.
func WriteScalar(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("scalar of %d bytes: %w", len(payload), ErrScalarTooLarge)
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))

	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write scalar length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write scalar payload: %w", err)
	}

	return nil
}
