package enumstore

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidValue is returned when a value cannot be represented by the
	// store's entry kind, such as a string containing a NUL byte.
	ErrInvalidValue = errors.New("enumstore: value not storable")
	// ErrInvalidMagic is returned when a value stream header does not start
	// with the expected magic number.
	ErrInvalidMagic = errors.New("enumstore: invalid magic number")
	// ErrInvalidVersion is returned when a value stream was written by an
	// unsupported format version.
	ErrInvalidVersion = errors.New("enumstore: unsupported version")
	// ErrUnknownCodec is returned when a value stream names a stream codec
	// this build does not know.
	ErrUnknownCodec = errors.New("enumstore: unknown stream codec")
	// ErrChecksumMismatch is returned when the payload checksum of a value
	// stream does not match its header.
	ErrChecksumMismatch = errors.New("enumstore: checksum mismatch")
)

// DecodeError indicates that a persisted value stream ended before a complete
// value could be read. It is recoverable: persisted data may come from
// partially written files, so the caller aborts just that load.
//
// Offset is the byte position of the failed read within the stream, Need the
// number of bytes required to decode the next value and Have the number of
// bytes that were actually available.
type DecodeError struct {
	Offset int
	Need   int
	Have   int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("enumstore: short value stream at offset %d: need %d bytes, have %d", e.Offset, e.Need, e.Have)
}
