package enumstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	// MagicNumber identifies enumstore value stream files (ASCII: "ENU1").
	MagicNumber = 0x454E5531
	// FormatVersion is the current value stream format version (v1.0.0).
	FormatVersion = 0x00010000

	// streamHeaderSize is the fixed header in front of a wrapped value
	// stream: magic u32, version u32, codec u8, 3 pad bytes, payload length
	// u64, CRC32 of the (compressed) payload u32. All little-endian.
	streamHeaderSize = 24
)

// WriteValues appends the external representation of each indexed value to
// the writer, in the given index order. Order is caller-significant — it
// usually matches the persisted attribute row order, not dictionary order.
// The stream carries no count prefix; the caller reads back as many values
// as it wrote.
func (s *EnumStore[T]) WriteValues(w io.Writer, idxs []Index) error {
	for _, idx := range idxs {
		if err := s.et.WriteValue(w, s.GetValue(idx)); err != nil {
			return fmt.Errorf("enumstore: write value: %w", err)
		}
	}
	return nil
}

// ValueReader decodes a bare value stream produced by WriteValues. Next
// returns io.EOF once the stream is exhausted and a *DecodeError carrying
// offset and expected-vs-available sizes when the stream ends mid-value.
type ValueReader[T any] struct {
	et   EntryType[T]
	data []byte
	off  int
}

// NewValueReader creates a ValueReader over a bare value stream. The entry
// type must match the one the stream was written with.
func NewValueReader[T any](et EntryType[T], data []byte) *ValueReader[T] {
	return &ValueReader[T]{et: et, data: data}
}

// Next decodes the next value.
func (r *ValueReader[T]) Next() (T, error) {
	var zero T
	if r.off == len(r.data) {
		return zero, io.EOF
	}
	v, n, err := r.et.ReadValue(r.data[r.off:])
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.Offset = r.off
		}
		return zero, err
	}
	r.off += n
	return v, nil
}

// Offset returns the number of stream bytes consumed so far.
func (r *ValueReader[T]) Offset() int {
	return r.off
}

// SaveValues writes a self-describing value stream: a fixed header with
// magic, version, codec id, payload length and checksum, followed by the
// WriteValues stream passed through the codec. LoadValues is its inverse.
func (s *EnumStore[T]) SaveValues(w io.Writer, idxs []Index, codec StreamCodec) error {
	if codec == nil {
		codec = Raw
	}

	var payload bytes.Buffer
	cw, err := codec.newWriter(&payload)
	if err != nil {
		return err
	}
	if err := s.WriteValues(cw, idxs); err != nil {
		cw.Close()
		return err
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("enumstore: close %s stream: %w", codec.Name(), err)
	}

	var hdr [streamHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], MagicNumber)
	binary.LittleEndian.PutUint32(hdr[4:8], FormatVersion)
	hdr[8] = codec.id()
	binary.LittleEndian.PutUint64(hdr[12:20], uint64(payload.Len()))
	binary.LittleEndian.PutUint32(hdr[20:24], crc32.ChecksumIEEE(payload.Bytes()))

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(payload.Bytes())
	return err
}

// LoadValues validates and decodes a stream written by SaveValues, returning
// the values in stream order. Errors are recoverable: bad external data
// aborts just this load, never the process.
func (s *EnumStore[T]) LoadValues(data []byte) ([]T, error) {
	raw, err := decodeStream(data)
	if err != nil {
		return nil, err
	}

	r := NewValueReader(s.et, raw)
	var out []T
	for {
		v, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

func decodeStream(data []byte) ([]byte, error) {
	if len(data) < streamHeaderSize {
		return nil, &DecodeError{Need: streamHeaderSize, Have: len(data)}
	}
	if binary.LittleEndian.Uint32(data[0:4]) != MagicNumber {
		return nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != FormatVersion {
		return nil, fmt.Errorf("%w: %#08x", ErrInvalidVersion, v)
	}
	codec, err := codecByID(data[8])
	if err != nil {
		return nil, err
	}

	payloadLen := binary.LittleEndian.Uint64(data[12:20])
	if uint64(len(data)-streamHeaderSize) < payloadLen {
		return nil, &DecodeError{
			Offset: streamHeaderSize,
			Need:   int(payloadLen),
			Have:   len(data) - streamHeaderSize,
		}
	}
	payload := data[streamHeaderSize : streamHeaderSize+int(payloadLen)]
	if crc32.ChecksumIEEE(payload) != binary.LittleEndian.Uint32(data[20:24]) {
		return nil, ErrChecksumMismatch
	}

	cr, err := codec.newReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer cr.Close()

	raw, err := io.ReadAll(cr)
	if err != nil {
		return nil, fmt.Errorf("enumstore: decompress %s stream: %w", codec.Name(), err)
	}
	return raw, nil
}

// StreamCodec compresses the payload of a wrapped value stream. The set is
// closed; the codec id is part of the persisted format.
type StreamCodec interface {
	// Name returns the codec name for diagnostics.
	Name() string

	id() byte
	newWriter(w io.Writer) (io.WriteCloser, error)
	newReader(r io.Reader) (io.ReadCloser, error)
}

var (
	// Raw stores the value stream uncompressed.
	Raw StreamCodec = rawCodec{}
	// LZ4 compresses the value stream with LZ4 frames; cheap and fast.
	LZ4 StreamCodec = lz4Codec{}
	// Zstd compresses the value stream with zstandard; better ratios for
	// large string dictionaries.
	Zstd StreamCodec = zstdCodec{}
)

const (
	codecIDRaw byte = iota
	codecIDLZ4
	codecIDZstd
)

func codecByID(id byte) (StreamCodec, error) {
	switch id {
	case codecIDRaw:
		return Raw, nil
	case codecIDLZ4:
		return LZ4, nil
	case codecIDZstd:
		return Zstd, nil
	default:
		return nil, fmt.Errorf("%w: id %d", ErrUnknownCodec, id)
	}
}

type rawCodec struct{}

func (rawCodec) Name() string { return "raw" }
func (rawCodec) id() byte     { return codecIDRaw }

func (rawCodec) newWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (rawCodec) newReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

type lz4Codec struct{}

func (lz4Codec) Name() string { return "lz4" }
func (lz4Codec) id() byte     { return codecIDLZ4 }

func (lz4Codec) newWriter(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

func (lz4Codec) newReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

type zstdCodec struct{}

func (zstdCodec) Name() string { return "zstd" }
func (zstdCodec) id() byte     { return codecIDZstd }

func (zstdCodec) newWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

func (zstdCodec) newReader(r io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}
