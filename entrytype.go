package enumstore

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"

	"golang.org/x/exp/constraints"

	"github.com/hupe1980/enumstore/internal/bufstore"
)

// refCountSize is the fixed entry header: a little-endian uint32 reference
// count preceding the payload.
const refCountSize = 4

// alignEntrySize rounds an entry size up to the store's allocation
// granularity. Allocation and later free-space accounting must both use the
// aligned size.
func alignEntrySize(size uint32) uint32 {
	return (size + bufstore.EntryAlignment - 1) &^ (bufstore.EntryAlignment - 1)
}

// EntryType defines one value kind of an enum store: its payload encoding,
// its total order and its external serialization format. A store is bound to
// exactly one EntryType at construction.
//
// Compare is a total order used for uniqueness and lookup. CompareFolded
// orders by a normalized (case-insensitive) transform and is only distinct
// from Compare for kinds where HasFold reports true; for all other kinds the
// two orders coincide.
type EntryType[T any] interface {
	// Size returns the encoded payload size of a value in bytes.
	Size(v T) uint32
	// FixedSize returns the minimum payload size of the kind.
	FixedSize() uint32
	// HasFold reports whether the kind supports a distinct folded ordering.
	HasFold() bool
	// ValidateValue reports whether v can be represented by the kind's
	// payload encoding. Store insertion rejects values that fail.
	ValidateValue(v T) error
	// EncodeValue writes the payload into dst, which holds at least Size(v)
	// bytes.
	EncodeValue(dst []byte, v T)
	// DecodeValue reads a payload back. src may extend past the payload;
	// variable-size kinds locate their own terminator.
	DecodeValue(src []byte) T
	// Compare orders two values; negative, zero or positive.
	Compare(a, b T) int
	// CompareFolded orders two values by their folded form only, without the
	// exact-order tiebreak.
	CompareFolded(a, b T) int
	// WriteValue appends the external representation of v to w.
	WriteValue(w io.Writer, v T) error
	// ReadValue decodes one external value from the front of src and returns
	// it together with the number of bytes consumed. A short src fails with
	// a *DecodeError instead of reading past the boundary.
	ReadValue(src []byte) (T, int, error)
}

// ---------------------------------------------------------------------------
// Integer kinds
// ---------------------------------------------------------------------------

type intType[T constraints.Signed] struct {
	width uint32
}

// Int8 returns the 8-bit integer entry type.
func Int8() EntryType[int8] { return intType[int8]{width: 1} }

// Int16 returns the 16-bit integer entry type.
func Int16() EntryType[int16] { return intType[int16]{width: 2} }

// Int32 returns the 32-bit integer entry type.
func Int32() EntryType[int32] { return intType[int32]{width: 4} }

// Int64 returns the 64-bit integer entry type.
func Int64() EntryType[int64] { return intType[int64]{width: 8} }

func (t intType[T]) Size(T) uint32         { return t.width }
func (t intType[T]) FixedSize() uint32     { return t.width }
func (t intType[T]) HasFold() bool         { return false }
func (t intType[T]) ValidateValue(T) error { return nil }

func (t intType[T]) EncodeValue(dst []byte, v T) {
	u := uint64(int64(v))
	for i := uint32(0); i < t.width; i++ {
		dst[i] = byte(u >> (8 * i))
	}
}

func (t intType[T]) DecodeValue(src []byte) T {
	var u uint64
	for i := uint32(0); i < t.width; i++ {
		u |= uint64(src[i]) << (8 * i)
	}
	// Shift through 64 bits to sign-extend narrow widths.
	shift := 64 - 8*t.width
	return T(int64(u<<shift) >> shift)
}

func (t intType[T]) Compare(a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (t intType[T]) CompareFolded(a, b T) int { return t.Compare(a, b) }

func (t intType[T]) WriteValue(w io.Writer, v T) error {
	var buf [8]byte
	t.EncodeValue(buf[:t.width], v)
	_, err := w.Write(buf[:t.width])
	return err
}

func (t intType[T]) ReadValue(src []byte) (T, int, error) {
	if uint32(len(src)) < t.width {
		var zero T
		return zero, 0, &DecodeError{Need: int(t.width), Have: len(src)}
	}
	return t.DecodeValue(src), int(t.width), nil
}

// ---------------------------------------------------------------------------
// Floating-point kinds
// ---------------------------------------------------------------------------

type floatType[T constraints.Float] struct {
	width uint32
}

// Float32 returns the 32-bit floating-point entry type.
func Float32() EntryType[float32] { return floatType[float32]{width: 4} }

// Float64 returns the 64-bit floating-point entry type.
func Float64() EntryType[float64] { return floatType[float64]{width: 8} }

func (t floatType[T]) Size(T) uint32         { return t.width }
func (t floatType[T]) FixedSize() uint32     { return t.width }
func (t floatType[T]) HasFold() bool         { return false }
func (t floatType[T]) ValidateValue(T) error { return nil }

func (t floatType[T]) EncodeValue(dst []byte, v T) {
	// Raw IEEE754 bits so round trips are bit-exact, NaN payloads included.
	var u uint64
	if t.width == 4 {
		u = uint64(math.Float32bits(float32(v)))
	} else {
		u = math.Float64bits(float64(v))
	}
	for i := uint32(0); i < t.width; i++ {
		dst[i] = byte(u >> (8 * i))
	}
}

func (t floatType[T]) DecodeValue(src []byte) T {
	var u uint64
	for i := uint32(0); i < t.width; i++ {
		u |= uint64(src[i]) << (8 * i)
	}
	if t.width == 4 {
		return T(math.Float32frombits(uint32(u)))
	}
	return T(math.Float64frombits(u))
}

// Compare totally orders floating-point values so the dictionary stays a
// valid ordered structure: two NaNs compare equal, a NaN sorts below every
// non-NaN, everything else follows the numeric order.
func (t floatType[T]) Compare(a, b T) int {
	aNaN := math.IsNaN(float64(a))
	bNaN := math.IsNaN(float64(b))
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return -1
	case bNaN:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (t floatType[T]) CompareFolded(a, b T) int { return t.Compare(a, b) }

func (t floatType[T]) WriteValue(w io.Writer, v T) error {
	var buf [8]byte
	t.EncodeValue(buf[:t.width], v)
	_, err := w.Write(buf[:t.width])
	return err
}

func (t floatType[T]) ReadValue(src []byte) (T, int, error) {
	if uint32(len(src)) < t.width {
		var zero T
		return zero, 0, &DecodeError{Need: int(t.width), Have: len(src)}
	}
	return t.DecodeValue(src), int(t.width), nil
}

// ---------------------------------------------------------------------------
// String kind
// ---------------------------------------------------------------------------

type stringType struct{}

// String returns the variable-size, NUL-terminated string entry type. It is
// the only kind with a folded (case-insensitive) secondary ordering.
func String() EntryType[string] { return stringType{} }

func (stringType) Size(v string) uint32 {
	return uint32(len(v)) + 1
}

func (stringType) FixedSize() uint32 { return 1 }
func (stringType) HasFold() bool     { return true }

// ValidateValue rejects strings containing a NUL byte. The payload encoding
// is NUL-terminated, so such a string would decode as a shorter value and
// break the one-entry-per-value invariant.
func (stringType) ValidateValue(v string) error {
	if strings.IndexByte(v, 0) >= 0 {
		return fmt.Errorf("%w: string contains a NUL byte", ErrInvalidValue)
	}
	return nil
}

func (stringType) EncodeValue(dst []byte, v string) {
	n := copy(dst, v)
	dst[n] = 0
}

func (stringType) DecodeValue(src []byte) string {
	end := bytes.IndexByte(src, 0)
	if end < 0 {
		panic(fmt.Sprintf("enumstore: unterminated string entry of %d bytes", len(src)))
	}
	return string(src[:end])
}

func (stringType) Compare(a, b string) int {
	return strings.Compare(a, b)
}

// CompareFolded orders by the lower-cased form only. Values that fold
// identically compare equal here; the dictionary breaks those ties with the
// exact order so they form a contiguous range.
func (stringType) CompareFolded(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func (stringType) WriteValue(w io.Writer, v string) error {
	if _, err := io.WriteString(w, v); err != nil {
		return err
	}
	_, err := w.Write([]byte{0})
	return err
}

func (stringType) ReadValue(src []byte) (string, int, error) {
	if len(src) < 1 {
		return "", 0, &DecodeError{Need: 1, Have: len(src)}
	}
	end := bytes.IndexByte(src, 0)
	if end < 0 {
		return "", 0, &DecodeError{Need: len(src) + 1, Have: len(src)}
	}
	return string(src[:end]), end + 1, nil
}
