package bufstore

import (
	"errors"
	"fmt"
)

const (
	// EntryAlignment is the allocation granularity. Every span size and
	// offset is a multiple of it.
	EntryAlignment = 4
	// MaxBuffers limits the number of buffers a store can hold.
	MaxBuffers = 256
	// MaxBufferSize is the maximum capacity of a single buffer. Together
	// with MaxBuffers it bounds the addressable space of a packed
	// (buffer, offset) handle.
	MaxBufferSize = 64 << 20
)

var (
	// ErrMaxBuffersExceeded is returned when the store would exceed MaxBuffers.
	ErrMaxBuffersExceeded = errors.New("bufstore: max buffers exceeded")
	// ErrSpanTooLarge is returned when a single span cannot fit any buffer.
	ErrSpanTooLarge = errors.New("bufstore: span exceeds max buffer size")
)

type buffer struct {
	data     []byte
	writePos uint32
	dead     uint32
	released bool
}

// Store is a growable set of append-only entry buffers.
type Store struct {
	buffers     []*buffer
	active      int // index into buffers, -1 when sealed
	initialSize uint32
}

// New creates a Store. The first buffer is allocated lazily with the given
// capacity; later buffers grow geometrically up to MaxBufferSize.
func New(initialSize uint32) *Store {
	if initialSize < 2*EntryAlignment {
		initialSize = 2 * EntryAlignment
	}
	if initialSize > MaxBufferSize {
		initialSize = MaxBufferSize
	}
	return &Store{
		active:      -1,
		initialSize: alignUp(initialSize),
	}
}

func alignUp(n uint32) uint32 {
	return (n + EntryAlignment - 1) &^ (EntryAlignment - 1)
}

// Alloc hands out a span of exactly size bytes and returns its buffer id,
// byte offset and the writable span. The size must already be aligned to
// EntryAlignment; an unaligned size means the caller skipped alignEntrySize
// and its later Free accounting would not match.
func (s *Store) Alloc(size uint32) (bufferID, offset uint32, span []byte, err error) {
	if size == 0 || size%EntryAlignment != 0 {
		panic(fmt.Sprintf("bufstore: unaligned span size %d", size))
	}
	if size > MaxBufferSize-EntryAlignment {
		return 0, 0, nil, ErrSpanTooLarge
	}

	b := s.activeBuffer()
	if b == nil || uint32(len(b.data))-b.writePos < size {
		if err := s.addBuffer(size); err != nil {
			return 0, 0, nil, err
		}
		b = s.activeBuffer()
	}

	offset = b.writePos
	b.writePos += size
	return uint32(s.active), offset, b.data[offset : offset+size : offset+size], nil
}

func (s *Store) activeBuffer() *buffer {
	if s.active < 0 {
		return nil
	}
	return s.buffers[s.active]
}

func (s *Store) addBuffer(minSize uint32) error {
	capacity := s.initialSize
	if s.active >= 0 {
		prev := uint32(len(s.buffers[s.active].data))
		if prev > capacity {
			capacity = prev
		}
		if capacity < MaxBufferSize/2 {
			capacity *= 2
		} else {
			capacity = MaxBufferSize
		}
	}
	if capacity < minSize+EntryAlignment {
		capacity = alignUp(minSize + EntryAlignment)
	}
	if capacity > MaxBufferSize {
		capacity = MaxBufferSize
	}
	_, err := s.AddBuffer(capacity)
	return err
}

// AddBuffer installs a fresh buffer with the given capacity and makes it the
// active allocation target. The lowest released slot is recycled before the
// buffer list grows, so long-lived stores never exhaust the id space through
// repeated compactions. Compaction uses AddBuffer to reserve a region sized
// for all live entries plus requested headroom up front.
func (s *Store) AddBuffer(capacity uint32) (uint32, error) {
	if capacity > MaxBufferSize {
		return 0, ErrSpanTooLarge
	}
	b := &buffer{
		data:     make([]byte, alignUp(capacity)),
		writePos: EntryAlignment, // offset 0 is reserved
	}
	for i, old := range s.buffers {
		if old.released {
			s.buffers[i] = b
			s.active = i
			return uint32(i), nil
		}
	}
	if len(s.buffers) >= MaxBuffers {
		return 0, ErrMaxBuffersExceeded
	}
	s.buffers = append(s.buffers, b)
	s.active = len(s.buffers) - 1
	return uint32(s.active), nil
}

// Seal detaches the active buffer so the next Alloc opens a fresh one.
func (s *Store) Seal() {
	s.active = -1
}

func (s *Store) buffer(bufferID uint32) *buffer {
	if int(bufferID) >= len(s.buffers) {
		panic(fmt.Sprintf("bufstore: invalid buffer id %d", bufferID))
	}
	b := s.buffers[bufferID]
	if b.released {
		panic(fmt.Sprintf("bufstore: stale access to buffer %d released by compaction", bufferID))
	}
	return b
}

// Bytes returns a read/write view of n bytes at the given location. Access to
// a buffer released by compaction panics: a stale index is a caller bug, not
// a recoverable condition.
func (s *Store) Bytes(bufferID, offset, n uint32) []byte {
	b := s.buffer(bufferID)
	if offset+n > b.writePos {
		panic(fmt.Sprintf("bufstore: out of bounds access at buffer %d offset %d len %d", bufferID, offset, n))
	}
	return b.data[offset : offset+n : offset+n]
}

// EntryView returns the bytes from offset to the buffer's write position.
// Variable-size entries scan their terminator inside this window.
func (s *Store) EntryView(bufferID, offset uint32) []byte {
	b := s.buffer(bufferID)
	if offset >= b.writePos {
		panic(fmt.Sprintf("bufstore: out of bounds access at buffer %d offset %d", bufferID, offset))
	}
	return b.data[offset:b.writePos:b.writePos]
}

// Free records size bytes at the given location as dead. The space is not
// reused until the owning store compacts; the size must equal the aligned
// size passed to Alloc.
func (s *Store) Free(bufferID, offset, size uint32) {
	if size == 0 || size%EntryAlignment != 0 {
		panic(fmt.Sprintf("bufstore: unaligned free size %d", size))
	}
	b := s.buffer(bufferID)
	if offset+size > b.writePos {
		panic(fmt.Sprintf("bufstore: out of bounds free at buffer %d offset %d len %d", bufferID, offset, size))
	}
	b.dead += size
}

// Release drops a buffer after compaction has moved its live entries.
// Access through Bytes or EntryView panics until a later AddBuffer recycles
// the slot.
func (s *Store) Release(bufferID uint32) {
	b := s.buffer(bufferID)
	b.data = nil
	b.released = true
	if s.active == int(bufferID) {
		s.active = -1
	}
}

// LiveBufferIDs returns the ids of all buffers that have not been released,
// in allocation order.
func (s *Store) LiveBufferIDs() []uint32 {
	ids := make([]uint32, 0, len(s.buffers))
	for i, b := range s.buffers {
		if !b.released {
			ids = append(ids, uint32(i))
		}
	}
	return ids
}

// Reset releases every buffer and starts the next load in buffer 0's slot.
// Bulk loading through a builder depends on buffer id 0 and sequential
// offsets starting at EntryAlignment, so slot 0 is necessarily recycled;
// stale access to any other pre-reset buffer still fails loudly.
func (s *Store) Reset(capacity uint32) error {
	for _, b := range s.buffers {
		if !b.released {
			b.data = nil
			b.released = true
		}
	}
	s.active = -1
	_, err := s.AddBuffer(capacity)
	return err
}

// BytesUsed reports the bytes occupied by live entries.
func (s *Store) BytesUsed() uint64 {
	var n uint64
	for _, b := range s.buffers {
		if !b.released {
			n += uint64(b.writePos - b.dead)
		}
	}
	return n
}

// BytesDead reports freed-but-unreclaimed bytes. Compaction is the only way
// to get them back.
func (s *Store) BytesDead() uint64 {
	var n uint64
	for _, b := range s.buffers {
		if !b.released {
			n += uint64(b.dead)
		}
	}
	return n
}

// BytesFree reports unallocated capacity across live buffers.
func (s *Store) BytesFree() uint64 {
	var n uint64
	for _, b := range s.buffers {
		if !b.released {
			n += uint64(uint32(len(b.data)) - b.writePos)
		}
	}
	return n
}

// ActiveBuffers reports the number of live buffers.
func (s *Store) ActiveBuffers() int {
	var n int
	for _, b := range s.buffers {
		if !b.released {
			n++
		}
	}
	return n
}
