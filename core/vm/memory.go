package vm

import (
	"sync"

	"github.com/holiman/uint256"
)

// Memory is the EVM's linear, byte-addressable, word-expandable memory
// region. It grows in 32-byte words and never shrinks within a frame.
type Memory struct {
	store   []byte
	maxSize uint64
}

// MemoryPool recycles Memory backing arrays across frames to keep
// execution free of per-call allocation on the hot path.
type MemoryPool struct {
	pool sync.Pool
}

func NewMemoryPool() *MemoryPool {
	return &MemoryPool{
		pool: sync.Pool{New: func() any { return &Memory{store: make([]byte, 0, 4096)} }},
	}
}

func (p *MemoryPool) Get(maxSize uint64) *Memory {
	m := p.pool.Get().(*Memory)
	m.store = m.store[:0]
	m.maxSize = maxSize
	return m
}

func (p *MemoryPool) Put(m *Memory) {
	p.pool.Put(m)
}

// Len returns the current size of memory in bytes.
func (m *Memory) Len() int { return len(m.store) }

// WordCount returns the current size of memory in 32-byte words.
func (m *Memory) WordCount() uint64 { return toWordCount(uint64(len(m.store))) }

// EnsureCapacity grows memory to at least newSize bytes, rounded up to a
// whole word, returning the gas cost of the expansion (0 if no growth was
// needed) and an error if the requested size would exceed maxSize.
func (m *Memory) EnsureCapacity(newSize uint64) (uint64, error) {
	if newSize <= uint64(len(m.store)) {
		return 0, nil
	}
	newWords := toWordCount(newSize)
	if newWords*32 > m.maxSize {
		return 0, ErrOutOfBounds
	}
	cost := MemoryExpansionCost(m.WordCount(), newWords)
	target := int(newWords * 32)
	if cap(m.store) < target {
		grown := make([]byte, target)
		copy(grown, m.store)
		m.store = grown
	} else {
		old := len(m.store)
		m.store = m.store[:target]
		clear(m.store[old:])
	}
	return cost, nil
}

// Set writes data into memory starting at offset. Callers must have
// already called EnsureCapacity for offset+len(data).
func (m *Memory) Set(offset uint64, data []byte) {
	copy(m.store[offset:], data)
}

// Set32 writes a single 256-bit word at offset, big-endian.
func (m *Memory) Set32(offset uint64, v *uint256.Int) {
	b := v.Bytes32()
	copy(m.store[offset:offset+32], b[:])
}

// GetCopy returns a freshly allocated copy of memory[offset:offset+size].
func (m *Memory) GetCopy(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	out := make([]byte, size)
	copy(out, m.store[offset:offset+size])
	return out
}

// GetPtr returns a slice aliasing memory[offset:offset+size] without
// copying, for callers that only read before the next mutation.
func (m *Memory) GetPtr(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	return m.store[offset : offset+size]
}

// Data exposes the full backing slice, for host calls that need to hand a
// return-data or log-data window to the caller.
func (m *Memory) Data() []byte { return m.store }
