package mmap

import (
	"math"
	"sync/atomic"
)

// MaxHeapSize bounds heap-backed mappings below what the runtime can
// allocate, so oversized requests fail with ErrInvalidSize instead of
// panicking in make.
const MaxHeapSize = min(1<<47, math.MaxInt)

// Mapping is a reserved arena range. It owns the memory and releases it
// on Close.
type Mapping struct {
	data   []byte
	size   int
	closed atomic.Bool
	heap   bool
	unmap  func([]byte) error // nil for heap mappings
}

// Reserve reserves size bytes of address space. The returned memory reads
// as zero; on platforms with explicit commit it must be committed through
// Region.Commit before it is written.
func Reserve(size int, huge HugePages) (*Mapping, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	data, unmap, err := osReserve(size, huge)
	if err != nil {
		return nil, err
	}
	return &Mapping{data: data, size: size, unmap: unmap}, nil
}

// Heap returns a mapping backed by an ordinary Go slice. It needs no
// commit and is released by the garbage collector.
func Heap(size int) (*Mapping, error) {
	if size <= 0 || size > MaxHeapSize {
		return nil, ErrInvalidSize
	}
	return &Mapping{
		data: make([]byte, size),
		size: size,
		heap: true,
	}, nil
}

// Close releases the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.unmap != nil && m.data != nil {
		return m.unmap(m.data)
	}
	return nil
}

// Bytes returns the underlying byte slice.
// Warning: The slice is valid only until Close() is called.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return m.size
}

// IsHeap reports whether the mapping is a plain Go slice.
func (m *Mapping) IsHeap() bool {
	return m.heap
}
