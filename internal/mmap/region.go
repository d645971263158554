package mmap

// Region is a window [offset, offset+size) of a Mapping. It does not own
// memory; closing the parent invalidates it.
type Region struct {
	parent *Mapping
	offset int
	size   int
}

// Region returns a view of size bytes at offset.
func (m *Mapping) Region(offset, size int) (*Region, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if offset < 0 || size < 0 || offset+size > m.size {
		return nil, ErrOutOfBounds
	}
	return &Region{parent: m, offset: offset, size: size}, nil
}

// Bytes returns the region's memory, or nil once the parent is closed.
func (r *Region) Bytes() []byte {
	if r.parent.closed.Load() {
		return nil
	}
	return r.parent.data[r.offset : r.offset+r.size]
}

// apply runs op on the region's memory unless there is nothing for the
// kernel to do.
func (r *Region) apply(op func([]byte) error) error {
	if r.parent.closed.Load() {
		return ErrClosed
	}
	if r.parent.heap || r.size == 0 {
		return nil
	}
	return op(r.Bytes())
}

// Commit makes the region readable and writable. It is a no-op where the
// kernel commits on first touch.
func (r *Region) Commit() error {
	return r.apply(osCommit)
}

// PopulateWrite pre-faults the region for writing. It returns
// ErrUnsupported when the kernel has no such facility and ErrBadAddress when
// the pages cannot be backed.
func (r *Region) PopulateWrite() error {
	return r.apply(osPopulateWrite)
}
