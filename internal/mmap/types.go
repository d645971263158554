package mmap

import "errors"

// HugePages selects how the reservation is backed.
type HugePages int

const (
	// HugePageNone uses regular pages.
	HugePageNone HugePages = iota
	// HugePageTransparent advises transparent huge pages after mapping.
	HugePageTransparent
	// HugePageExplicit maps from the hugetlb pool, falling back to
	// HugePageTransparent when the kernel refuses.
	HugePageExplicit
)

var (
	// ErrClosed is returned when attempting to access a closed mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned when a reservation size is invalid.
	ErrInvalidSize = errors.New("mmap: invalid size")
	// ErrOutOfBounds is returned when attempting to access a region outside the mapping.
	ErrOutOfBounds = errors.New("mmap: out of bounds")
	// ErrUnsupported is returned when the platform lacks an operation
	// (for example MADV_POPULATE_WRITE on kernels older than 5.14).
	ErrUnsupported = errors.New("mmap: operation not supported")
	// ErrBadAddress is returned when populating pages faulted. On Linux this
	// usually means vm.nr_hugepages is insufficient.
	ErrBadAddress = errors.New("mmap: bad address")
)
