package tcpool

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyReserved is returned when Reserve is called on a pool that
	// already owns an arena.
	ErrAlreadyReserved = errors.New("tcpool: arena already reserved")

	// ErrInvalidCapacity is returned when the requested capacity is zero or
	// cannot be addressed by the configured alignment.
	ErrInvalidCapacity = errors.New("tcpool: invalid capacity")

	// ErrNotReserved is returned when an operation needs an arena and none
	// has been reserved yet.
	ErrNotReserved = errors.New("tcpool: arena not reserved")

	// ErrReserve wraps failures of the operating system to reserve address space.
	ErrReserve = errors.New("tcpool: reserve failed")

	// ErrOutOfMemory is returned by error-returning allocation helpers when
	// the arena is exhausted.
	ErrOutOfMemory = errors.New("tcpool: out of memory")

	// ErrInvalidOption is returned by New when an option value is rejected.
	ErrInvalidOption = errors.New("tcpool: invalid option")

	// ErrInvalidConfig is returned by ParseConfig for malformed input.
	ErrInvalidConfig = errors.New("tcpool: invalid config")

	// ErrContractViolation is the sentinel wrapped by *ContractError.
	ErrContractViolation = errors.New("tcpool: contract violation")

	// ErrClosed is returned for operations on a closed pool.
	ErrClosed = errors.New("tcpool: pool closed")

	// ErrInvalidSnapshot is returned by LoadSnapshot for corrupt or
	// incompatible images.
	ErrInvalidSnapshot = errors.New("tcpool: invalid snapshot")
)

// ContractError describes a programmer error detected at the public
// boundary: a zero length, a misaligned or out-of-range offset, a double
// free or a free whose length does not match the allocation.
//
// It is raised with panic, never returned. Use errors.As on the recovered
// value to inspect it.
type ContractError struct {
	Op     string
	Pos    uint64
	Len    uint64
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("tcpool: %s(pos=%d, len=%d): %s", e.Op, e.Pos, e.Len, e.Reason)
}

func (e *ContractError) Unwrap() error { return ErrContractViolation }

// CommitError indicates that the operating system refused to make a freshly
// claimed arena range writable. Mandatory commit failures panic with this
// error after logging.
//
// The underlying error can be accessed via errors.Unwrap.
type CommitError struct {
	Offset uint64
	Length uint64
	cause  error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("tcpool: commit(offset=%d, len=%d): %v", e.Offset, e.Length, e.cause)
}

func (e *CommitError) Unwrap() error { return e.cause }

func violation(op string, pos, length uint64, reason string) {
	panic(&ContractError{Op: op, Pos: pos, Len: length, Reason: reason})
}
