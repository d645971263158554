//go:build linux

package mmap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	reserveFlags = unix.MAP_ANON | unix.MAP_PRIVATE | unix.MAP_NORESERVE
	hugeTLBFlag  = unix.MAP_HUGETLB
	madvHugePage = unix.MADV_HUGEPAGE

	// MADV_POPULATE_WRITE appeared in Linux 5.14; older headers lack it.
	madvPopulateWrite = 23
)

func osPopulateWrite(data []byte) error {
	for {
		err := unix.Madvise(data, madvPopulateWrite)
		switch err {
		case nil:
			return nil
		case unix.EAGAIN:
			continue
		case unix.EINVAL:
			return ErrUnsupported
		case unix.EFAULT:
			return fmt.Errorf("%w: MADV_POPULATE_WRITE(%d)", ErrBadAddress, len(data))
		default:
			return fmt.Errorf("mmap: MADV_POPULATE_WRITE(%d): %w", len(data), err)
		}
	}
}
