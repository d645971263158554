//go:build unix && !linux

package mmap

import (
	"golang.org/x/sys/unix"
)

const (
	reserveFlags = unix.MAP_ANON | unix.MAP_PRIVATE
	hugeTLBFlag  = 0
	madvHugePage = 0
)

func osPopulateWrite(data []byte) error {
	return ErrUnsupported
}
