//go:build windows

package mmap

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

func osReserve(size int, huge HugePages) ([]byte, func([]byte) error, error) {
	// Reserve only. Windows does not commit on first touch, so every chunk
	// handed out by the pool goes through osCommit before it is written.
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, nil, err
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size) //nolint:gosec // unsafe is required for address-space reservation

	return data, func(b []byte) error {
		// VirtualFree with MEM_RELEASE frees the entire region
		return windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
	}, nil
}

func osCommit(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&data[0])) //nolint:gosec // unsafe is required for commit
	if _, err := windows.VirtualAlloc(addr, uintptr(len(data)), windows.MEM_COMMIT, windows.PAGE_READWRITE); err != nil {
		return fmt.Errorf("mmap: VirtualAlloc(%#x, %d, MEM_COMMIT): %w", addr, len(data), err)
	}
	return nil
}

func osPopulateWrite(data []byte) error {
	// Committed pages are already backed.
	return nil
}
