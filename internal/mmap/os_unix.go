//go:build unix

package mmap

import (
	"golang.org/x/sys/unix"
)

func osReserve(size int, huge HugePages) ([]byte, func([]byte) error, error) {
	prot := unix.PROT_READ | unix.PROT_WRITE
	flags := reserveFlags

	if huge == HugePageExplicit && hugeTLBFlag != 0 {
		data, err := unix.Mmap(-1, 0, size, prot, flags|hugeTLBFlag)
		if err == nil {
			return data, unix.Munmap, nil
		}
		// hugetlb pool exhausted or not configured, fall back to THP.
		huge = HugePageTransparent
	}

	data, err := unix.Mmap(-1, 0, size, prot, flags)
	if err != nil {
		return nil, nil, err
	}
	if huge == HugePageTransparent {
		_ = adviseHugePages(data)
	}

	return data, unix.Munmap, nil
}

// adviseHugePages asks for transparent huge pages. The hint is advisory,
// so a kernel that rejects it (EINVAL) is not an error.
func adviseHugePages(data []byte) error {
	if len(data) == 0 || madvHugePage == 0 {
		return nil
	}
	err := unix.Madvise(data, madvHugePage)
	if err == unix.EINVAL {
		return nil
	}
	return err
}

// Pages of an anonymous mapping are committed on first touch.
func osCommit(data []byte) error {
	return nil
}
