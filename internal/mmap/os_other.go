//go:build !unix && !windows

package mmap

func osReserve(size int, huge HugePages) ([]byte, func([]byte) error, error) {
	return make([]byte, size), nil, nil
}

func osCommit(data []byte) error {
	return nil
}

func osPopulateWrite(data []byte) error {
	return ErrUnsupported
}
