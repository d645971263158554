package tcpool

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/tcpool/internal/conv"
)

// ParseConfig parses a configuration string of semicolon-separated
// key=value pairs into options, for example
//
//	"chunk_size=4MiB;vm_explicit_commit=1;hugepage=1;huge=skiplist"
//
// Recognized keys:
//
//	align               4 or 8
//	chunk_size          unit of arena growth; accepts sizes like "2MiB"
//	fastbin_max_size    size-class ceiling; accepts sizes like "1KiB"
//	vm_explicit_commit  boolean
//	hugepage            0 (none), 1 (transparent) or 2 (explicit)
//	huge                "slot" or "skiplist"
//	debug               boolean
//
// Values are checked again by New.
func ParseConfig(s string) ([]Option, error) {
	var opts []Option
	for _, field := range strings.Split(s, ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not key=value", ErrInvalidConfig, field)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		opt, err := parseOption(key, value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
		}
		opts = append(opts, opt)
	}
	return opts, nil
}

func parseOption(key, value string) (Option, error) {
	switch key {
	case "align":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, err
		}
		return WithAlignSize(n), nil
	case "chunk_size":
		n, err := parseSize(value)
		if err != nil {
			return nil, err
		}
		return WithChunkSize(n), nil
	case "fastbin_max_size":
		n, err := parseSize(value)
		if err != nil {
			return nil, err
		}
		return WithFastbinMaxSize(n), nil
	case "vm_explicit_commit":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, err
		}
		return WithExplicitCommit(b), nil
	case "hugepage":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, err
		}
		if n < int(HugePageNone) || n > int(HugePageExplicit) {
			return nil, fmt.Errorf("mode %d out of range [0, 2]", n)
		}
		return WithHugePages(HugePages(n)), nil
	case "huge":
		switch strings.ToLower(value) {
		case HugeSingleSlot.String():
			return WithHugeStrategy(HugeSingleSlot), nil
		case HugeSkipList.String():
			return WithHugeStrategy(HugeSkipList), nil
		}
		return nil, fmt.Errorf("unknown strategy %q", value)
	case "debug":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, err
		}
		return WithDebug(b), nil
	default:
		return nil, errors.New("unknown key")
	}
}

func parseSize(value string) (int, error) {
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, err
	}
	return conv.Uint64ToInt(n)
}
