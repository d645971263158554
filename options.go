package tcpool

import (
	"fmt"

	"github.com/hupe1980/tcpool/internal/conv"
	"github.com/hupe1980/tcpool/internal/mmap"
	"github.com/hupe1980/tcpool/resource"
)

const (
	// DefaultAlignSize is the default offset alignment.
	DefaultAlignSize = 8
	// DefaultFastbinMaxSize is the default size-class ceiling in bytes.
	DefaultFastbinMaxSize = 1024
	// DefaultChunkSize is the default unit of arena growth.
	DefaultChunkSize = 2 << 20
	// ArenaUnit is the granularity Reserve rounds capacities up to.
	ArenaUnit = 2 << 20
	// MaxCapacity is the largest arena Reserve accepts (128 TiB, the
	// user address space of common 64-bit platforms).
	MaxCapacity = 1 << 47

	minChunkSize = 4096
)

// HugeStrategy selects how a cache keeps blocks above the fast-bin ceiling.
type HugeStrategy int

const (
	// HugeSingleSlot reuses only the most recently freed huge block. Both
	// alloc and free are O(1).
	HugeSingleSlot HugeStrategy = iota
	// HugeSkipList keeps every free huge block in a size-ordered skip list
	// and serves lower-bound lookups in O(log n).
	HugeSkipList
)

// String returns the strategy name as accepted by ParseConfig.
func (s HugeStrategy) String() string {
	switch s {
	case HugeSingleSlot:
		return "slot"
	case HugeSkipList:
		return "skiplist"
	default:
		return fmt.Sprintf("HugeStrategy(%d)", int(s))
	}
}

// HugePages selects how the arena reservation is backed.
type HugePages = mmap.HugePages

const (
	// HugePageNone uses regular pages.
	HugePageNone = mmap.HugePageNone
	// HugePageTransparent advises transparent huge pages.
	HugePageTransparent = mmap.HugePageTransparent
	// HugePageExplicit maps from the hugetlb pool and falls back to
	// transparent huge pages when the kernel refuses.
	HugePageExplicit = mmap.HugePageExplicit
)

type options struct {
	alignSize        uint64
	fastbinMaxSize   uint64
	chunkSize        uint64
	huge             HugeStrategy
	explicitCommit   bool
	hugePages        HugePages
	heap             bool
	debug            bool
	seed             uint64
	logger           *Logger
	metricsCollector MetricsCollector
	controller       *resource.Controller
}

func defaultOptions() options {
	return options{
		alignSize:        DefaultAlignSize,
		fastbinMaxSize:   DefaultFastbinMaxSize,
		chunkSize:        DefaultChunkSize,
		huge:             HugeSingleSlot,
		hugePages:        HugePageNone,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
	}
}

// Option configures a Pool.
type Option func(*options)

// WithAlignSize sets the offset alignment. Only 4 and 8 are accepted.
//
// With 4-byte alignment free-list links are 32-bit unit indices, which
// limits the arena to 16 GiB.
func WithAlignSize(n int) Option {
	return func(o *options) {
		// Negative values become 0 and fail validation.
		o.alignSize, _ = conv.IntToUint64(n)
	}
}

// WithFastbinMaxSize sets the largest request served by the size-classed
// free lists. It is rounded up to the alignment and must be large enough to
// hold a huge-block node (nine links).
func WithFastbinMaxSize(n int) Option {
	return func(o *options) {
		o.fastbinMaxSize, _ = conv.IntToUint64(n)
	}
}

// WithChunkSize sets the unit of arena growth. It must be a power of two of
// at least 4 KiB.
func WithChunkSize(n int) Option {
	return func(o *options) {
		o.chunkSize, _ = conv.IntToUint64(n)
	}
}

// WithHugeStrategy selects the huge-block reclaimer.
func WithHugeStrategy(s HugeStrategy) Option {
	return func(o *options) {
		o.huge = s
	}
}

// WithExplicitCommit pre-faults every chunk claimed from the arena
// (MADV_POPULATE_WRITE on Linux 5.14+). Failures are counted, not fatal,
// unless the kernel reports the range as unbackable.
func WithExplicitCommit(enabled bool) Option {
	return func(o *options) {
		o.explicitCommit = enabled
	}
}

// WithHugePages selects huge-page backing for the arena.
func WithHugePages(h HugePages) Option {
	return func(o *options) {
		o.hugePages = h
	}
}

// WithHeapBacking backs the arena with an ordinary Go slice instead of a
// virtual memory reservation. Capacity is allocated up front.
func WithHeapBacking(enabled bool) Option {
	return func(o *options) {
		o.heap = enabled
	}
}

// WithDebug enables contract checks and fill patterns (0xCC on alloc, 0xDD
// on free). Checks cost a bitmap update per call.
func WithDebug(enabled bool) Option {
	return func(o *options) {
		o.debug = enabled
	}
}

// WithSeed seeds the per-cache skip-list level generators.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics sink. If nil is passed, metrics are
// discarded.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithResourceController charges the arena capacity against the
// controller's memory budget and throttles Populate and snapshot IO.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

func (o *options) validate() error {
	if o.alignSize != 4 && o.alignSize != 8 {
		return fmt.Errorf("%w: align size %d (want 4 or 8)", ErrInvalidOption, o.alignSize)
	}
	if o.fastbinMaxSize == 0 {
		return fmt.Errorf("%w: fastbin max size must be positive", ErrInvalidOption)
	}
	o.fastbinMaxSize = alignUp(o.fastbinMaxSize, o.alignSize)
	if node := hugeNodeUnits * o.alignSize; o.fastbinMaxSize < node {
		return fmt.Errorf("%w: fastbin max size %d below huge node size %d", ErrInvalidOption, o.fastbinMaxSize, node)
	}
	if o.chunkSize < minChunkSize || o.chunkSize&(o.chunkSize-1) != 0 {
		return fmt.Errorf("%w: chunk size %d must be a power of two >= %d", ErrInvalidOption, o.chunkSize, minChunkSize)
	}
	if o.huge != HugeSingleSlot && o.huge != HugeSkipList {
		return fmt.Errorf("%w: %s", ErrInvalidOption, o.huge)
	}
	if o.hugePages < HugePageNone || o.hugePages > HugePageExplicit {
		return fmt.Errorf("%w: huge pages mode %d", ErrInvalidOption, int(o.hugePages))
	}
	return nil
}
