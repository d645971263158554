package tcpool

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/cpu"
	"golang.org/x/time/rate"

	"github.com/hupe1980/tcpool/internal/conv"
	"github.com/hupe1980/tcpool/internal/mmap"
)

// Nil is the offset returned when an allocation cannot be satisfied.
const Nil uint64 = math.MaxUint64

// linkTail terminates free lists. In the arena it is stored as the all-ones
// value of the link width.
const linkTail uint64 = math.MaxUint64

// Pool is an offset-based allocator over one fixed-capacity arena.
//
// The committed length is the only state shared between caches; it is
// advanced with compare-and-swap only. All other allocator state lives in
// caches owned by one goroutine at a time.
type Pool struct {
	opts       options
	align      uint64
	shift      uint
	fastbinMax uint64
	chunkSize  uint64

	mu       sync.Mutex // guards Reserve and Close
	mapping  *mmap.Mapping
	mem      []byte
	capacity uint64

	_         cpu.CacheLinePad
	committed atomic.Uint64
	_         cpu.CacheLinePad

	frag          atomic.Int64
	commitFailCnt atomic.Uint64
	commitFailLen atomic.Uint64

	caches  registry
	live    *liveSet
	warn    *rate.Limiter
	closed  atomic.Bool
	logger  *Logger
	metrics MetricsCollector
}

// New creates a pool. Reserve must be called before the first allocation.
func New(optFns ...Option) (*Pool, error) {
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		opts:       o,
		align:      o.alignSize,
		shift:      shiftOf(o.alignSize),
		fastbinMax: o.fastbinMaxSize,
		chunkSize:  o.chunkSize,
		warn:       rate.NewLimiter(rate.Every(time.Second), 1),
		logger:     o.logger,
		metrics:    o.metricsCollector,
	}
	if o.debug {
		p.live = newLiveSet(p.shift)
	}
	return p, nil
}

// Reserve fixes the arena capacity. The capacity is rounded up to ArenaUnit.
// Reserve may be called once.
func (p *Pool) Reserve(capacity uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return ErrClosed
	}
	if p.mapping != nil {
		return ErrAlreadyReserved
	}
	if capacity == 0 || capacity > MaxCapacity {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	capacity = alignUp(capacity, ArenaUnit)

	// Unit indices must stay below the 32-bit list tail with 4-byte links,
	// and inside the 32-bit debug bitmap.
	if (p.align == 4 || p.live != nil) && capacity>>p.shift > math.MaxUint32 {
		return fmt.Errorf("%w: %d exceeds %d-byte alignment addressing", ErrInvalidCapacity, capacity, p.align)
	}

	size, err := conv.Uint64ToInt(capacity)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCapacity, err)
	}
	charge, err := conv.Uint64ToInt64(capacity)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCapacity, err)
	}
	if err := p.opts.controller.TryAcquireMemory(charge); err != nil {
		p.logger.LogReserve(capacity, p.opts.heap, err)
		return err
	}

	var m *mmap.Mapping
	if p.opts.heap {
		m, err = mmap.Heap(size)
	} else {
		m, err = mmap.Reserve(size, p.opts.hugePages)
	}
	if err != nil {
		p.opts.controller.ReleaseMemory(charge)
		p.logger.LogReserve(capacity, p.opts.heap, err)
		return fmt.Errorf("%w: %w", ErrReserve, err)
	}

	p.mapping = m
	p.mem = m.Bytes()
	p.capacity = capacity
	p.logger.LogReserve(capacity, m.IsHeap(), nil)
	return nil
}

// Close releases the arena. Offsets and slices obtained from the pool must
// not be used afterwards. Close is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Swap(true) {
		return nil
	}
	if p.mapping == nil {
		return nil
	}
	err := p.mapping.Close()
	if charge, cerr := conv.Uint64ToInt64(p.capacity); cerr == nil {
		p.opts.controller.ReleaseMemory(charge)
	}
	p.mem = nil
	p.mapping = nil
	return err
}

// Acquire returns a cache for exclusive use by the calling goroutine.
// Idle caches are reused with their free lists intact.
func (p *Pool) Acquire() *Cache {
	return p.caches.acquire(p)
}

// Release returns c to the pool. c must not be used afterwards.
func (p *Pool) Release(c *Cache) {
	if c == nil || c.pool != p {
		return
	}
	c.flushFrag()
	p.caches.release(c)
}

// Alloc allocates request bytes through a temporarily acquired cache.
// Goroutines that allocate in loops should hold their own Cache instead.
func (p *Pool) Alloc(request uint64) uint64 {
	c := p.Acquire()
	defer p.Release(c)
	return c.Alloc(request)
}

// AllocBytes is like Alloc but returns the block as a slice and
// ErrOutOfMemory on exhaustion.
func (p *Pool) AllocBytes(request uint64) (uint64, []byte, error) {
	c := p.Acquire()
	defer p.Release(c)
	return c.AllocBytes(request)
}

// Alloc3 resizes the block [oldPos, oldPos+oldLen) through a temporarily
// acquired cache. See Cache.Alloc3.
func (p *Pool) Alloc3(oldPos, oldLen, newLen uint64) uint64 {
	c := p.Acquire()
	defer p.Release(c)
	return c.Alloc3(oldPos, oldLen, newLen)
}

// Free returns a block through a temporarily acquired cache.
func (p *Pool) Free(pos, length uint64) {
	c := p.Acquire()
	defer p.Release(c)
	c.Free(pos, length)
}

// AlignSize returns the offset alignment.
func (p *Pool) AlignSize() uint64 { return p.align }

// FastbinMaxSize returns the size-class ceiling in bytes.
func (p *Pool) FastbinMaxSize() uint64 { return p.fastbinMax }

// ChunkSize returns the unit of arena growth.
func (p *Pool) ChunkSize() uint64 { return p.chunkSize }

// Size returns the committed length of the arena.
func (p *Pool) Size() uint64 { return p.committed.Load() }

// Capacity returns the reserved arena capacity.
func (p *Pool) Capacity() uint64 { return p.capacity }

// Bytes returns the committed prefix of the arena. The slice stays valid
// until Close; it does not grow with the arena, call Bytes again after
// allocating.
func (p *Pool) Bytes() []byte {
	if p.mem == nil {
		return nil
	}
	n := p.committed.Load()
	return p.mem[:n:n]
}

// ByteAt returns the byte at pos. It panics if pos is not committed.
func (p *Pool) ByteAt(pos uint64) byte {
	return p.Bytes()[pos]
}

// Slice returns the n bytes at pos. It panics if the range is not committed.
func (p *Pool) Slice(pos, n uint64) []byte {
	end := pos + n
	return p.Bytes()[pos:end:end]
}

// At returns a typed view of the record stored at pos. T must not contain
// Go pointers. It panics if the record is not committed or pos is not
// aligned for T.
func At[T any](p *Pool, pos uint64) *T {
	var zero T
	size := uint64(unsafe.Sizeof(zero))
	b := p.Bytes()
	if pos > uint64(len(b)) || size > uint64(len(b))-pos {
		panic(fmt.Sprintf("tcpool: At(%d): record of %d bytes out of range %d", pos, size, len(b)))
	}
	ptr := unsafe.Add(unsafe.Pointer(unsafe.SliceData(b)), pos) //nolint:gosec // unsafe is required for typed arena views
	if uintptr(ptr)%unsafe.Alignof(zero) != 0 {
		panic(fmt.Sprintf("tcpool: At(%d): misaligned for %T", pos, zero))
	}
	return (*T)(ptr)
}

// roundLen rounds a request up to the alignment. A link always fits
// because links are as wide as the alignment.
func (p *Pool) roundLen(n uint64) uint64 {
	return alignUp(n, p.align)
}

func (p *Pool) loadLink(pos uint64) uint64 {
	if p.align == 4 {
		v := binary.LittleEndian.Uint32(p.mem[pos:])
		if v == math.MaxUint32 {
			return linkTail
		}
		return uint64(v)
	}
	return binary.LittleEndian.Uint64(p.mem[pos:])
}

func (p *Pool) storeLink(pos, v uint64) {
	if p.align == 4 {
		binary.LittleEndian.PutUint32(p.mem[pos:], uint32(v)) //nolint:gosec // unit indices fit in 32 bits, checked by Reserve
		return
	}
	binary.LittleEndian.PutUint64(p.mem[pos:], v)
}

func alignUp(n, a uint64) uint64 {
	return (n + a - 1) &^ (a - 1)
}

func alignDown(n, a uint64) uint64 {
	return n &^ (a - 1)
}

func shiftOf(a uint64) uint {
	if a == 4 {
		return 2
	}
	return 3
}
