package tcpool

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

const (
	fillAlloc = 0xCC
	fillFree  = 0xDD
)

// liveSet tracks live blocks in alignment units for debug builds. live
// holds every unit of every live block; starts holds the first unit of each
// block, which lets free detect a length mismatch.
//
// Blocks below image (the end of a loaded snapshot, in units) were
// allocated before the pool existed and are not tracked. The first free
// of such a block is accepted and recorded in released.
type liveSet struct {
	mu       sync.Mutex
	shift    uint
	live     *roaring.Bitmap
	starts   *roaring.Bitmap
	image    uint64
	released *roaring.Bitmap
}

func newLiveSet(shift uint) *liveSet {
	return &liveSet{
		shift:    shift,
		live:     roaring.New(),
		starts:   roaring.New(),
		released: roaring.New(),
	}
}

func (s *liveSet) setImage(committed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = committed >> s.shift
}

// countRange returns the number of set bits in [from, to).
func countRange(b *roaring.Bitmap, from, to uint64) uint64 {
	if from >= to {
		return 0
	}
	n := b.Rank(uint32(to - 1)) //nolint:gosec // unit indices fit in 32 bits, checked by Reserve
	if from > 0 {
		n -= b.Rank(uint32(from - 1)) //nolint:gosec // see above
	}
	return n
}

func (s *liveSet) markAlloc(op string, pos, n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, to := pos>>s.shift, (pos+n)>>s.shift
	if countRange(s.live, from, to) != 0 {
		violation(op, pos, n, "allocation overlaps a live block")
	}
	s.live.AddRange(from, to)
	s.starts.Add(uint32(from)) //nolint:gosec // see countRange
	if from < s.image {
		s.released.RemoveRange(from, min(to, s.image))
	}
}

func (s *liveSet) markFree(op string, pos, n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, to := pos>>s.shift, (pos+n)>>s.shift
	if !s.starts.Contains(uint32(from)) && to <= s.image && countRange(s.live, from, to) == 0 { //nolint:gosec // see countRange
		if countRange(s.released, from, to) != 0 {
			violation(op, pos, n, "block is not live (double free?)")
		}
		s.released.AddRange(from, to)
		return
	}
	if !s.starts.Contains(uint32(from)) { //nolint:gosec // see countRange
		if s.live.Contains(uint32(from)) { //nolint:gosec // see countRange
			violation(op, pos, n, "offset is inside a live block")
		}
		violation(op, pos, n, "block is not live (double free?)")
	}
	if countRange(s.live, from, to) != to-from || countRange(s.starts, from+1, to) != 0 {
		violation(op, pos, n, "length exceeds the live block")
	}
	if s.live.Contains(uint32(to)) && !s.starts.Contains(uint32(to)) { //nolint:gosec // see countRange
		violation(op, pos, n, "length is shorter than the live block")
	}
	s.live.RemoveRange(from, to)
	s.starts.Remove(uint32(from)) //nolint:gosec // see countRange
}

func (s *liveSet) count() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts.GetCardinality()
}

// checkBlock validates a block passed in by a caller and returns its
// rounded length.
func (p *Pool) checkBlock(op string, pos, length uint64) uint64 {
	if length == 0 {
		violation(op, pos, length, "zero length")
	}
	if pos&(p.align-1) != 0 {
		violation(op, pos, length, "misaligned offset")
	}
	committed := p.committed.Load()
	if pos >= committed || length > committed-pos {
		violation(op, pos, length, "block outside the committed arena")
	}
	n := p.roundLen(length)
	if n > committed-pos {
		violation(op, pos, length, "block outside the committed arena")
	}
	return n
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
