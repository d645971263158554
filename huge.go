package tcpool

// hugeNodeUnits is the footprint of a free huge block header in alignment
// units: one size word followed by skipListMaxLevel next links.
const hugeNodeUnits = 1 + skipListMaxLevel

// hugeList keeps free blocks above the fast-bin ceiling. Blocks are stored
// in place: their first bytes hold the node header.
type hugeList interface {
	// push adds the free block [pos, pos+size).
	push(pos, size uint64)
	// popFit removes a block of at least request bytes.
	popFit(request uint64) (pos, size uint64, ok bool)
	// popLargest removes the largest tracked block if it holds at least
	// request bytes.
	popLargest(request uint64) (pos, size uint64, ok bool)
}

func (p *Pool) nodeSize(pos uint64) uint64 {
	return p.loadLink(pos) << p.shift
}

func (p *Pool) setNodeSize(pos, size uint64) {
	p.storeLink(pos, size>>p.shift)
}

func (p *Pool) nodeNext(pos uint64, level int) uint64 {
	return p.loadLink(pos + uint64(1+level)<<p.shift) //nolint:gosec // level < skipListMaxLevel
}

func (p *Pool) setNodeNext(pos uint64, level int, next uint64) {
	p.storeLink(pos+uint64(1+level)<<p.shift, next) //nolint:gosec // level < skipListMaxLevel
}

// singleSlot is a LIFO list of which only the head is ever inspected.
// Allocation never scans past the most recently freed block.
type singleSlot struct {
	p    *Pool
	head uint64
}

func newSingleSlot(p *Pool) *singleSlot {
	return &singleSlot{p: p, head: linkTail}
}

func (s *singleSlot) push(pos, size uint64) {
	s.p.setNodeSize(pos, size)
	s.p.setNodeNext(pos, 0, s.head)
	s.head = pos >> s.p.shift
}

func (s *singleSlot) popFit(request uint64) (uint64, uint64, bool) {
	if s.head == linkTail {
		return 0, 0, false
	}
	pos := s.head << s.p.shift
	size := s.p.nodeSize(pos)
	if size < request {
		return 0, 0, false
	}
	s.head = s.p.nodeNext(pos, 0)
	return pos, size, true
}

// popLargest only knows the head, so it is the same lookup as popFit.
func (s *singleSlot) popLargest(request uint64) (uint64, uint64, bool) {
	return s.popFit(request)
}
