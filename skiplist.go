package tcpool

import (
	"math/rand/v2"
)

const (
	skipListMaxLevel = 8

	// headRef addresses the in-struct head node. Real nodes are arena
	// offsets, which never reach this value.
	headRef = Nil - 1
)

// skipList orders free huge blocks by size. Node headers live in the freed
// bytes: {size, next[0..8)} in alignment units. The head node lives in the
// struct and its level field is the current list height.
type skipList struct {
	p     *Pool
	next  [skipListMaxLevel]uint64
	level int
	rng   *rand.Rand
}

func newSkipList(p *Pool, seed, id uint64) *skipList {
	s := &skipList{
		p:   p,
		rng: rand.New(rand.NewPCG(seed, id)), //nolint:gosec // level selection needs no cryptographic randomness
	}
	for i := range s.next {
		s.next[i] = linkTail
	}
	return s
}

// randomLevel returns a zero-based level: each further level with p = 1/4.
func (s *skipList) randomLevel() int {
	level := 0
	for level < skipListMaxLevel-1 && s.rng.Uint32()%4 == 0 {
		level++
	}
	return level
}

func (s *skipList) getNext(ref uint64, k int) uint64 {
	if ref == headRef {
		return s.next[k]
	}
	return s.p.nodeNext(ref, k)
}

func (s *skipList) setNext(ref uint64, k int, v uint64) {
	if ref == headRef {
		s.next[k] = v
		return
	}
	s.p.setNodeNext(ref, k, v)
}

// walk fills update with the last node per level whose size is below
// size. It returns the level-0 successor of update[0].
func (s *skipList) walk(size uint64, update *[skipListMaxLevel]uint64) uint64 {
	n := headRef
	for k := s.level - 1; k >= 0; k-- {
		for {
			nx := s.getNext(n, k)
			if nx == linkTail {
				break
			}
			pos := nx << s.p.shift
			if s.p.nodeSize(pos) >= size {
				break
			}
			n = pos
		}
		update[k] = n
	}
	if s.level == 0 {
		return linkTail
	}
	return s.getNext(update[0], 0)
}

func (s *skipList) push(pos, size uint64) {
	var update [skipListMaxLevel]uint64
	s.walk(size, &update)

	k := s.randomLevel()
	if k >= s.level {
		k = s.level
		update[k] = headRef
		s.level++
	}
	s.p.setNodeSize(pos, size)
	unit := pos >> s.p.shift
	for ; k >= 0; k-- {
		s.p.setNodeNext(pos, k, s.getNext(update[k], k))
		s.setNext(update[k], k, unit)
	}
}

func (s *skipList) unlink(pos uint64, update *[skipListMaxLevel]uint64) {
	unit := pos >> s.p.shift
	for k := 0; k < s.level; k++ {
		if s.getNext(update[k], k) == unit {
			s.setNext(update[k], k, s.p.nodeNext(pos, k))
		}
	}
	for s.level > 0 && s.next[s.level-1] == linkTail {
		s.level--
	}
}

// popFit removes the smallest block of at least request bytes.
func (s *skipList) popFit(request uint64) (uint64, uint64, bool) {
	var update [skipListMaxLevel]uint64
	nx := s.walk(request, &update)
	if nx == linkTail {
		return 0, 0, false
	}
	pos := nx << s.p.shift
	size := s.p.nodeSize(pos)
	s.unlink(pos, &update)
	return pos, size, true
}

// popLargest removes the last node, which holds the largest block.
func (s *skipList) popLargest(request uint64) (uint64, uint64, bool) {
	if s.level == 0 {
		return 0, 0, false
	}
	last := headRef
	for k := s.level - 1; k >= 0; k-- {
		for nx := s.getNext(last, k); nx != linkTail; nx = s.getNext(last, k) {
			last = nx << s.p.shift
		}
	}
	size := s.p.nodeSize(last)
	if size < request {
		return 0, 0, false
	}

	var update [skipListMaxLevel]uint64
	unit := last >> s.p.shift
	n := headRef
	for k := s.level - 1; k >= 0; k-- {
		for nx := s.getNext(n, k); nx != linkTail && nx != unit; nx = s.getNext(n, k) {
			n = nx << s.p.shift
		}
		update[k] = n
	}
	s.unlink(last, &update)
	return last, size, true
}
