package testutil

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Shadow mirrors the live blocks of an allocator in a bitset of
// alignment units. Tests use it to assert that live ranges never overlap.
type Shadow struct {
	align  uint64
	units  *bitset.BitSet
	blocks map[uint64]uint64
	order  []uint64
}

// NewShadow creates a shadow map for offsets aligned to align.
func NewShadow(align uint64) *Shadow {
	return &Shadow{
		align:  align,
		units:  bitset.New(1024),
		blocks: make(map[uint64]uint64),
	}
}

func (s *Shadow) span(pos, n uint64) (uint, uint) {
	from := pos / s.align
	to := (pos + n + s.align - 1) / s.align
	return uint(from), uint(to)
}

// Add records [pos, pos+n) as live. It fails if any unit is already live.
func (s *Shadow) Add(pos, n uint64) error {
	if pos%s.align != 0 {
		return fmt.Errorf("offset %d not aligned to %d", pos, s.align)
	}
	from, to := s.span(pos, n)
	for i := from; i < to; i++ {
		if s.units.Test(i) {
			return fmt.Errorf("block [%d, %d) overlaps a live block at unit %d", pos, pos+n, i)
		}
	}
	for i := from; i < to; i++ {
		s.units.Set(i)
	}
	s.blocks[pos] = n
	s.order = append(s.order, pos)
	return nil
}

// Remove forgets the block at pos and returns its length.
func (s *Shadow) Remove(pos uint64) (uint64, error) {
	n, ok := s.blocks[pos]
	if !ok {
		return 0, fmt.Errorf("no live block at %d", pos)
	}
	from, to := s.span(pos, n)
	for i := from; i < to; i++ {
		s.units.Clear(i)
	}
	delete(s.blocks, pos)
	for i, p := range s.order {
		if p == pos {
			s.order[i] = s.order[len(s.order)-1]
			s.order = s.order[:len(s.order)-1]
			break
		}
	}
	return n, nil
}

// Pick returns the i-th live block in insertion-then-swap order.
func (s *Shadow) Pick(i int) (pos, n uint64) {
	pos = s.order[i%len(s.order)]
	return pos, s.blocks[pos]
}

// Len returns the number of live blocks.
func (s *Shadow) Len() int {
	return len(s.blocks)
}

// LiveUnits returns the number of live alignment units.
func (s *Shadow) LiveUnits() uint {
	return s.units.Count()
}

// Each calls fn for every live block.
func (s *Shadow) Each(fn func(pos, n uint64)) {
	for _, pos := range s.order {
		fn(pos, s.blocks[pos])
	}
}
