package tcpool

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/tcpool/testutil"
)

type refNode struct{ pos, size uint64 }

func TestSkipListOrdering(t *testing.T) {
	for _, align := range []int{4, 8} {
		t.Run(map[int]string{4: "align4", 8: "align8"}[align], func(t *testing.T) {
			p := newTestPool(t, ArenaUnit, WithAlignSize(align))
			s := newSkipList(p, 7, 0)
			rng := testutil.NewRNG(99)

			const slot = 4096
			var ref []refNode
			next := uint64(0)
			for range 300 {
				size := alignUp(rng.Size(hugeNodeUnits*uint64(align), slot), uint64(align))
				s.push(next, size)
				ref = append(ref, refNode{next, size})
				next += slot
			}
			assert.LessOrEqual(t, s.level, skipListMaxLevel)
			assert.Greater(t, s.level, 1)

			for i := range 200 {
				if i%5 == 0 {
					pos, size, ok := s.popLargest(1)
					require.True(t, ok)
					var largest uint64
					for _, r := range ref {
						largest = max(largest, r.size)
					}
					assert.Equal(t, largest, size)
					ref = removeRef(t, ref, pos, size)
					continue
				}
				req := alignUp(rng.Size(1, slot), uint64(align))
				pos, size, ok := s.popFit(req)

				var best uint64 = Nil
				for _, r := range ref {
					if r.size >= req && r.size < best {
						best = r.size
					}
				}
				if best == Nil {
					assert.False(t, ok, "request %d", req)
					continue
				}
				require.True(t, ok, "request %d", req)
				assert.Equal(t, best, size, "request %d", req)
				ref = removeRef(t, ref, pos, size)
			}

			for len(ref) > 0 {
				pos, size, ok := s.popFit(1)
				require.True(t, ok)
				var smallest uint64 = Nil
				for _, r := range ref {
					smallest = min(smallest, r.size)
				}
				assert.Equal(t, smallest, size)
				ref = removeRef(t, ref, pos, size)
			}
			_, _, ok := s.popFit(1)
			assert.False(t, ok)
			_, _, ok = s.popLargest(1)
			assert.False(t, ok)
			assert.Zero(t, s.level)
		})
	}
}

func removeRef(t *testing.T, ref []refNode, pos, size uint64) []refNode {
	t.Helper()
	i := slices.IndexFunc(ref, func(r refNode) bool { return r.pos == pos })
	require.GreaterOrEqual(t, i, 0, "popped unknown node %d", pos)
	require.Equal(t, ref[i].size, size)
	return slices.Delete(ref, i, i+1)
}

func TestSkipListPopLargestTooSmall(t *testing.T) {
	p := newTestPool(t, ArenaUnit)
	s := newSkipList(p, 1, 0)
	s.push(0, 2048)
	s.push(4096, 1024)

	_, _, ok := s.popLargest(4096)
	assert.False(t, ok)

	pos, size, ok := s.popLargest(2048)
	require.True(t, ok)
	assert.Equal(t, uint64(0), pos)
	assert.Equal(t, uint64(2048), size)
}

func TestSkipListRandomLevel(t *testing.T) {
	p := newTestPool(t, ArenaUnit)
	s := newSkipList(p, 3, 5)

	counts := make([]int, skipListMaxLevel)
	for range 100000 {
		counts[s.randomLevel()]++
	}
	// Roughly three quarters stay at the bottom level.
	assert.InDelta(t, 0.75, float64(counts[0])/100000, 0.02)
	assert.Greater(t, counts[0], counts[1])
	assert.Greater(t, counts[1], counts[2])
}

func TestSingleSlot(t *testing.T) {
	p := newTestPool(t, ArenaUnit, WithAlignSize(4))
	s := newSingleSlot(p)

	_, _, ok := s.popFit(8)
	assert.False(t, ok)

	s.push(0, 4096)
	s.push(8192, 2048)

	_, _, ok = s.popFit(4096)
	assert.False(t, ok, "head too small, no scan")

	pos, size, ok := s.popLargest(1024)
	require.True(t, ok)
	assert.Equal(t, uint64(8192), pos)
	assert.Equal(t, uint64(2048), size)

	pos, size, ok = s.popFit(4096)
	require.True(t, ok)
	assert.Equal(t, uint64(0), pos)
	assert.Equal(t, uint64(4096), size)
}
