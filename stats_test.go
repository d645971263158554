package tcpool

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnostics(t *testing.T) {
	p := newTestPool(t, ArenaUnit)
	c1 := p.Acquire()
	c2 := p.Acquire()

	a := c1.Alloc(16)
	b := c1.Alloc(4096)
	c1.Alloc(8)
	c1.Free(a, 16)
	c1.Free(b, 4096)

	d := c2.Alloc(32)
	c2.Alloc(8)
	c2.Free(d, 32)

	assert.Equal(t, uint64(16+4096), c1.fragSize)
	assert.Equal(t, c1.fragSize+(c1.hotEnd-c1.hotPos), c1.FreeSize())

	fast := p.Fastbin()
	require.Len(t, fast, 128)
	assert.Equal(t, uint64(1), fast[1])
	assert.Equal(t, uint64(1), fast[3])

	count, size := p.HugeStat()
	assert.Equal(t, uint64(1), count)
	assert.Equal(t, uint64(4096), size)

	assert.Equal(t, c1.FreeSize()+c2.FreeSize(), p.SlowFreeSize())

	assert.Equal(t, int64(0), p.FragSize())
	p.SyncFragSize()
	assert.Equal(t, int64(16+4096+32), p.FragSize())
	assert.Zero(t, c1.fragInc)

	p.SyncFragSizeFull()
	assert.Equal(t, int64(p.SlowFreeSize()), p.FragSize())

	s := p.Stats()
	assert.Equal(t, 2, s.Caches)
	assert.Equal(t, 0, s.IdleCaches)
	assert.Equal(t, p.Size(), s.Committed)
	require.Len(t, s.PerCache, 2)
	assert.Equal(t, uint64(2), s.PerCache[0].FragNum)
	assert.Equal(t, uint64(1), s.PerCache[0].HugeCount)
	assert.Equal(t, uint32(1), s.PerCache[1].Fastbin[3])

	var buf bytes.Buffer
	require.NoError(t, p.PrintStat(&buf))
	out := buf.String()
	assert.Contains(t, out, "caches=2 (idle 0)")
	assert.Contains(t, out, "cache 0: frag{num=2")
	assert.Contains(t, out, "cache 1: frag{num=1")
	assert.Contains(t, out, "(1, 1), ")
	assert.Contains(t, out, "computed frag = 4.0 KiB")

	p.Release(c1)
	p.Release(c2)
	s = p.Stats()
	assert.Equal(t, 2, s.IdleCaches)
}

func TestExplicitCommit(t *testing.T) {
	mc := &BasicMetricsCollector{}
	p, err := New(WithExplicitCommit(true), WithChunkSize(64<<10), WithMetricsCollector(mc))
	require.NoError(t, err)
	require.NoError(t, p.Reserve(ArenaUnit))
	defer p.Close()

	pos := p.Alloc(100 << 10)
	require.NotEqual(t, Nil, pos)
	p.Slice(pos, 100<<10)[0] = 1

	// Kernels without MADV_POPULATE_WRITE are not counted as failures.
	count, size := p.CommitFailures()
	assert.LessOrEqual(t, count, uint64(1))
	assert.Equal(t, uint64(mc.GetStats().CommitFailures), count)
	if count > 0 {
		assert.Equal(t, p.Size(), size)
	}
}
