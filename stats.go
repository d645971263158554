package tcpool

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
)

// The diagnostics below read cache state without synchronization. They are
// exact only while no cache is in use.

// FragSize returns the batched fragmentation counter: bytes held in free
// lists, accurate to within 256 KiB per cache.
func (p *Pool) FragSize() int64 {
	return p.frag.Load()
}

// SyncFragSize flushes every cache's unflushed delta into FragSize.
func (p *Pool) SyncFragSize() {
	p.caches.each(func(c *Cache) {
		c.flushFrag()
	})
}

// SyncFragSizeFull recomputes FragSize from all caches, including their
// hot areas. No cache may be in use while it runs.
func (p *Pool) SyncFragSizeFull() {
	var total int64
	p.caches.each(func(c *Cache) {
		c.fragInc = 0
		total += int64(c.FreeSize()) //nolint:gosec // bounded by capacity
	})
	p.frag.Store(total)
}

// SlowFreeSize sums free-list and hot-area bytes over all caches.
func (p *Pool) SlowFreeSize() uint64 {
	var sz uint64
	p.caches.each(func(c *Cache) {
		hotPos, hotEnd := c.hotPos, c.hotEnd
		if hotPos <= hotEnd {
			sz += hotEnd - hotPos
		}
		sz += c.fragSize
	})
	return sz
}

// Fastbin returns, per size class, the number of free entries over all
// caches. Class i holds blocks of (i+1)*AlignSize bytes.
func (p *Pool) Fastbin() []uint64 {
	counts := make([]uint64, p.fastbinMax>>p.shift)
	p.caches.each(func(c *Cache) {
		for i := range c.freelist {
			counts[i] += uint64(c.freelist[i].cnt)
		}
	})
	return counts
}

// HugeStat returns the number and total size of free huge blocks.
func (p *Pool) HugeStat() (count, bytes uint64) {
	p.caches.each(func(c *Cache) {
		count += c.hugeCnt
		bytes += c.hugeSum
	})
	return count, bytes
}

// CommitFailures returns how many best-effort page populates failed and how
// many bytes they covered.
func (p *Pool) CommitFailures() (count, bytes uint64) {
	return p.commitFailCnt.Load(), p.commitFailLen.Load()
}

// CacheStats describes one cache.
type CacheStats struct {
	ID        int
	FragNum   uint64 // free-list entries, huge included
	FragSize  uint64
	FragInc   int64
	HugeCount uint64
	HugeSize  uint64
	HotLen    uint64
	Fastbin   []uint32
}

// Stats is a snapshot of pool diagnostics.
type Stats struct {
	Capacity       uint64
	Committed      uint64
	FragSize       int64
	Caches         int
	IdleCaches     int
	CommitFailures uint64
	PerCache       []CacheStats
}

// Stats collects a diagnostics snapshot.
func (p *Pool) Stats() Stats {
	total, idle := p.caches.counts()
	s := Stats{
		Capacity:       p.capacity,
		Committed:      p.committed.Load(),
		FragSize:       p.frag.Load(),
		Caches:         total,
		IdleCaches:     idle,
		CommitFailures: p.commitFailCnt.Load(),
		PerCache:       make([]CacheStats, 0, total),
	}
	p.caches.each(func(c *Cache) {
		cs := CacheStats{
			ID:        c.id,
			FragNum:   c.hugeCnt,
			FragSize:  c.fragSize,
			FragInc:   c.fragInc,
			HugeCount: c.hugeCnt,
			HugeSize:  c.hugeSum,
			Fastbin:   make([]uint32, len(c.freelist)),
		}
		if c.hotPos <= c.hotEnd {
			cs.HotLen = c.hotEnd - c.hotPos
		}
		for i := range c.freelist {
			cs.Fastbin[i] = c.freelist[i].cnt
			cs.FragNum += uint64(c.freelist[i].cnt)
		}
		s.PerCache = append(s.PerCache, cs)
	})
	return s
}

// PrintStat writes a human-readable report of every cache to w.
func (p *Pool) PrintStat(w io.Writer) error {
	s := p.Stats()
	if _, err := fmt.Fprintf(w, "caches=%d (idle %d), committed=%s/%s, frag=%s\n",
		s.Caches, s.IdleCaches,
		humanize.IBytes(s.Committed), humanize.IBytes(s.Capacity),
		humanize.IBytes(uint64(max(s.FragSize, 0)))); err != nil { //nolint:gosec // clamped
		return err
	}

	var computedFrag, computedHot uint64
	for _, cs := range s.PerCache {
		if _, err := fmt.Fprintf(w, "  cache %d: frag{num=%d,len=%s,inc=%d}, huge{num=%d,len=%s}, hotlen=%s\n    fastbin: ",
			cs.ID, cs.FragNum, humanize.IBytes(cs.FragSize), cs.FragInc,
			cs.HugeCount, humanize.IBytes(cs.HugeSize), humanize.IBytes(cs.HotLen)); err != nil {
			return err
		}
		var length uint64
		for i, cnt := range cs.Fastbin {
			if cnt == 0 {
				continue
			}
			if _, err := fmt.Fprintf(w, "(%d, %d), ", i, cnt); err != nil {
				return err
			}
			length += p.align * uint64(i+1) * uint64(cnt) //nolint:gosec // i is a class index
		}
		computedFrag += length + cs.HugeSize
		computedHot += cs.HotLen
		if _, err := fmt.Fprintf(w, "len = %s\n", humanize.IBytes(length)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "computed frag = %s, computed hot = %s, total free = %s\n",
		humanize.IBytes(computedFrag), humanize.IBytes(computedHot), humanize.IBytes(computedFrag+computedHot))
	return err
}
