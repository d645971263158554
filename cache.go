package tcpool

import (
	"golang.org/x/sys/cpu"
)

// fragFlushThreshold bounds the unflushed fragmentation delta of a cache.
const fragFlushThreshold = 256 << 10

type freeHead struct {
	head uint64
	cnt  uint32
}

// Cache is a per-goroutine allocation front end. It owns a hot area
// [hotPos, hotEnd), one free list per size class and a huge-block
// reclaimer. A Cache is not safe for concurrent use; obtain one per
// goroutine with Pool.Acquire.
type Cache struct {
	_ cpu.CacheLinePad

	pool *Pool
	id   int
	log  *Logger

	hotPos uint64
	hotEnd uint64

	freelist []freeHead
	huge     hugeList
	hugeSum  uint64
	hugeCnt  uint64

	fragSize uint64
	fragInc  int64

	_ cpu.CacheLinePad
}

func newCache(p *Pool, id int) *Cache {
	c := &Cache{
		pool:     p,
		id:       id,
		log:      p.logger.WithCache(id),
		freelist: make([]freeHead, p.fastbinMax>>p.shift),
	}
	for i := range c.freelist {
		c.freelist[i].head = linkTail
	}
	switch p.opts.huge {
	case HugeSkipList:
		c.huge = newSkipList(p, p.opts.seed, uint64(id)) //nolint:gosec // id is a non-negative slot index
	default:
		c.huge = newSingleSlot(p)
	}
	return c
}

// ID returns the registry slot of the cache.
func (c *Cache) ID() int { return c.id }

// Pool returns the pool the cache allocates from.
func (c *Cache) Pool() *Pool { return c.pool }

// Alloc returns the offset of a block of at least request bytes, rounded up
// to the alignment, or Nil when the arena is exhausted.
func (c *Cache) Alloc(request uint64) uint64 {
	p := c.pool
	if request == 0 {
		violation("alloc", Nil, 0, "zero length")
	}
	if request > p.capacity {
		p.exhausted(request, p.committed.Load())
		return Nil
	}
	n := p.roundLen(request)
	pos := c.alloc(n)
	if pos == Nil {
		pos = p.allocSlow(c, n)
	}
	if pos != Nil && p.live != nil {
		p.live.markAlloc("alloc", pos, n)
		fill(p.mem[pos:pos+n], fillAlloc)
	}
	return pos
}

// AllocBytes is like Alloc but returns the block as a slice of length
// request, and ErrOutOfMemory on exhaustion.
func (c *Cache) AllocBytes(request uint64) (uint64, []byte, error) {
	pos := c.Alloc(request)
	if pos == Nil {
		return Nil, nil, ErrOutOfMemory
	}
	end := pos + request
	return pos, c.pool.mem[pos:end:end], nil
}

// Free returns the block [pos, pos+length). length must be the length
// passed to the allocation that produced pos.
func (c *Cache) Free(pos, length uint64) {
	p := c.pool
	n := p.checkBlock("free", pos, length)
	if p.live != nil {
		p.live.markFree("free", pos, n)
		fill(p.mem[pos:pos+n], fillFree)
	}
	c.sfree(pos, n)
}

// Alloc3 resizes the block [oldPos, oldPos+oldLen) to newLen bytes. It
// grows or shrinks in place when possible and otherwise moves the block,
// copying min(oldLen, newLen) bytes. On failure it returns Nil and the old
// block stays live.
func (c *Cache) Alloc3(oldPos, oldLen, newLen uint64) uint64 {
	p := c.pool
	on := p.checkBlock("alloc3", oldPos, oldLen)
	if newLen == 0 {
		violation("alloc3", oldPos, 0, "zero length")
	}
	if newLen > p.capacity {
		p.exhausted(newLen, p.committed.Load())
		return Nil
	}
	nn := p.roundLen(newLen)
	if p.live != nil {
		p.live.markFree("alloc3", oldPos, on)
	}

	res := c.alloc3(oldPos, on, nn)
	if res == Nil && p.chunkAlloc(c, nn) {
		res = c.alloc(nn)
		if res != Nil {
			c.move(oldPos, on, res, nn)
		}
	}

	if p.live != nil {
		if res == Nil {
			p.live.markAlloc("alloc3", oldPos, on)
		} else {
			p.live.markAlloc("alloc3", res, nn)
		}
	}
	return res
}

// FreeSize returns the bytes held by this cache: free-list entries plus
// the unused part of the hot area.
func (c *Cache) FreeSize() uint64 {
	return c.fragSize + (c.hotEnd - c.hotPos)
}

// HotArea returns the cache's current bump window.
func (c *Cache) HotArea() (pos, end uint64) {
	return c.hotPos, c.hotEnd
}

// alloc serves an aligned request from the cache's own state. It returns
// Nil when the arena must grow.
func (c *Cache) alloc(request uint64) uint64 {
	p := c.pool
	if request <= p.fastbinMax {
		idx := request>>p.shift - 1
		list := &c.freelist[idx]
		if list.head != linkTail {
			pos := list.head << p.shift
			c.reduceFrag(request)
			list.cnt--
			list.head = p.loadLink(pos)
			return pos
		}
		// Split a block of twice the size: first half to the caller,
		// second half onto the (empty) exact class.
		if idx2 := idx*2 + 1; idx2 < uint64(len(c.freelist)) {
			list2 := &c.freelist[idx2]
			if list2.head != linkTail {
				pos := list2.head << p.shift
				c.reduceFrag(request)
				list2.cnt--
				list2.head = p.loadLink(pos)
				p.storeLink(pos+request, linkTail)
				list.cnt++
				list.head = (pos + request) >> p.shift
				return pos
			}
		}
		if pos, ok := c.bump(request); ok {
			return pos
		}
		// The largest huge block becomes the new hot area.
		if pos, size, ok := c.huge.popLargest(request); ok {
			c.hugeSum -= size
			c.hugeCnt--
			if c.hotPos < c.hotEnd {
				c.sfree(c.hotPos, c.hotEnd-c.hotPos)
			}
			c.hotPos = pos + request
			c.hotEnd = pos + size
			c.reduceFrag(size)
			return pos
		}
		return Nil
	}

	if pos, size, ok := c.huge.popFit(request); ok {
		c.hugeSum -= size
		c.hugeCnt--
		c.reduceFrag(size)
		if size > request {
			c.sfree(pos+request, size-request)
		}
		return pos
	}
	if pos, ok := c.bump(request); ok {
		return pos
	}
	return Nil
}

func (c *Cache) alloc3(oldPos, oldLen, newLen uint64) uint64 {
	if oldPos+oldLen == c.hotPos {
		if end := oldPos + newLen; end <= c.hotEnd {
			c.poisonResize(oldPos, oldLen, newLen)
			c.hotPos = end
			return oldPos
		}
	}
	switch {
	case newLen < oldLen:
		c.poisonResize(oldPos, oldLen, newLen)
		c.sfree(oldPos+newLen, oldLen-newLen)
		return oldPos
	case newLen == oldLen:
		return oldPos
	}
	newPos := c.alloc(newLen)
	if newPos != Nil {
		c.move(oldPos, oldLen, newPos, newLen)
	}
	return newPos
}

// move copies a block to newPos, which holds at least oldLen bytes, and
// frees the old block.
func (c *Cache) move(oldPos, oldLen, newPos, newLen uint64) {
	p := c.pool
	copy(p.mem[newPos:newPos+oldLen], p.mem[oldPos:oldPos+oldLen])
	if p.live != nil {
		fill(p.mem[newPos+oldLen:newPos+newLen], fillAlloc)
		fill(p.mem[oldPos:oldPos+oldLen], fillFree)
	}
	c.sfree(oldPos, oldLen)
}

// poisonResize applies the debug fill patterns to the bytes an in-place
// resize adds or drops. It runs before the dropped tail is freed.
func (c *Cache) poisonResize(pos, oldLen, newLen uint64) {
	p := c.pool
	switch {
	case p.live == nil:
	case newLen > oldLen:
		fill(p.mem[pos+oldLen:pos+newLen], fillAlloc)
	case newLen < oldLen:
		fill(p.mem[pos+newLen:pos+oldLen], fillFree)
	}
}

func (c *Cache) sfree(pos, length uint64) {
	if pos+length == c.hotPos {
		c.hotPos = pos
		return
	}
	p := c.pool
	if length <= p.fastbinMax {
		list := &c.freelist[length>>p.shift-1]
		p.storeLink(pos, list.head)
		list.head = pos >> p.shift
		list.cnt++
	} else {
		c.huge.push(pos, length)
		c.hugeSum += length
		c.hugeCnt++
	}
	c.addFrag(length)
}

func (c *Cache) bump(request uint64) (uint64, bool) {
	pos := c.hotPos
	if end := pos + request; end <= c.hotEnd {
		c.hotPos = end
		return pos, true
	}
	return 0, false
}

// setHotArea installs [pos, pos+length) as the bump window. A window that
// starts at the current end is merged; otherwise the unused remainder of
// the old window is freed first.
func (c *Cache) setHotArea(pos, length uint64) {
	if c.hotEnd == pos {
		c.hotEnd = pos + length
		return
	}
	if c.hotPos < c.hotEnd {
		c.sfree(c.hotPos, c.hotEnd-c.hotPos)
	}
	c.hotPos = pos
	c.hotEnd = pos + length
}

func (c *Cache) addFrag(n uint64) {
	c.fragSize += n
	c.fragInc += int64(n) //nolint:gosec // block lengths are bounded by capacity
	if c.fragInc > fragFlushThreshold {
		c.pool.frag.Add(c.fragInc)
		c.fragInc = 0
	}
}

func (c *Cache) reduceFrag(n uint64) {
	c.fragSize -= n
	c.fragInc -= int64(n) //nolint:gosec // block lengths are bounded by capacity
	if c.fragInc < -fragFlushThreshold {
		c.pool.frag.Add(c.fragInc)
		c.fragInc = 0
	}
}

func (c *Cache) flushFrag() {
	if c.fragInc != 0 {
		c.pool.frag.Add(c.fragInc)
		c.fragInc = 0
	}
}
