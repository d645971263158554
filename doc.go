// Package tcpool provides an offset-based, thread-caching memory pool.
//
// A Pool owns one fixed-capacity byte arena and hands out aligned byte
// ranges identified by integer offsets rather than pointers. Offsets stay
// valid across snapshots and can be stored inside the very structures that
// live in the arena, which is what tries, automata and succinct indexes
// built on top of the pool rely on.
//
// # Quick Start
//
//	p, _ := tcpool.New(tcpool.WithAlignSize(8))
//	_ = p.Reserve(1 << 30)
//	defer p.Close()
//
//	c := p.Acquire()
//	defer p.Release(c)
//
//	pos := c.Alloc(48)
//	if pos == tcpool.Nil {
//	    // arena exhausted
//	}
//	copy(p.Bytes()[pos:pos+48], record)
//	c.Free(pos, 48)
//
// # Caches
//
// Every goroutine that allocates heavily should hold its own *Cache. A
// cache owns a bump-pointer hot area, size-classed free lists and a huge
// block reclaimer; none of it is synchronized, so a cache must be used by
// one goroutine at a time. Acquire hands out an idle cache (or creates
// one) and Release returns it for reuse with its free lists intact.
//
// The Pool.Alloc, Pool.Alloc3 and Pool.Free convenience methods acquire a
// cache for the duration of one call. Blocks may be freed through any
// cache of the same pool; the freed bytes join that cache's lists.
//
// # Growth
//
// Caches grow by claiming chunk-aligned ranges from the shared arena with a
// compare-and-swap on the committed length. No mutex is taken on the
// allocation path. When the arena is full, allocation returns Nil.
//
// # Huge blocks
//
// Blocks larger than the fast-bin ceiling are kept by a huge reclaimer.
// The default HugeSingleSlot strategy only ever looks at the most recently
// freed huge block. HugeSkipList keeps all of them ordered by size.
//
// # Contracts
//
// Zero lengths and misaligned or uncommitted offsets always panic with
// *ContractError. Double frees and frees with a length that differs from
// the allocation corrupt the pool silently unless WithDebug(true) is set,
// which tracks live blocks and panics on them too.
package tcpool
