package tcpool

import "sync"

// registry is the slot slab behind Acquire and Release. Every cache ever
// created stays in all; idle holds the ones not owned by a goroutine.
type registry struct {
	mu    sync.Mutex
	all   []*Cache
	idle  []*Cache
	inUse []bool
}

func (r *registry) acquire(p *Pool) *Cache {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.idle); n > 0 {
		c := r.idle[n-1]
		r.idle = r.idle[:n-1]
		r.inUse[c.id] = true
		return c
	}
	c := newCache(p, len(r.all))
	r.all = append(r.all, c)
	r.inUse = append(r.inUse, true)
	return c
}

func (r *registry) release(c *Cache) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.inUse[c.id] {
		violation("release", 0, 0, "cache released twice")
	}
	r.inUse[c.id] = false
	r.idle = append(r.idle, c)
}

// each calls fn for every cache, owned or idle. Fields of owned caches are
// read without synchronization.
func (r *registry) each(fn func(c *Cache)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.all {
		fn(c)
	}
}

func (r *registry) counts() (total, idle int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.all), len(r.idle)
}
