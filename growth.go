package tcpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/tcpool/internal/conv"
	"github.com/hupe1980/tcpool/internal/mmap"
)

const (
	pageSize = 4096

	// slowPopulate is the duration above which a populate call is logged.
	slowPopulate = 100 * time.Microsecond

	// populateCheckPages is how many pages a stripe touches between
	// context checks.
	populateCheckPages = 256
)

func (p *Pool) allocSlow(c *Cache, request uint64) uint64 {
	if p.chunkAlloc(c, request) {
		return c.alloc(request)
	}
	return Nil
}

// chunkAlloc claims a chunk-aligned range of at least request bytes from
// the arena and installs it as c's hot area. The chunk end is aligned to the
// chunk size; the last chunk is clipped to the capacity.
func (p *Pool) chunkAlloc(c *Cache, request uint64) bool {
	if p.mem == nil {
		return false
	}
	start := time.Now()
	var oldn, chunkLen uint64
	for {
		chunkLen = alignUp(request, p.chunkSize)
		oldn = p.committed.Load()
		if rem := oldn & (p.chunkSize - 1); rem != 0 {
			chunkLen += p.chunkSize - rem
		}
		if oldn+chunkLen > p.capacity {
			if oldn+request > p.capacity {
				p.exhausted(request, oldn)
				return false
			}
			chunkLen = p.capacity - oldn
		}
		if p.committed.CompareAndSwap(oldn, oldn+chunkLen) {
			break
		}
	}

	p.commit(oldn, chunkLen)
	c.setHotArea(oldn, chunkLen)

	d := time.Since(start)
	p.metrics.RecordGrowth(chunkLen, d)
	c.log.LogGrowth(oldn, chunkLen, d)
	return true
}

func (p *Pool) exhausted(request, committed uint64) {
	p.metrics.RecordExhausted(request)
	if p.warn.Allow() {
		p.logger.LogExhausted(request, committed, p.capacity)
	}
}

// commit makes [off, off+length) writable. Mandatory commit failures panic
// with *CommitError. With explicit commit the pages are also pre-faulted;
// failures there are counted unless the kernel reports a bad address.
func (p *Pool) commit(off, length uint64) {
	if p.mapping.IsHeap() {
		return
	}
	beg := alignDown(off, pageSize)
	end := min(alignUp(off+length, pageSize), p.capacity)
	n := end - beg

	r, err := p.region(beg, n)
	if err == nil {
		err = r.Commit()
	}
	if err != nil {
		ce := &CommitError{Offset: beg, Length: n, cause: err}
		p.logger.LogCommitFailure(beg, n, true, err)
		panic(ce)
	}

	if !p.opts.explicitCommit {
		return
	}
	t0 := time.Now()
	err = r.PopulateWrite()
	switch {
	case err == nil, errors.Is(err, mmap.ErrUnsupported):
	case errors.Is(err, mmap.ErrBadAddress):
		p.logger.LogCommitFailure(beg, n, true, err)
		panic(&CommitError{Offset: beg, Length: n, cause: err})
	default:
		p.commitFailCnt.Add(1)
		p.commitFailLen.Add(n)
		p.metrics.RecordCommitFailure(n)
		if p.warn.Allow() {
			p.logger.LogCommitFailure(beg, n, false, err)
		}
	}
	if d := time.Since(t0); d > slowPopulate && p.warn.Allow() {
		p.logger.LogSlowPopulate(n, d)
	}
}

func (p *Pool) region(off, length uint64) (*mmap.Region, error) {
	o, err := conv.Uint64ToInt(off)
	if err != nil {
		return nil, err
	}
	n, err := conv.Uint64ToInt(length)
	if err != nil {
		return nil, err
	}
	return p.mapping.Region(o, n)
}

// Populate claims size bytes, rounded down to whole chunks, into the
// cache's hot area and pre-faults them by touching one byte per page. It
// returns the number of bytes claimed.
//
// Page touching is striped across goroutines; with a resource controller
// the stripes are bounded by its worker slots and throttled by its byte
// rate.
func (c *Cache) Populate(ctx context.Context, size uint64) (uint64, error) {
	p := c.pool
	if p.mem == nil {
		return 0, ErrNotReserved
	}
	claim := time.Now()
	var oldn, chunkLen uint64
	for {
		chunkLen = alignDown(size, p.chunkSize)
		oldn = p.committed.Load()
		if rem := oldn & (p.chunkSize - 1); rem != 0 {
			chunkLen += p.chunkSize - rem
		}
		if oldn+chunkLen > p.capacity {
			chunkLen = p.capacity - oldn
		}
		if chunkLen == 0 {
			return 0, nil
		}
		if p.committed.CompareAndSwap(oldn, oldn+chunkLen) {
			break
		}
	}
	p.commit(oldn, chunkLen)
	c.setHotArea(oldn, chunkLen)
	d := time.Since(claim)
	p.metrics.RecordGrowth(chunkLen, d)
	c.log.LogGrowth(oldn, chunkLen, d)

	start := time.Now()
	err := p.touchPages(ctx, c.hotPos, c.hotEnd)
	d = time.Since(start)
	p.metrics.RecordPopulate(chunkLen, d, err)
	c.log.LogPopulate(ctx, chunkLen, d, err)
	if err != nil {
		return chunkLen, fmt.Errorf("populate: %w", err)
	}
	return chunkLen, nil
}

func (p *Pool) touchPages(ctx context.Context, beg, end uint64) error {
	if beg >= end {
		return nil
	}
	rc := p.opts.controller
	workers := runtime.GOMAXPROCS(0)
	if rc != nil {
		workers = rc.MaxWorkers()
	}
	pages := (end - beg + pageSize - 1) / pageSize
	stripes := min(uint64(max(workers, 1)), pages) //nolint:gosec // workers is positive
	perStripe := (pages + stripes - 1) / stripes

	g, gctx := errgroup.WithContext(ctx)
	for s := uint64(0); s < stripes; s++ {
		from := beg + s*perStripe*pageSize
		if from >= end {
			break
		}
		to := min(from+perStripe*pageSize, end)
		g.Go(func() error {
			if err := rc.AcquireWorker(gctx); err != nil {
				return err
			}
			defer rc.ReleaseWorker()

			n, err := conv.Uint64ToInt(to - from)
			if err != nil {
				return err
			}
			if err := rc.AcquireBytes(gctx, n); err != nil {
				return err
			}
			for i, pos := 0, from; pos < to; i, pos = i+1, pos+pageSize {
				if i%populateCheckPages == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				p.mem[pos] = 0
			}
			return nil
		})
	}
	return g.Wait()
}
