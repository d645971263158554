// Package mmap provides anonymous address-space reservations for the pool arena.
//
// # Overview
//
// An arena is reserved once, up front, at its full capacity. Pages are
// backed lazily by the operating system, so a large reservation costs
// address space rather than physical memory. Growth of the committed prefix
// is tracked by the caller; this package only supplies the primitives to
// make sub-ranges usable.
//
// # Usage
//
//	m, err := mmap.Reserve(capacity, mmap.HugePageNone)
//	if err != nil { ... }
//	defer m.Close()
//
//	// Make a freshly claimed chunk writable (mandatory on Windows)
//	r, _ := m.Region(off, n)
//	_ = r.Commit()
//
//	// Pre-fault pages (Linux MADV_POPULATE_WRITE, best-effort)
//	_ = r.PopulateWrite()
//
// # Platform Support
//
//   - Linux: mmap(2) with MAP_NORESERVE, madvise(2) for huge pages and
//     MADV_POPULATE_WRITE
//   - Other Unix: mmap(2); populate is unsupported
//   - Windows: VirtualAlloc MEM_RESERVE, explicit MEM_COMMIT per region
//   - Everything else: a Go heap slice
//
// # Thread Safety
//
// Mapping and Region are safe for concurrent use on disjoint ranges. Close is
// idempotent, but callers must ensure no goroutine touches Bytes() after
// Close returns.
package mmap
