// Package conv provides safe integer type conversion utilities.
//
// These functions perform bounds checking to prevent integer overflow
// when converting between signed/unsigned and different bit-width integer types.
//
// Use cases:
//   - Validating snapshot headers read from untrusted streams
//   - Converting arena offsets (uint64) to Go's int-indexed APIs
//
// On the allocation hot path offsets are provably in range by construction;
// use direct type casts there instead to avoid overhead.
package conv
