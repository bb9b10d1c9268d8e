// Package bufstore provides the growable buffer allocator backing an enum
// store's entries.
//
// # Memory Management
//
// The store hands out byte spans from a small set of append-only buffers.
// Spans are never reused in place: Free only records dead space, and the
// owning enum store reclaims it by compacting live entries into fresh buffers
// and releasing the old ones. Released slots are recycled by later
// allocations, keeping the id space bounded. Offset 0 of every buffer is
// reserved so that a packed (buffer, offset) handle of zero is never valid.
//
// # Concurrency Model
//
// All mutation (Alloc, Free, Seal, Release, Reset) happens on a single writer
// path. Reads via Bytes and EntryView may run concurrently against buffers
// that are not being mutated at that moment; the caller coordinates the
// handoff.
package bufstore
