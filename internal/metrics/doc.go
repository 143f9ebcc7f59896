// Package metrics implements the client-side instrument store: fixed-slot
// counters and a request latency histogram, all safe for concurrent use.
//
// # Design
//
// Every counter lives in its own cache-line-padded [sync/atomic.Uint64]
// slot, so hot-path increments of different metrics never contend.
// Latency lands in 8 fixed buckets with upper bounds from 5ms to 500ms
// plus an open-ended last bucket. Writes are allocation-free.
//
// # Architecture boundaries
//
// Storage and snapshotting live here; rendering lives in metrics/export/,
// which works from [Metrics.Snapshot] copies.
//
// # What this package must NOT do
//
//   - Do I/O of any kind.
//   - Import the root package or any sibling package.
//   - Hold process-global state; every store belongs to one client.
package metrics
