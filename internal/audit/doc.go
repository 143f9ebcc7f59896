// Package audit carries security events (logins, registrations,
// authorization verdicts) from client operations to caller-supplied sinks
// without blocking the request path.
//
// # Components
//
//   - [Event]: one structured record carrying a stable machine error code.
//   - [Sink]: where events land (channel, JSON lines, no-op).
//   - [Dispatcher]: the buffered worker between the two, configured to
//     either drop or apply backpressure when the buffer fills.
//
// # Architecture boundaries
//
// Buffering and delivery live here. Deciding which events exist, and with
// what fields, is the root package's job.
//
// # What this package must NOT do
//
//   - Judge which events matter; everything emitted is delivered or
//     counted as dropped.
//   - Import the root package or any sibling internal package.
//   - Open its own connections; delivery I/O belongs to the caller's Sink.
package audit
