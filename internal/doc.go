// Package internal parents the packages that are intentionally private to
// keyrunes-go.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher plus Sink plumbing)
//   - metrics: lock-free counters and latency histograms
//
// # What these packages must NOT do
//
//   - Export types that appear in the public keyrunes API other than
//     through the root package's aliases.
//   - Be imported by any module outside keyrunes-go.
package internal
