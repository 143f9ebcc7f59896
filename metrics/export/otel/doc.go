// Package otel provides OpenTelemetry metric bindings for keyrunes client
// counters and histograms.
//
// [NewOTelExporter] registers an Int64ObservableCounter per client counter
// and, per histogram, a bucket gauge whose data points carry an le attribute
// for each bound. A single callback reads [keyrunes.Client.MetricsSnapshot]
// on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider (callers supply the Meter).
//   - Issue requests through the client.
package otel
