// Package prometheus renders keyrunes client metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts a [keyrunes.Client] and exposes an
// [http.Handler] that renders every client counter and histogram. Counter
// names are prefixed keyrunes_*_total; the single histogram is
// keyrunes_request_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry (callers mount the Handler).
//   - Issue requests through the client.
package prometheus
