package internaldefs

import keyrunes "github.com/keyrunes/keyrunes-go"

// CounterDef binds a client metric ID to its exported series name.
type CounterDef struct {
	ID   keyrunes.MetricID
	Name string
	Help string
}

// HistogramDef binds a client histogram ID to its exported series name.
type HistogramDef struct {
	ID   keyrunes.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter the client records, in export order.
var CounterDefs = []CounterDef{
	{ID: keyrunes.MetricLoginSuccess, Name: "keyrunes_login_success_total", Help: "Successful login calls."},
	{ID: keyrunes.MetricLoginFailure, Name: "keyrunes_login_failure_total", Help: "Failed login calls."},
	{ID: keyrunes.MetricRegisterSuccess, Name: "keyrunes_register_success_total", Help: "Successful user registrations."},
	{ID: keyrunes.MetricRegisterConflict, Name: "keyrunes_register_conflict_total", Help: "Registrations rejected as duplicates."},
	{ID: keyrunes.MetricAuthzAllowed, Name: "keyrunes_authz_allowed_total", Help: "Authorization checks that allowed access."},
	{ID: keyrunes.MetricAuthzDenied, Name: "keyrunes_authz_denied_total", Help: "Authorization checks that denied access."},
	{ID: keyrunes.MetricCacheHit, Name: "keyrunes_cache_hit_total", Help: "Membership verdicts served from cache."},
	{ID: keyrunes.MetricCacheMiss, Name: "keyrunes_cache_miss_total", Help: "Membership lookups that missed the cache."},
	{ID: keyrunes.MetricRequestError, Name: "keyrunes_request_error_total", Help: "HTTP requests that failed in transport."},
}

// HistogramDefs lists every latency histogram the client records.
var HistogramDefs = []HistogramDef{
	{ID: keyrunes.MetricRequestLatency, Name: "keyrunes_request_latency_seconds", Help: "Request latency histogram."},
}

// HistogramBounds are the upper bucket bounds shared by all exporters,
// matching the client's internal histogram layout.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets pads or truncates a bucket slice to the fixed
// eight-bucket layout so exporters never index out of range.
func NormalizeBuckets(counts []uint64) [8]uint64 {
	var fixed [8]uint64
	copy(fixed[:], counts)
	return fixed
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus-style histograms expect.
func CumulativeBuckets(counts [8]uint64) [8]uint64 {
	cum := counts
	for i := 1; i < len(cum); i++ {
		cum[i] += cum[i-1]
	}
	return cum
}
