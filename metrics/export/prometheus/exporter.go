package prometheus

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	keyrunes "github.com/keyrunes/keyrunes-go"
	"github.com/keyrunes/keyrunes-go/metrics/export/internaldefs"
)

// contentType is the Prometheus text exposition format version served by
// [PrometheusExporter.Handler].
const contentType = "text/plain; version=0.0.4; charset=utf-8"

var helpEscaper = strings.NewReplacer("\\", "\\\\", "\n", "\\n")

type metricsSource interface {
	MetricsSnapshot() keyrunes.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter renders client metrics in Prometheus text exposition
// format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter creates an exporter that reads from the given
// [keyrunes.Client].
func NewPrometheusExporter(client *keyrunes.Client) *PrometheusExporter {
	return &PrometheusExporter{source: client}
}

// NewPrometheusExporterFromSource creates an exporter from a custom snapshot
// source, for callers that aggregate several clients behind one endpoint.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler returns an http.Handler that serves the current metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = io.WriteString(w, p.Render())
	})
}

// Render produces the text exposition body for the source's current state.
// A client with metrics disabled renders to the empty string.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snap := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var out strings.Builder
	out.Grow(4096)

	for _, c := range internaldefs.CounterDefs {
		counterSeries(&out, c.Name, c.Help, snap.Counters[c.ID])
	}

	for _, h := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[h.ID]))
		histogramSeries(&out, h.Name, h.Help, cumulative)
	}

	counterSeries(&out, "keyrunes_audit_dropped_total", "Audit events dropped under dispatcher backpressure.", dropped)

	return out.String()
}

func seriesHeader(b *strings.Builder, name, help, kind string) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, helpEscaper.Replace(help))
	fmt.Fprintf(b, "# TYPE %s %s\n", name, kind)
}

func counterSeries(b *strings.Builder, name, help string, value uint64) {
	seriesHeader(b, name, help, "counter")
	fmt.Fprintf(b, "%s %d\n", name, value)
}

func histogramSeries(b *strings.Builder, name, help string, cumulative [8]uint64) {
	seriesHeader(b, name, help, "histogram")

	for i, le := range internaldefs.HistogramBounds {
		fmt.Fprintf(b, "%s_bucket{le=%q} %d\n", name, le, cumulative[i])
	}

	fmt.Fprintf(b, "%s_count %d\n", name, cumulative[len(cumulative)-1])
	// Snapshots carry bucket counts only; the sum series stays at zero.
	fmt.Fprintf(b, "%s_sum 0\n", name)
}
