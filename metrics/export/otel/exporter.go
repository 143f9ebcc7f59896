package otel

import (
	"context"
	"errors"
	"fmt"

	keyrunes "github.com/keyrunes/keyrunes-go"
	"github.com/keyrunes/keyrunes-go/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// metricsSource is the slice of the client surface the exporter reads.
type metricsSource interface {
	MetricsSnapshot() keyrunes.MetricsSnapshot
	AuditDropped() uint64
}

// bucketAttrs holds one attribute set per histogram bound, built once so
// collection cycles allocate nothing for labels.
var bucketAttrs = buildBucketAttrs()

func buildBucketAttrs() []attribute.Set {
	sets := make([]attribute.Set, len(internaldefs.HistogramBounds))
	for i, bound := range internaldefs.HistogramBounds {
		sets[i] = attribute.NewSet(attribute.String("le", bound))
	}
	return sets
}

type counterInstrument struct {
	id  keyrunes.MetricID
	obs metric.Int64ObservableCounter
}

// histogramInstrument publishes one client histogram as a single bucket
// gauge labelled le=<bound>, plus a total sample count gauge.
type histogramInstrument struct {
	id      keyrunes.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes client metrics through an OpenTelemetry Meter.
// Instruments are observable: one registered callback reads one snapshot
// per collection cycle, so the client pays nothing between cycles.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []counterInstrument
	histograms   []histogramInstrument
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments for every client metric on the
// given meter, reading from client snapshots.
func NewOTelExporter(meter metric.Meter, client *keyrunes.Client) (*OTelExporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, client)
}

// NewOTelExporterFromSource is the custom-source variant of
// [NewOTelExporter], for callers that aggregate several clients.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	observables, err := e.register(meter)
	if err != nil {
		return nil, err
	}

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *OTelExporter) register(meter metric.Meter) ([]metric.Observable, error) {
	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+2*len(internaldefs.HistogramDefs)+1)

	for _, def := range internaldefs.CounterDefs {
		obs, err := meter.Int64ObservableCounter(def.Name,
			metric.WithDescription(def.Help),
			metric.WithUnit("1"),
		)
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterInstrument{id: def.ID, obs: obs})
		observables = append(observables, obs)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per le bound."),
			metric.WithUnit("1"),
		)
		if err != nil {
			return nil, fmt.Errorf("create bucket gauge %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total sample count."),
			metric.WithUnit("1"),
		)
		if err != nil {
			return nil, fmt.Errorf("create count gauge %s: %w", def.Name, err)
		}
		e.histograms = append(e.histograms, histogramInstrument{id: def.ID, buckets: buckets, count: count})
		observables = append(observables, buckets, count)
	}

	auditDropped, err := meter.Int64ObservableCounter("keyrunes_audit_dropped_total",
		metric.WithDescription("Audit events dropped under dispatcher backpressure."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	return observables, nil
}

func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for _, c := range e.counters {
		observer.ObserveInt64(c.obs, int64(snapshot.Counters[c.id]))
	}

	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
		for i, attrs := range bucketAttrs {
			observer.ObserveInt64(h.buckets, int64(cumulative[i]), metric.WithAttributeSet(attrs))
		}
		observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}

	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback. The exporter is unusable
// afterwards; the client and meter are unaffected.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
