package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one counter or histogram slot.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricRegisterSuccess
	MetricRegisterConflict
	MetricAuthzAllowed
	MetricAuthzDenied
	MetricCacheHit
	MetricCacheMiss
	MetricRequestError
	MetricRequestLatency
	MetricIDCount
)

const histBucketCount = 8

// latencyBoundsMS holds the inclusive upper bound of every bucket except
// the last, which is open-ended.
var latencyBoundsMS = [histBucketCount - 1]int64{5, 10, 25, 50, 100, 250, 500}

// counterSlot pads each counter to its own cache line so concurrent
// increments of different metrics do not contend.
type counterSlot struct {
	n atomic.Uint64
	_ [56]byte
}

type histogram struct {
	buckets [histBucketCount]atomic.Uint64
}

// Config controls which instruments are live. Latency histograms carry a
// small extra cost per request and are gated separately.
type Config struct {
	Enabled       bool
	EnableLatency bool
}

// Metrics holds the counter and histogram slots. A nil or disabled Metrics
// turns every method into a no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [MetricIDCount]counterSlot
	histograms    [MetricIDCount]histogram
}

// Snapshot is a point-in-time deep copy of all instruments.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatency,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	m.counters[id].n.Add(1)
}

// Observe records d into the request latency histogram. Only
// MetricRequestLatency has histogram storage; other IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricRequestLatency {
		return
	}
	m.histograms[id].buckets[latencyBucket(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return m.counters[id].n.Load()
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	}

	s := Snapshot{
		Counters:   make(map[MetricID]uint64, MetricIDCount),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := range m.counters {
		s.Counters[MetricID(id)] = m.counters[id].n.Load()
	}
	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = m.histograms[MetricRequestLatency].buckets[i].Load()
		}
		s.Histograms[MetricRequestLatency] = buckets
	}
	return s
}

func latencyBucket(d time.Duration) int {
	ms := d.Milliseconds()
	for i, upper := range latencyBoundsMS {
		if ms <= upper {
			return i
		}
	}
	return histBucketCount - 1
}
