package keyrunes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestMetricsIncRespectsEnableFlag(t *testing.T) {
	for _, tc := range []struct {
		name    string
		enabled bool
		want    uint64
	}{
		{"disabled", false, 0},
		{"enabled", true, 3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMetrics(tc.enabled, false)
			for range 3 {
				m.Inc(MetricLoginSuccess)
			}
			if got := m.Value(MetricLoginSuccess); got != tc.want {
				t.Fatalf("value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestMetricsNilReceiverSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricRequestLatency, time.Millisecond)

	if m.Enabled() || m.LatencyEnabled() {
		t.Fatal("nil metrics must read as disabled")
	}
	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("nil metrics value = %d, want 0", got)
	}
	snap := m.Snapshot()
	if snap.Counters == nil || snap.Histograms == nil {
		t.Fatal("nil metrics snapshot must have non-nil maps")
	}
}

func TestMetricsParallelIncrementsAddUp(t *testing.T) {
	m := NewMetrics(true, false)

	const workers = 16
	const perWorker = 5000

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				m.Inc(MetricAuthzAllowed)
			}
		}()
	}
	wg.Wait()

	if got, want := m.Value(MetricAuthzAllowed), uint64(workers*perWorker); got != want {
		t.Fatalf("value = %d, want %d", got, want)
	}
}

func TestMetricsLatencyBucketLayout(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int
	}{
		{3 * time.Millisecond, 0},
		{5 * time.Millisecond, 0},
		{8 * time.Millisecond, 1},
		{25 * time.Millisecond, 2},
		{40 * time.Millisecond, 3},
		{100 * time.Millisecond, 4},
		{200 * time.Millisecond, 5},
		{499 * time.Millisecond, 6},
		{501 * time.Millisecond, 7},
		{2 * time.Second, 7},
	}

	for _, tc := range cases {
		m := NewMetrics(true, true)
		m.Observe(MetricRequestLatency, tc.d)

		buckets := m.Snapshot().Histograms[MetricRequestLatency]
		if len(buckets) != 8 {
			t.Fatalf("%v: bucket count = %d, want 8", tc.d, len(buckets))
		}
		for i, v := range buckets {
			switch {
			case i == tc.want && v != 1:
				t.Fatalf("%v: bucket %d = %d, want 1", tc.d, i, v)
			case i != tc.want && v != 0:
				t.Fatalf("%v: stray count in bucket %d", tc.d, i)
			}
		}
	}
}

func TestMetricsSnapshotCarriesCountersAndBuckets(t *testing.T) {
	m := NewMetrics(true, true)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginFailure)
	m.Inc(MetricLoginFailure)
	m.Observe(MetricRequestLatency, 2*time.Millisecond)

	snap := m.Snapshot()
	if got := snap.Counters[MetricLoginSuccess]; got != 1 {
		t.Fatalf("login success = %d, want 1", got)
	}
	if got := snap.Counters[MetricLoginFailure]; got != 2 {
		t.Fatalf("login failure = %d, want 2", got)
	}
	if got := snap.Histograms[MetricRequestLatency][0]; got != 1 {
		t.Fatalf("first bucket = %d, want 1", got)
	}
}

func TestMetricsSnapshotIsACopy(t *testing.T) {
	m := NewMetrics(true, false)
	m.Inc(MetricLoginSuccess)

	snap := m.Snapshot()
	snap.Counters[MetricLoginSuccess] = 999

	if got := m.Value(MetricLoginSuccess); got != 1 {
		t.Fatalf("mutating a snapshot must not touch live counters, got %d", got)
	}
}

func TestClientMetricsDisabledByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer client.Close()

	_, _ = client.Login(context.Background(), "alice", "wrong")

	snap := client.MetricsSnapshot()
	if len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot while disabled, got %v", snap.Counters)
	}
	if client.MetricValue(MetricLoginFailure) != 0 {
		t.Fatal("expected no counting while disabled")
	}
}

func TestClientRequestLatencyHistogram(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := New(srv.URL, WithMetrics(true), WithLatencyHistograms(true))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer client.Close()

	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("health failed: %v", err)
	}

	snap := client.MetricsSnapshot()
	buckets := snap.Histograms[MetricRequestLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	total := uint64(0)
	for _, v := range buckets {
		total += v
	}
	if total != 1 {
		t.Fatalf("expected one observation recorded, got %d", total)
	}
}

func TestClientCountsRequestErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := New(url, WithMetrics(true))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer client.Close()

	_ = client.Health(context.Background())

	if got := client.MetricValue(MetricRequestError); got != 1 {
		t.Fatalf("expected one request error, got %d", got)
	}
}
