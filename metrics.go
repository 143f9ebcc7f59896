package keyrunes

// MetricsSnapshot returns a point-in-time copy of all client counters and
// histograms. With metrics disabled the snapshot is empty, never nil.
// Together with [Client.AuditDropped] this is the source the exporters in
// metrics/export read from.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

// MetricValue returns the current value of one counter.
func (c *Client) MetricValue(id MetricID) uint64 {
	if c == nil {
		return 0
	}
	return c.metrics.Value(id)
}

func (c *Client) metricInc(id MetricID) {
	if c == nil {
		return
	}
	c.metrics.Inc(id)
}
