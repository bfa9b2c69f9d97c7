package authvault

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint8

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricRateLimited
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReplay
	MetricLogout
	MetricRevocationHit
	MetricOTPIssued
	MetricOTPVerified
	MetricOTPRejected
	MetricResetRequested
	MetricResetConsumed
	MetricCacheDegraded

	metricCount
)

// Metrics is a fixed set of process-local counters, safe for concurrent
// use. It exists for cheap introspection; exporting is the caller's
// concern.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

// Inc increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[MetricID]uint64 {
	out := make(map[MetricID]uint64, metricCount)
	if m == nil {
		return out
	}
	for id := MetricID(0); id < metricCount; id++ {
		out[id] = m.counters[id].Load()
	}
	return out
}
