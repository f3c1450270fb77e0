package riskAuth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or latency histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricAccountLocked
	MetricHighRiskBlocked
	MetricCaptchaChallenge
	MetricCaptchaFailure
	MetricMFAChallenge
	MetricMFASuccess
	MetricMFAFailure
	MetricBackupCodeUsed
	MetricOTPIssued
	MetricMFAEnrolled
	MetricRiskFactorNewDevice
	MetricRiskFactorMaliciousIP
	MetricRiskFactorImpossibleTravel
	MetricRiskFactorSuspiciousTiming
	MetricRiskFactorRepeatedFailures
	MetricDeviceTrusted
	MetricSessionCreated
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricRefreshRateLimited
	MetricLogout
	MetricLogoutAll
	MetricCheckpointPassed
	MetricStepUpRequired
	MetricPermissionGranted
	MetricPermissionDenied
	// Latency histograms.
	MetricAssessLatency
	MetricValidateLatency
	metricIDCount
)

// latencyBounds are the inclusive upper bounds of all but the last bucket.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const histBucketCount = len(latencyBounds) + 1

var histogramIDs = [...]MetricID{MetricAssessLatency, MetricValidateLatency}

// counterSlot is padded to a cache line so hot counters do not false-share.
type counterSlot struct {
	n atomic.Uint64
	_ [56]byte
}

type latencyHistogram struct {
	buckets [histBucketCount]atomic.Uint64
	sumNs   atomic.Uint64
}

// Metrics holds lock-free counters and latency histograms.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]counterSlot
	latency       [len(histogramIDs)]latencyHistogram
}

// MetricsSnapshot is a point-in-time copy read by exporters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
	// Histograms holds per-bucket (not cumulative) sample counts.
	Histograms map[MetricID][]uint64
	// HistogramSums holds the total observed duration per histogram.
	HistogramSums map[MetricID]time.Duration
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount || histogramIndex(id) >= 0 {
		return
	}
	m.counters[id].n.Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].n.Load()
}

// Observe records d in the histogram of id. Only latency IDs accept samples.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency {
		return
	}
	i := histogramIndex(id)
	if i < 0 {
		return
	}
	if d < 0 {
		d = 0
	}
	h := &m.latency[i]
	h.buckets[bucketIndex(d)].Add(1)
	h.sumNs.Add(uint64(d))
}

// Snapshot copies every counter and, when enabled, every histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:      map[MetricID]uint64{},
		Histograms:    map[MetricID][]uint64{},
		HistogramSums: map[MetricID]time.Duration{},
	}
	if m == nil || !m.enabled {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if histogramIndex(id) < 0 {
			s.Counters[id] = m.counters[id].n.Load()
		}
	}

	if m.enableLatency {
		for i, id := range histogramIDs {
			h := &m.latency[i]
			buckets := make([]uint64, histBucketCount)
			for b := range buckets {
				buckets[b] = h.buckets[b].Load()
			}
			s.Histograms[id] = buckets
			s.HistogramSums[id] = time.Duration(h.sumNs.Load())
		}
	}
	return s
}

func histogramIndex(id MetricID) int {
	for i, h := range histogramIDs {
		if h == id {
			return i
		}
	}
	return -1
}

func bucketIndex(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
