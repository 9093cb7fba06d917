package cohook

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the suspension-latency histogram buckets in
// nanoseconds, covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks how often interposed calls actually suspend (rather
// than completing inline), how many EAGAIN/EWOULDBLOCK returns the
// write drain loops hit (each followed by a suspension and a retry), and
// how long each suspension (time spent inside Poller.EventPoll) takes.
type Metrics struct {
	ReadSuspends    atomic.Uint64
	WriteSuspends   atomic.Uint64
	AcceptSuspends  atomic.Uint64
	ConnectSuspends atomic.Uint64

	// EagainRetries counts EAGAIN/EWOULDBLOCK returns seen by the write
	// drain loops; each one is followed by a suspension on the poller
	// before the write is retried.
	EagainRetries atomic.Uint64

	PollOps    atomic.Uint64 // total Poller.EventPoll invocations
	PollErrors atomic.Uint64

	TotalLatencyNs atomic.Uint64 // cumulative suspension latency
	SuspendCount   atomic.Uint64

	// LatencyBuckets[i] holds the count of suspensions with latency <= LatencyBuckets[i].
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordSuspend records that op suspended waiting on the poller for
// latencyNs before resuming. success is false if the poller returned an
// error rather than the requested readiness.
func (m *Metrics) RecordSuspend(op string, latencyNs uint64, success bool) {
	switch op {
	case "read", "recv", "recvfrom", "recvmsg":
		m.ReadSuspends.Add(1)
	case "write", "send", "sendto", "sendmsg":
		m.WriteSuspends.Add(1)
	case "accept":
		m.AcceptSuspends.Add(1)
	case "connect":
		m.ConnectSuspends.Add(1)
	}
	m.PollOps.Add(1)
	if !success {
		m.PollErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordRetry records one EAGAIN/EWOULDBLOCK return seen by a drain
// loop, which then suspends on the poller and retries.
func (m *Metrics) RecordRetry() {
	m.EagainRetries.Add(1)
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.SuspendCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the runtime as stopped, fixing UptimeNs in future snapshots.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics plus derived stats.
type MetricsSnapshot struct {
	ReadSuspends    uint64
	WriteSuspends   uint64
	AcceptSuspends  uint64
	ConnectSuspends uint64
	EagainRetries   uint64

	PollOps    uint64
	PollErrors uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TotalSuspends uint64
	ErrorRate     float64 // percentage of poll ops that errored
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ReadSuspends:    m.ReadSuspends.Load(),
		WriteSuspends:   m.WriteSuspends.Load(),
		AcceptSuspends:  m.AcceptSuspends.Load(),
		ConnectSuspends: m.ConnectSuspends.Load(),
		EagainRetries:   m.EagainRetries.Load(),
		PollOps:         m.PollOps.Load(),
		PollErrors:      m.PollErrors.Load(),
	}

	snap.TotalSuspends = snap.ReadSuspends + snap.WriteSuspends + snap.AcceptSuspends + snap.ConnectSuspends

	totalLatencyNs := m.TotalLatencyNs.Load()
	suspendCount := m.SuspendCount.Load()
	if suspendCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / suspendCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.PollOps > 0 {
		snap.ErrorRate = float64(snap.PollErrors) / float64(snap.PollOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if suspendCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the suspension latency at the given
// percentile (0.0-1.0) using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	total := m.SuspendCount.Load()
	if total == 0 {
		return 0
	}

	targetCount := uint64(float64(total) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters, useful between test cases.
func (m *Metrics) Reset() {
	m.ReadSuspends.Store(0)
	m.WriteSuspends.Store(0)
	m.AcceptSuspends.Store(0)
	m.ConnectSuspends.Store(0)
	m.EagainRetries.Store(0)
	m.PollOps.Store(0)
	m.PollErrors.Store(0)
	m.TotalLatencyNs.Store(0)
	m.SuspendCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable collection of suspension metrics, so a
// caller can forward them into Prometheus, statsd, or similar without
// this module depending on any particular backend.
type Observer interface {
	ObserveSuspend(op string, latencyNs uint64, success bool)
	ObserveRetry(op string)
}

// NoOpObserver discards everything; the default when no Observer is configured.
type NoOpObserver struct{}

func (NoOpObserver) ObserveSuspend(string, uint64, bool) {}
func (NoOpObserver) ObserveRetry(string)                 {}

// MetricsObserver implements Observer by recording into a Metrics instance.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveSuspend(op string, latencyNs uint64, success bool) {
	o.metrics.RecordSuspend(op, latencyNs, success)
}

func (o *MetricsObserver) ObserveRetry(op string) {
	o.metrics.RecordRetry()
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
