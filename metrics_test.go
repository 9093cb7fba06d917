package cohook

import "testing"

func TestMetricsSuspends(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.TotalSuspends != 0 {
		t.Errorf("Expected 0 initial suspends, got %d", snap.TotalSuspends)
	}

	m.RecordSuspend("read", 1_000_000, true)
	m.RecordSuspend("write", 2_000_000, true)
	m.RecordSuspend("accept", 500_000, false)

	snap = m.Snapshot()
	if snap.ReadSuspends != 1 {
		t.Errorf("Expected 1 read suspend, got %d", snap.ReadSuspends)
	}
	if snap.WriteSuspends != 1 {
		t.Errorf("Expected 1 write suspend, got %d", snap.WriteSuspends)
	}
	if snap.AcceptSuspends != 1 {
		t.Errorf("Expected 1 accept suspend, got %d", snap.AcceptSuspends)
	}
	if snap.PollErrors != 1 {
		t.Errorf("Expected 1 poll error, got %d", snap.PollErrors)
	}
	if snap.TotalSuspends != 3 {
		t.Errorf("Expected 3 total suspends, got %d", snap.TotalSuspends)
	}

	expectedErrorRate := float64(1) / float64(3) * 100.0
	if snap.ErrorRate < expectedErrorRate-0.1 || snap.ErrorRate > expectedErrorRate+0.1 {
		t.Errorf("Expected error rate ~%.1f%%, got %.1f%%", expectedErrorRate, snap.ErrorRate)
	}
}

func TestMetricsRetries(t *testing.T) {
	m := NewMetrics()
	m.RecordRetry()
	m.RecordRetry()

	snap := m.Snapshot()
	if snap.EagainRetries != 2 {
		t.Errorf("Expected 2 retries, got %d", snap.EagainRetries)
	}
}

func TestMetricsLatencyPercentiles(t *testing.T) {
	m := NewMetrics()

	latencies := []uint64{500, 5_000, 50_000, 500_000, 5_000_000}
	for _, l := range latencies {
		m.RecordSuspend("read", l, true)
	}

	snap := m.Snapshot()
	if snap.LatencyP50Ns == 0 {
		t.Error("Expected nonzero P50 latency")
	}
	if snap.LatencyP99Ns < snap.LatencyP50Ns {
		t.Errorf("Expected P99 >= P50, got P50=%d P99=%d", snap.LatencyP50Ns, snap.LatencyP99Ns)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordSuspend("connect", 1000, true)
	m.RecordRetry()

	m.Reset()
	snap := m.Snapshot()
	if snap.TotalSuspends != 0 || snap.EagainRetries != 0 {
		t.Errorf("Expected metrics cleared after Reset, got %+v", snap)
	}
}

func TestMetricsObserverForwardsToMetrics(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveSuspend("write", 1000, true)
	obs.ObserveRetry("write")

	snap := m.Snapshot()
	if snap.WriteSuspends != 1 {
		t.Errorf("Expected 1 write suspend via observer, got %d", snap.WriteSuspends)
	}
	if snap.EagainRetries != 1 {
		t.Errorf("Expected 1 retry via observer, got %d", snap.EagainRetries)
	}
}

func TestNoOpObserverDoesNotPanic(t *testing.T) {
	var obs Observer = NoOpObserver{}
	obs.ObserveSuspend("read", 1000, true)
	obs.ObserveRetry("read")
}
