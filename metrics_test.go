package clover

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cloverproject/clovercore/internal/event"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.EventsCompleted != 0 {
		t.Errorf("Expected 0 initial completions, got %d", snap.EventsCompleted)
	}

	m.ObserveEventComplete(event.TypeWriteBuffer, 1_000_000) // 1ms
	m.ObserveEventComplete(event.TypeReadBuffer, 2_000_000)  // 2ms
	m.ObserveEventFailed(event.TypeNDRangeKernel, event.StatusExecutionFailure, 500_000)

	snap = m.Snapshot()
	if snap.EventsCompleted != 2 {
		t.Errorf("Expected 2 completions, got %d", snap.EventsCompleted)
	}
	if snap.EventsFailed != 1 {
		t.Errorf("Expected 1 failure, got %d", snap.EventsFailed)
	}
	if snap.CompletedByType["write_buffer"] != 1 {
		t.Errorf("Expected 1 write_buffer completion, got %d", snap.CompletedByType["write_buffer"])
	}
	if snap.FailedByType["ndrange_kernel"] != 1 {
		t.Errorf("Expected 1 ndrange_kernel failure, got %d", snap.FailedByType["ndrange_kernel"])
	}

	// All three durations land at or below the 10ms bucket.
	if snap.DurationHistogram[4] != 3 {
		t.Errorf("Expected 3 events <= 10ms, got %d", snap.DurationHistogram[4])
	}
	// The 1ms completion (bounds are inclusive) and the 0.5ms failure
	// land in the 1ms bucket or below.
	if snap.DurationHistogram[3] != 2 {
		t.Errorf("Expected 2 events <= 1ms, got %d", snap.DurationHistogram[3])
	}

	wantAvg := uint64((1_000_000 + 2_000_000 + 500_000) / 3)
	if snap.AvgDurationNs != wantAvg {
		t.Errorf("Expected avg duration %d, got %d", wantAvg, snap.AvgDurationNs)
	}
}

func TestMetricsKernelCounters(t *testing.T) {
	m := NewMetrics()

	m.ObserveKernelLaunch(4)
	m.ObserveKernelLaunch(16)
	for i := 0; i < 20; i++ {
		m.ObserveWorkGroupDone()
	}

	snap := m.Snapshot()
	if snap.KernelLaunches != 2 {
		t.Errorf("Expected 2 launches, got %d", snap.KernelLaunches)
	}
	if snap.WorkGroupsTotal != 20 {
		t.Errorf("Expected 20 total work-groups, got %d", snap.WorkGroupsTotal)
	}
	if snap.WorkGroupsDone != 20 {
		t.Errorf("Expected 20 finished work-groups, got %d", snap.WorkGroupsDone)
	}
}

func TestMetricsQueueDepth(t *testing.T) {
	m := NewMetrics()

	m.ObserveQueueDepth(10)
	m.ObserveQueueDepth(20)
	m.ObserveQueueDepth(5)

	snap := m.Snapshot()
	if snap.MaxQueueDepth != 20 {
		t.Errorf("Expected max depth 20, got %d", snap.MaxQueueDepth)
	}
	wantAvg := float64(10+20+5) / 3
	if snap.AvgQueueDepth != wantAvg {
		t.Errorf("Expected avg depth %.2f, got %.2f", wantAvg, snap.AvgQueueDepth)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.ObserveEventComplete(event.TypeMarker, 100)
	m.ObserveKernelLaunch(8)
	m.ObserveQueueDepth(3)

	m.Reset()
	snap := m.Snapshot()
	if snap.EventsCompleted != 0 || snap.KernelLaunches != 0 || snap.MaxQueueDepth != 0 {
		t.Errorf("Reset left counters behind: %+v", snap)
	}
}

func TestMetricsPrometheusCollector(t *testing.T) {
	m := NewMetrics()
	m.ObserveEventComplete(event.TypeWriteBuffer, 1_000_000)
	m.ObserveKernelLaunch(4)
	m.ObserveWorkGroupDone()

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(m); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{
		"clover_events_completed_total",
		"clover_kernel_launches_total",
		"clover_work_groups_completed_total",
		"clover_event_duration_seconds",
		"clover_live_objects",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected metric family %s, got %s", want, joined)
		}
	}

	if n := testutil.CollectAndCount(m, "clover_kernel_launches_total"); n != 1 {
		t.Errorf("Expected 1 clover_kernel_launches_total series, got %d", n)
	}
}
