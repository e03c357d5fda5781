package clover

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloverproject/clovercore/internal/event"
	"github.com/cloverproject/clovercore/internal/object"
)

// LatencyBuckets defines the event-duration histogram buckets in
// nanoseconds, from 1us to 10s with logarithmic spacing.
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

const numEventTypes = int(event.TypeUser) + 1

// Metrics tracks scheduling and execution statistics for a runtime
// instance: per-type completion and failure counters, kernel launch
// and work-group throughput, and an event-duration histogram.
type Metrics struct {
	// Per-event-type counters, indexed by event.Type.
	completedByType [numEventTypes]atomic.Uint64
	failedByType    [numEventTypes]atomic.Uint64

	// Kernel engine counters.
	KernelLaunches  atomic.Uint64 // kernel events that entered launch setup
	WorkGroupsTotal atomic.Uint64 // total work-groups scheduled across launches
	WorkGroupsDone  atomic.Uint64 // work-groups that finished execution

	// Queue statistics.
	QueueDepthTotal atomic.Uint64 // cumulative queue depth samples
	QueueDepthCount atomic.Uint64 // number of queue depth measurements
	MaxQueueDepth   atomic.Uint32 // maximum observed queue depth

	// Duration tracking.
	TotalDurationNs atomic.Uint64 // cumulative event execution time
	DurationCount   atomic.Uint64 // events contributing to TotalDurationNs

	// Duration histogram buckets (cumulative counts): bucket[i] counts
	// events with duration <= LatencyBuckets[i].
	DurationBuckets [numLatencyBuckets]atomic.Uint64

	// Lifecycle.
	StartTime atomic.Int64 // instance start timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// ObserveEventComplete records a successfully completed event.
func (m *Metrics) ObserveEventComplete(typ event.Type, durationNs int64) {
	if int(typ) >= 0 && int(typ) < numEventTypes {
		m.completedByType[typ].Add(1)
	}
	m.recordDuration(uint64(durationNs))
}

// ObserveEventFailed records an event that collapsed to an error
// status.
func (m *Metrics) ObserveEventFailed(typ event.Type, _ event.Status, durationNs int64) {
	if int(typ) >= 0 && int(typ) < numEventTypes {
		m.failedByType[typ].Add(1)
	}
	m.recordDuration(uint64(durationNs))
}

// ObserveKernelLaunch records a kernel event entering launch setup
// with its total work-group count.
func (m *Metrics) ObserveKernelLaunch(totalGroups int64) {
	m.KernelLaunches.Add(1)
	m.WorkGroupsTotal.Add(uint64(totalGroups))
}

// ObserveWorkGroupDone records one finished work-group.
func (m *Metrics) ObserveWorkGroupDone() {
	m.WorkGroupsDone.Add(1)
}

// ObserveQueueDepth records a queue-depth sample.
func (m *Metrics) ObserveQueueDepth(depth int) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)
	for {
		current := m.MaxQueueDepth.Load()
		if uint32(depth) <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, uint32(depth)) {
			break
		}
	}
}

func (m *Metrics) recordDuration(ns uint64) {
	m.TotalDurationNs.Add(ns)
	m.DurationCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if ns <= bucket {
			m.DurationBuckets[i].Add(1)
		}
	}
}

// Snapshot captures a point-in-time view of all metrics.
type Snapshot struct {
	EventsCompleted uint64
	EventsFailed    uint64
	CompletedByType map[string]uint64
	FailedByType    map[string]uint64

	KernelLaunches  uint64
	WorkGroupsTotal uint64
	WorkGroupsDone  uint64

	AvgQueueDepth float64
	MaxQueueDepth uint32

	AvgDurationNs     uint64
	DurationHistogram [numLatencyBuckets]uint64

	LiveObjects int
	UptimeNs    uint64
}

// Snapshot returns a point-in-time copy of all counters with derived
// averages filled in.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		CompletedByType: make(map[string]uint64),
		FailedByType:    make(map[string]uint64),
		KernelLaunches:  m.KernelLaunches.Load(),
		WorkGroupsTotal: m.WorkGroupsTotal.Load(),
		WorkGroupsDone:  m.WorkGroupsDone.Load(),
		MaxQueueDepth:   m.MaxQueueDepth.Load(),
		LiveObjects:     object.Count(),
	}

	for t := 0; t < numEventTypes; t++ {
		if c := m.completedByType[t].Load(); c > 0 {
			snap.CompletedByType[event.Type(t).String()] = c
			snap.EventsCompleted += c
		}
		if f := m.failedByType[t].Load(); f > 0 {
			snap.FailedByType[event.Type(t).String()] = f
			snap.EventsFailed += f
		}
	}

	if count := m.QueueDepthCount.Load(); count > 0 {
		snap.AvgQueueDepth = float64(m.QueueDepthTotal.Load()) / float64(count)
	}
	if count := m.DurationCount.Load(); count > 0 {
		snap.AvgDurationNs = m.TotalDurationNs.Load() / count
	}
	for i := 0; i < numLatencyBuckets; i++ {
		snap.DurationHistogram[i] = m.DurationBuckets[i].Load()
	}
	snap.UptimeNs = uint64(time.Now().UnixNano() - m.StartTime.Load())
	return snap
}

// Reset resets all metrics counters (useful for testing).
func (m *Metrics) Reset() {
	for t := 0; t < numEventTypes; t++ {
		m.completedByType[t].Store(0)
		m.failedByType[t].Store(0)
	}
	m.KernelLaunches.Store(0)
	m.WorkGroupsTotal.Store(0)
	m.WorkGroupsDone.Store(0)
	m.QueueDepthTotal.Store(0)
	m.QueueDepthCount.Store(0)
	m.MaxQueueDepth.Store(0)
	m.TotalDurationNs.Store(0)
	m.DurationCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.DurationBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
}

// Prometheus descriptors for the Collector implementation.
var (
	descEventsCompleted = prometheus.NewDesc(
		"clover_events_completed_total",
		"Events that reached Complete, by event type.",
		[]string{"type"}, nil)
	descEventsFailed = prometheus.NewDesc(
		"clover_events_failed_total",
		"Events that collapsed to an error status, by event type.",
		[]string{"type"}, nil)
	descKernelLaunches = prometheus.NewDesc(
		"clover_kernel_launches_total",
		"Kernel events that entered launch setup.",
		nil, nil)
	descWorkGroupsDone = prometheus.NewDesc(
		"clover_work_groups_completed_total",
		"Work-groups that finished execution.",
		nil, nil)
	descEventDuration = prometheus.NewDesc(
		"clover_event_duration_seconds",
		"Device-side event execution duration.",
		nil, nil)
	descLiveObjects = prometheus.NewDesc(
		"clover_live_objects",
		"Currently live reference-counted objects.",
		nil, nil)
)

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- descEventsCompleted
	ch <- descEventsFailed
	ch <- descKernelLaunches
	ch <- descWorkGroupsDone
	ch <- descEventDuration
	ch <- descLiveObjects
}

// Collect implements prometheus.Collector, exposing the atomic
// counters as constant metrics so the runtime can be scraped without
// any locking on the hot path.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for t := 0; t < numEventTypes; t++ {
		name := event.Type(t).String()
		if c := m.completedByType[t].Load(); c > 0 {
			ch <- prometheus.MustNewConstMetric(descEventsCompleted, prometheus.CounterValue, float64(c), name)
		}
		if f := m.failedByType[t].Load(); f > 0 {
			ch <- prometheus.MustNewConstMetric(descEventsFailed, prometheus.CounterValue, float64(f), name)
		}
	}
	ch <- prometheus.MustNewConstMetric(descKernelLaunches, prometheus.CounterValue, float64(m.KernelLaunches.Load()))
	ch <- prometheus.MustNewConstMetric(descWorkGroupsDone, prometheus.CounterValue, float64(m.WorkGroupsDone.Load()))
	ch <- prometheus.MustNewConstMetric(descLiveObjects, prometheus.GaugeValue, float64(object.Count()))

	buckets := make(map[float64]uint64, numLatencyBuckets)
	for i, bound := range LatencyBuckets {
		buckets[float64(bound)/1e9] = m.DurationBuckets[i].Load()
	}
	ch <- prometheus.MustNewConstHistogram(descEventDuration,
		m.DurationCount.Load(),
		float64(m.TotalDurationNs.Load())/1e9,
		buckets)
}

// Observer allows pluggable collection of scheduling statistics. The
// device worker pool drives the first four methods; the queue's
// enqueue path samples the command queue's length after each enqueue.
type Observer interface {
	ObserveEventComplete(typ event.Type, durationNs int64)
	ObserveEventFailed(typ event.Type, status event.Status, durationNs int64)
	ObserveKernelLaunch(totalGroups int64)
	ObserveWorkGroupDone()
	ObserveQueueDepth(depth int)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveEventComplete(event.Type, int64)             {}
func (NoOpObserver) ObserveEventFailed(event.Type, event.Status, int64) {}
func (NoOpObserver) ObserveKernelLaunch(int64)                          {}
func (NoOpObserver) ObserveWorkGroupDone()                              {}
func (NoOpObserver) ObserveQueueDepth(int)                              {}

// Compile-time interface checks.
var (
	_ Observer             = (*Metrics)(nil)
	_ Observer             = NoOpObserver{}
	_ prometheus.Collector = (*Metrics)(nil)
)
