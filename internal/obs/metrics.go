package obs

import (
	"sync"
	"sync/atomic"
	"time"

	"main/internal/model"
)

// Metrics collects lightweight pipeline counters and latency stats.
type Metrics struct {
	mu      sync.Mutex
	sources map[string]*sourceCounters

	runsStarted   uint64
	runsFinished  uint64
	backoffEvents uint64
	driftEvents   uint64

	extractLatency LatencyStats
	loadLatency    LatencyStats
}

type sourceCounters struct {
	extracted  uint64
	normalized uint64
	loaded     uint64
	skipped    uint64
	failed     uint64
	drifts     uint64
}

// SourceSnapshot is a point-in-time view of one source's counters.
type SourceSnapshot struct {
	Extracted  uint64
	Normalized uint64
	Loaded     uint64
	Skipped    uint64
	Failed     uint64
	Drifts     uint64
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Sources        map[string]SourceSnapshot
	RunsStarted    uint64
	RunsFinished   uint64
	BackoffEvents  uint64
	DriftEvents    uint64
	ExtractLatency LatencySnapshot
	LoadLatency    LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{sources: make(map[string]*sourceCounters)}
}

func (m *Metrics) source(sourceID string) *sourceCounters {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.sources[sourceID]
	if !ok {
		sc = &sourceCounters{}
		m.sources[sourceID] = sc
	}
	return sc
}

// ObserveBatch accumulates one batch's outcome counts for a source.
func (m *Metrics) ObserveBatch(sourceID string, counts model.Counts) {
	if m == nil {
		return
	}
	sc := m.source(sourceID)
	atomic.AddUint64(&sc.extracted, uint64(counts.Extracted))
	atomic.AddUint64(&sc.normalized, uint64(counts.Normalized))
	atomic.AddUint64(&sc.loaded, uint64(counts.Loaded))
	atomic.AddUint64(&sc.skipped, uint64(counts.Skipped))
	atomic.AddUint64(&sc.failed, uint64(counts.Failed))
	atomic.AddUint64(&sc.drifts, uint64(counts.Drifts))
	atomic.AddUint64(&m.driftEvents, uint64(counts.Drifts))
}

// IncRunStarted records a run start.
func (m *Metrics) IncRunStarted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.runsStarted, 1)
}

// IncRunFinished records a run reaching a terminal status.
func (m *Metrics) IncRunFinished() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.runsFinished, 1)
}

// IncBackoff records a rate-limit backoff event.
func (m *Metrics) IncBackoff() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.backoffEvents, 1)
}

// ObserveExtract measures one extract call.
func (m *Metrics) ObserveExtract(d time.Duration) {
	if m == nil {
		return
	}
	m.extractLatency.Observe(d)
}

// ObserveLoad measures one batch load.
func (m *Metrics) ObserveLoad(d time.Duration) {
	if m == nil {
		return
	}
	m.loadLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	sources := make(map[string]SourceSnapshot, len(m.sources))
	for id, sc := range m.sources {
		sources[id] = SourceSnapshot{
			Extracted:  atomic.LoadUint64(&sc.extracted),
			Normalized: atomic.LoadUint64(&sc.normalized),
			Loaded:     atomic.LoadUint64(&sc.loaded),
			Skipped:    atomic.LoadUint64(&sc.skipped),
			Failed:     atomic.LoadUint64(&sc.failed),
			Drifts:     atomic.LoadUint64(&sc.drifts),
		}
	}
	m.mu.Unlock()

	return Snapshot{
		Sources:        sources,
		RunsStarted:    atomic.LoadUint64(&m.runsStarted),
		RunsFinished:   atomic.LoadUint64(&m.runsFinished),
		BackoffEvents:  atomic.LoadUint64(&m.backoffEvents),
		DriftEvents:    atomic.LoadUint64(&m.driftEvents),
		ExtractLatency: m.extractLatency.Snapshot(),
		LoadLatency:    m.loadLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
