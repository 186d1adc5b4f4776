package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// SystemMetrics tracks the stream loop and trading activity. Every method
// is safe on a nil receiver so components can run without metrics.
type SystemMetrics struct {
	// Latency histograms
	TickLatency *LatencyHistogram
	SaveLatency *LatencyHistogram

	// Counters
	ticksProcessed  atomic.Uint64
	ticksStale      atomic.Uint64
	ticksInvalid    atomic.Uint64
	entries         atomic.Uint64
	tradeErrors     atomic.Uint64
	reconnects      atomic.Uint64
	idleTimeouts    atomic.Uint64
	cycleErrors     atomic.Uint64
	notifySent      atomic.Uint64
	notifyFailed    atomic.Uint64
	levelsLoaded    atomic.Uint64
	levelFetchFails atomic.Uint64

	mu       sync.RWMutex
	exits    map[string]uint64
	lastTick time.Time

	prom *promCollectors
}

type promCollectors struct {
	registry     *prometheus.Registry
	ticks        *prometheus.CounterVec
	entries      *prometheus.CounterVec
	exits        *prometheus.CounterVec
	tradeErrors  prometheus.Counter
	reconnects   prometheus.Counter
	idleTimeouts prometheus.Counter
	cycleErrors  prometheus.Counter
	notify       *prometheus.CounterVec
	levels       *prometheus.CounterVec
	tickLatency  prometheus.Histogram
}

func newPromCollectors() *promCollectors {
	p := &promCollectors{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_ticks_total", Help: "Minute bars received, by disposition",
		}, []string{"kind"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_entries_total", Help: "Brackets placed, by side",
		}, []string{"side"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_exits_total", Help: "Trades closed, by reason",
		}, []string{"reason"}),
		tradeErrors:  prometheus.NewCounter(prometheus.CounterOpts{Name: "bot_trade_errors_total", Help: "Bracket placements that failed"}),
		reconnects:   prometheus.NewCounter(prometheus.CounterOpts{Name: "bot_reconnects_total", Help: "Stream connection attempts"}),
		idleTimeouts: prometheus.NewCounter(prometheus.CounterOpts{Name: "bot_idle_timeouts_total", Help: "Streams abandoned for inactivity"}),
		cycleErrors:  prometheus.NewCounter(prometheus.CounterOpts{Name: "bot_cycle_errors_total", Help: "Cycles that ended in an unexpected error"}),
		notify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_notifications_total", Help: "Operator notifications, by result",
		}, []string{"result"}),
		levels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_level_fetches_total", Help: "Reference level fetches, by result",
		}, []string{"result"}),
		tickLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bot_tick_processing_seconds",
			Help:    "Time spent handling one minute bar",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
	p.registry.MustRegister(
		p.ticks, p.entries, p.exits, p.tradeErrors, p.reconnects,
		p.idleTimeouts, p.cycleErrors, p.notify, p.levels, p.tickLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// LatencyHistogram tracks latency samples with sliding window.
// Stats are computed lazily.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		TickLatency: NewLatencyHistogram(1000),
		SaveLatency: NewLatencyHistogram(200),
		exits:       make(map[string]uint64),
		prom:        newPromCollectors(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	if h == nil {
		return LatencyStats{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// TickKind classifies a received bar.
type TickKind string

const (
	TickProcessed TickKind = "processed"
	TickStale     TickKind = "stale"
	TickInvalid   TickKind = "invalid"
)

func (m *SystemMetrics) IncTick(kind TickKind) {
	if m == nil {
		return
	}
	switch kind {
	case TickProcessed:
		m.ticksProcessed.Add(1)
		m.mu.Lock()
		m.lastTick = time.Now()
		m.mu.Unlock()
	case TickStale:
		m.ticksStale.Add(1)
	case TickInvalid:
		m.ticksInvalid.Add(1)
	}
	m.prom.ticks.WithLabelValues(string(kind)).Inc()
}

func (m *SystemMetrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.TickLatency.RecordDuration(d)
	m.prom.tickLatency.Observe(d.Seconds())
}

func (m *SystemMetrics) IncEntry(side string) {
	if m == nil {
		return
	}
	m.entries.Add(1)
	m.prom.entries.WithLabelValues(side).Inc()
}

func (m *SystemMetrics) IncExit(reason string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.exits[reason]++
	m.mu.Unlock()
	m.prom.exits.WithLabelValues(reason).Inc()
}

func (m *SystemMetrics) IncTradeError() {
	if m == nil {
		return
	}
	m.tradeErrors.Add(1)
	m.prom.tradeErrors.Inc()
}

func (m *SystemMetrics) IncReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Add(1)
	m.prom.reconnects.Inc()
}

func (m *SystemMetrics) IncIdleTimeout() {
	if m == nil {
		return
	}
	m.idleTimeouts.Add(1)
	m.prom.idleTimeouts.Inc()
}

func (m *SystemMetrics) IncCycleError() {
	if m == nil {
		return
	}
	m.cycleErrors.Add(1)
	m.prom.cycleErrors.Inc()
}

func (m *SystemMetrics) IncNotification(sent bool) {
	if m == nil {
		return
	}
	result := "sent"
	if sent {
		m.notifySent.Add(1)
	} else {
		m.notifyFailed.Add(1)
		result = "failed"
	}
	m.prom.notify.WithLabelValues(result).Inc()
}

func (m *SystemMetrics) IncLevelFetch(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if ok {
		m.levelsLoaded.Add(1)
	} else {
		m.levelFetchFails.Add(1)
		result = "failed"
	}
	m.prom.levels.WithLabelValues(result).Inc()
}

// Registry exposes the Prometheus collectors for scraping.
func (m *SystemMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.prom.registry
}

// MetricsSnapshot is the JSON view served by the ops API.
type MetricsSnapshot struct {
	TickLatency     LatencyStats      `json:"tick_latency"`
	SaveLatency     LatencyStats      `json:"save_latency"`
	TicksProcessed  uint64            `json:"ticks_processed"`
	TicksStale      uint64            `json:"ticks_stale"`
	TicksInvalid    uint64            `json:"ticks_invalid"`
	Entries         uint64            `json:"entries"`
	Exits           map[string]uint64 `json:"exits"`
	TradeErrors     uint64            `json:"trade_errors"`
	Reconnects      uint64            `json:"reconnects"`
	IdleTimeouts    uint64            `json:"idle_timeouts"`
	CycleErrors     uint64            `json:"cycle_errors"`
	NotifySent      uint64            `json:"notifications_sent"`
	NotifyFailed    uint64            `json:"notifications_failed"`
	LevelsLoaded    uint64            `json:"levels_loaded"`
	LevelFetchFails uint64            `json:"level_fetch_failures"`
	LastTick        *time.Time        `json:"last_tick,omitempty"`
	GoroutineCount  int               `json:"goroutine_count"`
	HeapAlloc       uint64            `json:"heap_alloc_bytes"`
	HeapSys         uint64            `json:"heap_sys_bytes"`
	Timestamp       time.Time         `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	snap := MetricsSnapshot{
		Exits:          map[string]uint64{},
		GoroutineCount: runtime.NumGoroutine(),
		HeapAlloc:      memStats.HeapAlloc,
		HeapSys:        memStats.HeapSys,
		Timestamp:      time.Now(),
	}
	if m == nil {
		return snap
	}

	m.mu.RLock()
	for k, v := range m.exits {
		snap.Exits[k] = v
	}
	if !m.lastTick.IsZero() {
		last := m.lastTick
		snap.LastTick = &last
	}
	m.mu.RUnlock()

	snap.TickLatency = m.TickLatency.Stats()
	snap.SaveLatency = m.SaveLatency.Stats()
	snap.TicksProcessed = m.ticksProcessed.Load()
	snap.TicksStale = m.ticksStale.Load()
	snap.TicksInvalid = m.ticksInvalid.Load()
	snap.Entries = m.entries.Load()
	snap.TradeErrors = m.tradeErrors.Load()
	snap.Reconnects = m.reconnects.Load()
	snap.IdleTimeouts = m.idleTimeouts.Load()
	snap.CycleErrors = m.cycleErrors.Load()
	snap.NotifySent = m.notifySent.Load()
	snap.NotifyFailed = m.notifyFailed.Load()
	snap.LevelsLoaded = m.levelsLoaded.Load()
	snap.LevelFetchFails = m.levelFetchFails.Load()
	return snap
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
