package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Metric names shared by the services
const (
	TransitionsUpdated   = "transitions_updated"
	TransitionsRejected  = "transitions_rejected"
	TransitionsExecuted  = "transitions_executed"
	EventLogFailures     = "event_log_failures"
	WebhooksReceived     = "webhooks_received"
	WebhooksRejected     = "webhooks_rejected"
	SagaRuns             = "saga_runs"
	SagaDuplicates       = "saga_duplicates"
	SagaStepFailures     = "saga_step_failures"
	SagaDuration         = "saga_duration"
	NotificationsSent    = "notifications_sent"
	NotificationFailures = "notification_failures"
)

// TimerMetric captures timing information
type TimerMetric struct {
	Count         int64   `json:"count"`
	TotalTimeMs   int64   `json:"total_time_ms"`
	AverageTimeMs float64 `json:"average_time_ms"`
	MinTimeMs     int64   `json:"min_time_ms"`
	MaxTimeMs     int64   `json:"max_time_ms"`
}

type timer struct {
	count       int64
	totalTimeMs int64
	minTimeMs   int64
	maxTimeMs   int64
}

// Metrics is an in-process collector of counters, gauges, timers and health checks
type Metrics struct {
	mu        sync.RWMutex
	counters  map[string]*int64
	gauges    map[string]*int64
	timers    map[string]*timer
	health    map[string]*int32
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters:  make(map[string]*int64),
		gauges:    make(map[string]*int64),
		timers:    make(map[string]*timer),
		health:    make(map[string]*int32),
		startTime: time.Now(),
	}
}

func lookup[T any](m *Metrics, values map[string]*T, name string, init func() *T) *T {
	m.mu.RLock()
	v, ok := values[name]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok = values[name]; !ok {
		v = init()
		values[name] = v
	}
	return v
}

func newInt64() *int64 { return new(int64) }

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	m.IncrementCounterBy(name, 1)
}

// IncrementCounterBy increments a counter by the specified value
func (m *Metrics) IncrementCounterBy(name string, value int64) {
	if m == nil {
		return
	}
	atomic.AddInt64(lookup(m, m.counters, name, newInt64), value)
}

// IncrementLabeled increments the counter name:label
func (m *Metrics) IncrementLabeled(name, label string) {
	m.IncrementCounter(name + ":" + label)
}

// Counter returns the current value of a counter
func (m *Metrics) Counter(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.counters[name]; ok {
		return atomic.LoadInt64(c)
	}
	return 0
}

// SetGauge sets a gauge to a specific value
func (m *Metrics) SetGauge(name string, value int64) {
	if m == nil {
		return
	}
	atomic.StoreInt64(lookup(m, m.gauges, name, newInt64), value)
}

// RecordTimer records a timing measurement
func (m *Metrics) RecordTimer(name string, d time.Duration) {
	if m == nil {
		return
	}
	t := lookup(m, m.timers, name, func() *timer { return &timer{minTimeMs: math.MaxInt64} })
	ms := d.Milliseconds()

	atomic.AddInt64(&t.count, 1)
	atomic.AddInt64(&t.totalTimeMs, ms)
	for {
		cur := atomic.LoadInt64(&t.minTimeMs)
		if ms >= cur || atomic.CompareAndSwapInt64(&t.minTimeMs, cur, ms) {
			break
		}
	}
	for {
		cur := atomic.LoadInt64(&t.maxTimeMs)
		if ms <= cur || atomic.CompareAndSwapInt64(&t.maxTimeMs, cur, ms) {
			break
		}
	}
}

// ObserveSince records the time elapsed since start
func (m *Metrics) ObserveSince(name string, start time.Time) {
	m.RecordTimer(name, time.Since(start))
}

// SetHealth records the status of a dependency
func (m *Metrics) SetHealth(name string, healthy bool) {
	if m == nil {
		return
	}
	var v int32
	if healthy {
		v = 1
	}
	atomic.StoreInt32(lookup(m, m.health, name, func() *int32 { return new(int32) }), v)
}

// GetHealthChecks returns the status of every registered dependency
func (m *Metrics) GetHealthChecks() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.health))
	for name, v := range m.health {
		out[name] = atomic.LoadInt32(v) == 1
	}
	return out
}

// GetAllMetrics returns a snapshot of every metric
func (m *Metrics) GetAllMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		counters[name] = atomic.LoadInt64(v)
	}
	gauges := make(map[string]int64, len(m.gauges))
	for name, v := range m.gauges {
		gauges[name] = atomic.LoadInt64(v)
	}
	timers := make(map[string]TimerMetric, len(m.timers))
	for name, t := range m.timers {
		count := atomic.LoadInt64(&t.count)
		total := atomic.LoadInt64(&t.totalTimeMs)
		tm := TimerMetric{Count: count, TotalTimeMs: total, MaxTimeMs: atomic.LoadInt64(&t.maxTimeMs)}
		if count > 0 {
			tm.AverageTimeMs = float64(total) / float64(count)
			tm.MinTimeMs = atomic.LoadInt64(&t.minTimeMs)
		}
		timers[name] = tm
	}
	health := make(map[string]bool, len(m.health))
	for name, v := range m.health {
		health[name] = atomic.LoadInt32(v) == 1
	}

	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"counters":       counters,
		"gauges":         gauges,
		"timers":         timers,
		"health":         health,
	}
}
