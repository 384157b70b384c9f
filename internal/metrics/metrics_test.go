package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreConcurrencySafe(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementCounter(SagaRuns)
			m.IncrementLabeled(WebhooksReceived, "docusign")
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.Counter(SagaRuns))
	assert.Equal(t, int64(50), m.Counter(WebhooksReceived+":docusign"))
	assert.Equal(t, int64(0), m.Counter("missing"))
}

func TestTimers(t *testing.T) {
	m := NewMetrics()
	m.RecordTimer(SagaDuration, 10*time.Millisecond)
	m.RecordTimer(SagaDuration, 30*time.Millisecond)

	all := m.GetAllMetrics()
	timers, ok := all["timers"].(map[string]TimerMetric)
	require.True(t, ok)
	tm := timers[SagaDuration]
	assert.Equal(t, int64(2), tm.Count)
	assert.Equal(t, int64(10), tm.MinTimeMs)
	assert.Equal(t, int64(30), tm.MaxTimeMs)
	assert.InDelta(t, 20.0, tm.AverageTimeMs, 0.001)
}

func TestHealth(t *testing.T) {
	m := NewMetrics()
	m.SetHealth("database", true)
	m.SetHealth("redis", false)
	assert.Equal(t, map[string]bool{"database": true, "redis": false}, m.GetHealthChecks())
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementCounter(SagaRuns)
		m.RecordTimer(SagaDuration, time.Second)
		m.SetHealth("x", true)
	})
}
