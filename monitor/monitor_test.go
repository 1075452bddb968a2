package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devops-hub/agenthub/agent"
	"github.com/devops-hub/agenthub/types"
)

func TestRecordRequestCounters(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordRequest("a1", 10*time.Millisecond, nil)
	m.RecordRequest("a1", 20*time.Millisecond, types.NewError(types.ErrCodeTimeout, "slow"))
	m.RecordRequest("a2", 5*time.Millisecond, nil)

	metrics, err := m.Metrics("a1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), metrics.Requests)
	assert.Equal(t, int64(1), metrics.Errors)

	_, err = m.Metrics("ghost")
	assert.Equal(t, types.ErrCodeAgentNotFound, types.GetErrorCode(err))

	assert.Equal(t, []string{"a1", "a2"}, m.AgentIDs())
}

func TestRingDropsOldest(t *testing.T) {
	m := New(Config{SampleCapacity: 3})
	for i := 1; i <= 5; i++ {
		m.RecordRequest("a1", time.Duration(i)*time.Millisecond, nil)
	}

	report, err := m.Report("a1")
	require.NoError(t, err)
	// Samples 1 and 2 were dropped; 3,4,5 remain.
	assert.Equal(t, 3, report.Samples)
	assert.InDelta(t, 3.0, report.MinMS, 1e-9)
	assert.InDelta(t, 5.0, report.MaxMS, 1e-9)
	assert.Equal(t, int64(5), report.Requests, "counters are not bounded by the ring")
}

func TestAggregateWindow(t *testing.T) {
	now := time.Now()
	clock := now
	m := New(DefaultConfig(), withNow(func() time.Time { return clock }))

	clock = now.Add(-2 * time.Minute)
	m.Record("queue_depth", 100)
	clock = now.Add(-30 * time.Second)
	m.Record("queue_depth", 10)
	clock = now
	m.Record("queue_depth", 20)

	// Only the two samples inside the window count.
	assert.InDelta(t, 15.0, m.Aggregate("queue_depth", AggregateAvg, time.Minute), 1e-9)
	assert.InDelta(t, 30.0, m.Aggregate("queue_depth", AggregateSum, time.Minute), 1e-9)
	assert.InDelta(t, 10.0, m.Aggregate("queue_depth", AggregateMin, time.Minute), 1e-9)
	assert.InDelta(t, 20.0, m.Aggregate("queue_depth", AggregateMax, time.Minute), 1e-9)
	assert.InDelta(t, 2.0, m.Aggregate("queue_depth", AggregateCount, time.Minute), 1e-9)

	// A wider window sees all three.
	assert.InDelta(t, 130.0, m.Aggregate("queue_depth", AggregateSum, time.Hour), 1e-9)
}

func TestAggregateEmptyIsZero(t *testing.T) {
	now := time.Now()
	clock := now
	m := New(DefaultConfig(), withNow(func() time.Time { return clock }))
	assert.Zero(t, m.Aggregate("never_recorded", AggregateAvg, time.Minute))

	clock = now.Add(-time.Hour)
	m.Record("old", 42)
	clock = now
	assert.Zero(t, m.Aggregate("old", AggregateSum, time.Minute), "samples outside the window are excluded")
}

func TestReportPercentiles(t *testing.T) {
	m := New(DefaultConfig())

	// Below 20 samples p95 falls back to the max.
	for i := 1; i <= 5; i++ {
		m.RecordRequest("small", time.Duration(i)*time.Millisecond, nil)
	}
	report, err := m.Report("small")
	require.NoError(t, err)
	assert.InDelta(t, 3.0, report.AvgMS, 1e-9)
	assert.InDelta(t, 3.0, report.MedianMS, 1e-9)
	assert.InDelta(t, 5.0, report.P95MS, 1e-9)

	// With 100 samples of 1..100ms the p95 is a real percentile.
	for i := 1; i <= 100; i++ {
		m.RecordRequest("big", time.Duration(i)*time.Millisecond, nil)
	}
	report, err = m.Report("big")
	require.NoError(t, err)
	assert.InDelta(t, 50.5, report.MedianMS, 1e-9)
	assert.InDelta(t, 96.0, report.P95MS, 1e-9)
	assert.InDelta(t, 1.0, report.MinMS, 1e-9)
	assert.InDelta(t, 100.0, report.MaxMS, 1e-9)

	_, err = m.Report("ghost")
	assert.Equal(t, types.ErrCodeAgentNotFound, types.GetErrorCode(err))
}

func TestAlertsFanOutAndAcknowledge(t *testing.T) {
	m := New(Config{SampleCapacity: 10})

	var received []Alert
	m.OnAlert(func(a Alert) { received = append(received, a) })
	m.OnAlert(func(Alert) { panic("bad handler") })

	alert := m.RaiseAlert("a1", SeverityCritical, "error rate too high", "error_rate", 0.5, 0.1)
	require.NotNil(t, alert)
	require.Len(t, received, 1, "a panicking handler must not block others")
	assert.Equal(t, "a1", received[0].AgentID)
	assert.Equal(t, SeverityCritical, received[0].Severity)

	require.NoError(t, m.Acknowledge(alert.ID))
	require.NoError(t, m.Acknowledge(alert.ID), "acknowledge is idempotent")

	err := m.Acknowledge("missing")
	assert.Equal(t, types.ErrCodeAlertNotFound, types.GetErrorCode(err))

	assert.Len(t, m.Alerts(false), 1)
	assert.Empty(t, m.Alerts(true))
}

func TestAlertThrottling(t *testing.T) {
	m := New(Config{SampleCapacity: 10, AlertsPerMinute: 2})

	require.NotNil(t, m.RaiseAlert("a1", SeverityWarning, "w", "latency", 1, 0))
	require.NotNil(t, m.RaiseAlert("a1", SeverityWarning, "w", "latency", 2, 0))
	assert.Nil(t, m.RaiseAlert("a1", SeverityWarning, "w", "latency", 3, 0), "third alert in the window is suppressed")

	// A different metric has its own budget.
	assert.NotNil(t, m.RaiseAlert("a1", SeverityWarning, "w", "error_rate", 1, 0))
	assert.Len(t, m.Alerts(false), 3)
}

func TestAttachConsumesBusEvents(t *testing.T) {
	bus := agent.NewEventBus(nil)
	defer bus.Stop()

	m := New(DefaultConfig())
	m.Attach(bus)
	defer m.Detach(bus)

	bus.Publish(&agent.RequestHandledEvent{
		AgentID:    "a1",
		Capability: "deploy",
		Duration:   12 * time.Millisecond,
		At:         time.Now(),
	})
	bus.Publish(&agent.RequestHandledEvent{
		AgentID:  "a1",
		Duration: 30 * time.Millisecond,
		Err:      "handler timed out",
		At:       time.Now(),
	})

	require.Eventually(t, func() bool {
		metrics, err := m.Metrics("a1")
		return err == nil && metrics.Requests == 2 && metrics.Errors == 1
	}, time.Second, 5*time.Millisecond)
}
