// Package monitor aggregates per-agent request metrics and custom metric
// series, produces performance reports, and raises throttled alerts. It feeds
// on runtime events rather than being called by agents directly.
package monitor

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devops-hub/agenthub/agent"
	"github.com/devops-hub/agenthub/types"
)

// AggregateType selects the reduction applied by Aggregate.
type AggregateType string

const (
	AggregateAvg   AggregateType = "avg"
	AggregateSum   AggregateType = "sum"
	AggregateMin   AggregateType = "min"
	AggregateMax   AggregateType = "max"
	AggregateCount AggregateType = "count"
)

// Config tunes buffer sizes and alert throttling.
type Config struct {
	// SampleCapacity bounds each response-time and metric buffer; the
	// oldest sample is dropped when full.
	SampleCapacity int `json:"sample_capacity" yaml:"sample_capacity"`

	// AlertsPerMinute throttles alert fan-out per (agent, metric) pair.
	// Zero disables throttling.
	AlertsPerMinute int `json:"alerts_per_minute" yaml:"alerts_per_minute"`
}

// DefaultConfig keeps 1000 samples per series and 6 alerts per minute per
// alert source.
func DefaultConfig() Config {
	return Config{SampleCapacity: 1000, AlertsPerMinute: 6}
}

// AgentMetrics is an aggregate view of one agent's handled requests.
type AgentMetrics struct {
	AgentID       string    `json:"agent_id"`
	Requests      int64     `json:"requests"`
	Errors        int64     `json:"errors"`
	LastRequestAt time.Time `json:"last_request_at"`
}

// PerformanceReport summarizes an agent's buffered response times. All
// durations are milliseconds. P95 falls back to the max below 20 samples,
// where a percentile would not be meaningful.
type PerformanceReport struct {
	AgentID   string  `json:"agent_id"`
	Requests  int64   `json:"requests"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
	Samples   int     `json:"samples"`
	AvgMS     float64 `json:"avg_ms"`
	MinMS     float64 `json:"min_ms"`
	MaxMS     float64 `json:"max_ms"`
	MedianMS  float64 `json:"median_ms"`
	P95MS     float64 `json:"p95_ms"`
}

type agentSeries struct {
	metrics       AgentMetrics
	responseTimes *ring
}

// Monitor collects metrics, serves aggregate queries, and manages alerts.
type Monitor struct {
	mu      sync.RWMutex
	cfg     Config
	agents  map[string]*agentSeries
	series  map[string]*ring
	alerts  *alertBook
	logger  *zap.Logger
	subID   string
	nowFunc func() time.Time

	collector *Collector
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// WithCollector mirrors recorded requests into a prometheus collector.
func WithCollector(c *Collector) Option {
	return func(m *Monitor) { m.collector = c }
}

// withNow overrides the clock in tests.
func withNow(now func() time.Time) Option {
	return func(m *Monitor) { m.nowFunc = now }
}

// New creates a monitor with the given config.
func New(cfg Config, opts ...Option) *Monitor {
	if cfg.SampleCapacity <= 0 {
		cfg.SampleCapacity = DefaultConfig().SampleCapacity
	}
	m := &Monitor{
		cfg:     cfg,
		agents:  make(map[string]*agentSeries),
		series:  make(map[string]*ring),
		logger:  zap.NewNop(),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "monitor"))
	m.alerts = newAlertBook(cfg.AlertsPerMinute, m.logger)
	return m
}

// Attach subscribes the monitor to request-handled events on the bus.
func (m *Monitor) Attach(bus agent.EventBus) {
	m.subID = bus.Subscribe(agent.EventRequestHandled, func(e agent.Event) {
		rh, ok := e.(*agent.RequestHandledEvent)
		if !ok {
			return
		}
		var err error
		if rh.Err != "" {
			err = types.NewError(types.ErrCodeInternalError, rh.Err)
		}
		m.RecordRequest(rh.AgentID, rh.Duration, err)
	})
}

// Detach removes the bus subscription created by Attach.
func (m *Monitor) Detach(bus agent.EventBus) {
	if m.subID != "" {
		bus.Unsubscribe(m.subID)
		m.subID = ""
	}
}

// RecordRequest appends a response-time sample and bumps the request counter,
// plus the error counter when err is non-nil.
func (m *Monitor) RecordRequest(agentID string, responseTime time.Duration, err error) {
	now := m.nowFunc()
	ms := float64(responseTime.Microseconds()) / 1000.0

	m.mu.Lock()
	s, ok := m.agents[agentID]
	if !ok {
		s = &agentSeries{
			metrics:       AgentMetrics{AgentID: agentID},
			responseTimes: newRing(m.cfg.SampleCapacity),
		}
		m.agents[agentID] = s
	}
	s.metrics.Requests++
	if err != nil {
		s.metrics.Errors++
	}
	s.metrics.LastRequestAt = now
	s.responseTimes.add(point{value: ms, at: now})
	m.mu.Unlock()

	if m.collector != nil {
		m.collector.RecordRequest(agentID, responseTime, err)
	}
}

// Record appends a sample to a named custom metric series.
func (m *Monitor) Record(name string, value float64) {
	now := m.nowFunc()
	m.mu.Lock()
	r, ok := m.series[name]
	if !ok {
		r = newRing(m.cfg.SampleCapacity)
		m.series[name] = r
	}
	r.add(point{value: value, at: now})
	m.mu.Unlock()
}

// Aggregate reduces the samples of a named series recorded within the window.
// An unknown series or an empty window yields 0.0, never an error.
func (m *Monitor) Aggregate(name string, agg AggregateType, window time.Duration) float64 {
	cutoff := m.nowFunc().Add(-window)

	m.mu.RLock()
	r, ok := m.series[name]
	var values []float64
	if ok {
		values = r.values(cutoff)
	}
	m.mu.RUnlock()

	if len(values) == 0 {
		return 0.0
	}
	switch agg {
	case AggregateCount:
		return float64(len(values))
	case AggregateSum, AggregateAvg:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		if agg == AggregateSum {
			return sum
		}
		return sum / float64(len(values))
	case AggregateMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case AggregateMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max
	}
	return 0.0
}

// Metrics returns a snapshot of one agent's counters.
func (m *Monitor) Metrics(agentID string) (*AgentMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.agents[agentID]
	if !ok {
		return nil, types.NewErrorf(types.ErrCodeAgentNotFound, "no metrics for agent %s", agentID)
	}
	metrics := s.metrics
	return &metrics, nil
}

// Report computes the performance summary for one agent.
func (m *Monitor) Report(agentID string) (*PerformanceReport, error) {
	m.mu.RLock()
	s, ok := m.agents[agentID]
	if !ok {
		m.mu.RUnlock()
		return nil, types.NewErrorf(types.ErrCodeAgentNotFound, "no metrics for agent %s", agentID)
	}
	metrics := s.metrics
	points := s.responseTimes.snapshot()
	m.mu.RUnlock()

	report := &PerformanceReport{
		AgentID:  agentID,
		Requests: metrics.Requests,
		Errors:   metrics.Errors,
		Samples:  len(points),
	}
	if metrics.Requests > 0 {
		report.ErrorRate = float64(metrics.Errors) / float64(metrics.Requests)
	}
	if len(points) == 0 {
		return report, nil
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.value
	}
	sort.Float64s(values)

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	n := len(values)
	report.AvgMS = sum / float64(n)
	report.MinMS = values[0]
	report.MaxMS = values[n-1]
	if n%2 == 1 {
		report.MedianMS = values[n/2]
	} else {
		report.MedianMS = (values[n/2-1] + values[n/2]) / 2
	}
	if n >= 20 {
		report.P95MS = values[(n*95)/100]
	} else {
		report.P95MS = values[n-1]
	}
	return report, nil
}

// AgentIDs lists the agents with recorded metrics, sorted.
func (m *Monitor) AgentIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
