package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector exports hub metrics to Prometheus. It registers on the default
// registry; use distinct namespaces when creating more than one.
type Collector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	errorsTotal      *prometheus.CounterVec
	stateTransitions *prometheus.CounterVec

	workflowsTotal   *prometheus.CounterVec
	workflowDuration *prometheus.HistogramVec

	registeredAgents prometheus.Gauge
	alertsTotal      *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates and registers the metric vectors under the namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_requests_total",
			Help:      "Total number of handled agent requests",
		},
		[]string{"agent_id", "status"},
	)

	c.requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_request_duration_seconds",
			Help:      "Agent request handling duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"agent_id"},
	)

	c.errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_errors_total",
			Help:      "Total number of failed agent requests",
		},
		[]string{"agent_id"},
	)

	c.stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_state_transitions_total",
			Help:      "Total number of agent state transitions",
		},
		[]string{"agent_id", "from_state", "to_state"},
	)

	c.workflowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_executions_total",
			Help:      "Total number of workflow executions",
		},
		[]string{"workflow_id", "status"},
	)

	c.workflowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_execution_duration_seconds",
			Help:      "Workflow execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"workflow_id"},
	)

	c.registeredAgents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_agents",
			Help:      "Number of agents currently registered",
		},
	)

	c.alertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Total number of alerts raised",
		},
		[]string{"agent_id", "severity"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordRequest records one handled request.
func (c *Collector) RecordRequest(agentID string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		c.errorsTotal.WithLabelValues(agentID).Inc()
	}
	c.requestsTotal.WithLabelValues(agentID, status).Inc()
	c.requestDuration.WithLabelValues(agentID).Observe(duration.Seconds())
}

// RecordStateTransition records one agent lifecycle transition.
func (c *Collector) RecordStateTransition(agentID, fromState, toState string) {
	c.stateTransitions.WithLabelValues(agentID, fromState, toState).Inc()
}

// RecordWorkflow records one finished workflow execution.
func (c *Collector) RecordWorkflow(workflowID, status string, duration time.Duration) {
	c.workflowsTotal.WithLabelValues(workflowID, status).Inc()
	c.workflowDuration.WithLabelValues(workflowID).Observe(duration.Seconds())
}

// SetRegisteredAgents updates the registered-agent gauge.
func (c *Collector) SetRegisteredAgents(n int) {
	c.registeredAgents.Set(float64(n))
}

// RecordAlert records one raised alert.
func (c *Collector) RecordAlert(agentID string, severity Severity) {
	c.alertsTotal.WithLabelValues(agentID, string(severity)).Inc()
}
