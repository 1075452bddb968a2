package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/devops-hub/agenthub/types"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert records a threshold violation observed by the monitor.
type Alert struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agent_id"`
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
	Metric       string    `json:"metric"`
	Value        float64   `json:"value"`
	Threshold    float64   `json:"threshold"`
	RaisedAt     time.Time `json:"raised_at"`
	Acknowledged bool      `json:"acknowledged"`
}

// AlertHandler receives raised alerts. Panics are recovered and logged.
type AlertHandler func(Alert)

// alertBook owns alert storage, handler fan-out, and per-source throttling.
type alertBook struct {
	mu       sync.Mutex
	alerts   map[string]*Alert
	order    []string
	handlers []AlertHandler
	limiters map[string]*rate.Limiter
	perMin   int
	logger   *zap.Logger
}

func newAlertBook(alertsPerMinute int, logger *zap.Logger) *alertBook {
	return &alertBook{
		alerts:   make(map[string]*Alert),
		limiters: make(map[string]*rate.Limiter),
		perMin:   alertsPerMinute,
		logger:   logger,
	}
}

// RaiseAlert stores the alert and fans it out to registered handlers. Alerts
// for the same (agent, metric) pair beyond the configured rate are suppressed
// and nil is returned. Handler panics never reach the caller.
func (m *Monitor) RaiseAlert(agentID string, severity Severity, message, metric string, value, threshold float64) *Alert {
	b := m.alerts
	b.mu.Lock()
	if b.perMin > 0 {
		key := agentID + "/" + metric
		limiter, ok := b.limiters[key]
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(float64(b.perMin)/60.0), b.perMin)
			b.limiters[key] = limiter
		}
		if !limiter.Allow() {
			b.mu.Unlock()
			b.logger.Debug("alert suppressed",
				zap.String("agent_id", agentID),
				zap.String("metric", metric))
			return nil
		}
	}
	alert := &Alert{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Severity:  severity,
		Message:   message,
		Metric:    metric,
		Value:     value,
		Threshold: threshold,
		RaisedAt:  m.nowFunc(),
	}
	b.alerts[alert.ID] = alert
	b.order = append(b.order, alert.ID)
	handlers := append([]AlertHandler(nil), b.handlers...)
	b.mu.Unlock()

	if m.collector != nil {
		m.collector.RecordAlert(agentID, severity)
	}
	m.logger.Warn("alert raised",
		zap.String("agent_id", agentID),
		zap.String("severity", string(severity)),
		zap.String("metric", metric),
		zap.Float64("value", value),
		zap.Float64("threshold", threshold))

	snapshot := *alert
	for _, h := range handlers {
		handler := h
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("alert handler panicked", zap.Any("recover", r))
				}
			}()
			handler(snapshot)
		}()
	}
	return &snapshot
}

// OnAlert registers a handler for future alerts.
func (m *Monitor) OnAlert(h AlertHandler) {
	m.alerts.mu.Lock()
	m.alerts.handlers = append(m.alerts.handlers, h)
	m.alerts.mu.Unlock()
}

// Acknowledge marks an alert acknowledged. Repeat calls are no-ops; unknown
// IDs fail with ALERT_NOT_FOUND.
func (m *Monitor) Acknowledge(alertID string) error {
	m.alerts.mu.Lock()
	defer m.alerts.mu.Unlock()
	alert, ok := m.alerts.alerts[alertID]
	if !ok {
		return types.NewErrorf(types.ErrCodeAlertNotFound, "alert %s not found", alertID)
	}
	alert.Acknowledged = true
	return nil
}

// Alerts returns alerts in raise order. With onlyOpen set, acknowledged
// alerts are filtered out.
func (m *Monitor) Alerts(onlyOpen bool) []Alert {
	m.alerts.mu.Lock()
	defer m.alerts.mu.Unlock()
	out := make([]Alert, 0, len(m.alerts.order))
	for _, id := range m.alerts.order {
		alert := m.alerts.alerts[id]
		if onlyOpen && alert.Acknowledged {
			continue
		}
		out = append(out, *alert)
	}
	return out
}
