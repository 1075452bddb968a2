// Package supervisor maintains a managed-agent table, scores agents for task
// assignment, and drives workflow executions. The table is deliberately
// independent of the discovery registry so supervision keeps working when
// discovery is unavailable.
package supervisor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devops-hub/agenthub/types"
	"github.com/devops-hub/agenthub/workflow"
)

// AgentStatus is the supervisor's view of a managed agent's health.
type AgentStatus string

const (
	StatusHealthy   AgentStatus = "healthy"
	StatusDegraded  AgentStatus = "degraded"
	StatusUnhealthy AgentStatus = "unhealthy"
)

// ManagedAgent is one row of the supervision table.
type ManagedAgent struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Capabilities  []string    `json:"capabilities"`
	Status        AgentStatus `json:"status"`
	TaskCount     int         `json:"task_count"`
	RegisteredAt  time.Time   `json:"registered_at"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
}

func (a *ManagedAgent) clone() *ManagedAgent {
	cp := *a
	cp.Capabilities = append([]string(nil), a.Capabilities...)
	return &cp
}

// Assignment is the result of routing a task to a managed agent.
type Assignment struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
}

// OrchestrationResult acknowledges an asynchronous workflow launch.
type OrchestrationResult struct {
	WorkflowID  string `json:"workflow_id"`
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// Supervisor tracks managed agents in insertion order so score ties resolve
// to the first registered agent.
type Supervisor struct {
	mu     sync.RWMutex
	agents map[string]*ManagedAgent
	order  []string

	engine *workflow.Engine
	logger *zap.Logger
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the supervisor logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// New creates a supervisor driving workflows through the given engine. The
// engine may be nil when only task routing is needed.
func New(engine *workflow.Engine, opts ...Option) *Supervisor {
	s := &Supervisor{
		agents: make(map[string]*ManagedAgent),
		engine: engine,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "supervisor"))
	return s
}

// RegisterAgent adds an agent to the supervision table. Re-registering an
// existing ID replaces its capabilities and resets its status to healthy but
// keeps its position in the tie-break order.
func (s *Supervisor) RegisterAgent(id, name string, capabilities []string) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.agents[id]; ok {
		existing.Name = name
		existing.Capabilities = append([]string(nil), capabilities...)
		existing.Status = StatusHealthy
		existing.LastHeartbeat = now
		return
	}
	s.agents[id] = &ManagedAgent{
		ID:            id,
		Name:          name,
		Capabilities:  append([]string(nil), capabilities...),
		Status:        StatusHealthy,
		RegisteredAt:  now,
		LastHeartbeat: now,
	}
	s.order = append(s.order, id)
	s.logger.Info("agent registered",
		zap.String("agent_id", id),
		zap.Strings("capabilities", capabilities))
}

// Heartbeat updates an agent's status and heartbeat time.
func (s *Supervisor) Heartbeat(id string, status AgentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	if !ok {
		return types.NewErrorf(types.ErrCodeAgentNotFound, "agent %s is not managed", id)
	}
	agent.Status = status
	agent.LastHeartbeat = time.Now()
	return nil
}

// UnregisterAgent removes an agent from the table. Unknown IDs are a no-op.
func (s *Supervisor) UnregisterAgent(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return
	}
	delete(s.agents, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Agent returns a snapshot of one managed agent.
func (s *Supervisor) Agent(id string) (*ManagedAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, types.NewErrorf(types.ErrCodeAgentNotFound, "agent %s is not managed", id)
	}
	return agent.clone(), nil
}

// Agents returns snapshots of all managed agents in registration order.
func (s *Supervisor) Agents() []*ManagedAgent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ManagedAgent, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.agents[id].clone())
	}
	return out
}

// RouteTask picks the healthy managed agent with the highest score for the
// given requirements: the fraction of requirements the agent covers,
// discounted by its current task load. The winner's task count is
// incremented; the caller reports completion through TaskCompleted. Fails
// with NO_AGENT_AVAILABLE when no agent covers any requirement.
func (s *Supervisor) RouteTask(requirements []string) (*Assignment, error) {
	if len(requirements) == 0 {
		return nil, types.NewError(types.ErrCodeNoAgentAvailable, "task has no requirements")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *ManagedAgent
	bestScore := 0.0
	for _, id := range s.order {
		agent := s.agents[id]
		if agent.Status != StatusHealthy {
			continue
		}
		score := scoreAgent(agent, requirements)
		if score > bestScore {
			best = agent
			bestScore = score
		}
	}
	if best == nil {
		return nil, types.NewError(types.ErrCodeNoAgentAvailable, "no managed agent matches the task requirements")
	}
	best.TaskCount++
	s.logger.Debug("task routed",
		zap.String("agent_id", best.ID),
		zap.Float64("score", bestScore))
	return &Assignment{AgentID: best.ID, Score: bestScore}, nil
}

func scoreAgent(agent *ManagedAgent, requirements []string) float64 {
	caps := make(map[string]struct{}, len(agent.Capabilities))
	for _, c := range agent.Capabilities {
		caps[c] = struct{}{}
	}
	matched := 0
	for _, req := range requirements {
		if _, ok := caps[req]; ok {
			matched++
		}
	}
	matchFraction := float64(matched) / float64(len(requirements))
	return matchFraction * (1.0 / (1.0 + float64(agent.TaskCount)))
}

// TaskCompleted decrements an agent's task count. Unknown agents and zero
// counts are no-ops.
func (s *Supervisor) TaskCompleted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if agent, ok := s.agents[id]; ok && agent.TaskCount > 0 {
		agent.TaskCount--
	}
}

// Orchestrate registers the definition if needed and launches an execution
// asynchronously. The caller gets the execution ID immediately and observes
// progress through WorkflowStatus.
func (s *Supervisor) Orchestrate(ctx context.Context, def *workflow.Definition, input map[string]any) (*OrchestrationResult, error) {
	if s.engine == nil {
		return nil, types.NewError(types.ErrCodeInternalError, "supervisor has no workflow engine")
	}
	if _, err := s.engine.Definition(def.ID); err != nil {
		if regErr := s.engine.RegisterDefinition(def); regErr != nil {
			return nil, regErr
		}
	}
	execID, err := s.engine.Start(ctx, def.ID, input)
	if err != nil {
		return nil, err
	}
	s.logger.Info("workflow orchestrated",
		zap.String("workflow_id", def.ID),
		zap.String("execution_id", execID))
	return &OrchestrationResult{
		WorkflowID:  def.ID,
		ExecutionID: execID,
		Status:      "started",
	}, nil
}

// WorkflowStatus returns a snapshot of a running or finished execution.
func (s *Supervisor) WorkflowStatus(executionID string) (*workflow.Execution, error) {
	if s.engine == nil {
		return nil, types.NewError(types.ErrCodeInternalError, "supervisor has no workflow engine")
	}
	return s.engine.Execution(executionID)
}

// WorkflowList returns snapshots of all known executions.
func (s *Supervisor) WorkflowList() []*workflow.Execution {
	if s.engine == nil {
		return nil
	}
	return s.engine.Executions()
}

// CancelWorkflow requests cooperative cancellation of an execution.
func (s *Supervisor) CancelWorkflow(executionID string) error {
	if s.engine == nil {
		return types.NewError(types.ErrCodeInternalError, "supervisor has no workflow engine")
	}
	return s.engine.Cancel(executionID)
}
