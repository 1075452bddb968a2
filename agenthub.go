// Package agenthub wires the hub components together: agent runtime,
// discovery registry, router, supervisor, workflow engine, and monitor.
//
// Usage:
//
//	import "github.com/devops-hub/agenthub"
//
//	hub, err := agenthub.New(config.DefaultConfig())
//	a := agent.New(agent.Config{ID: "worker-1", Name: "worker"})
//	a.RegisterCapability(types.NewCapability("deploy", "ship a release"), deployHandler)
//	hub.AddAgent(ctx, a)
//	resp := hub.Invoke(ctx, "worker-1", "deploy", map[string]any{"version": "1.2.3"})
package agenthub

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devops-hub/agenthub/agent"
	"github.com/devops-hub/agenthub/config"
	"github.com/devops-hub/agenthub/monitor"
	"github.com/devops-hub/agenthub/registry"
	"github.com/devops-hub/agenthub/router"
	"github.com/devops-hub/agenthub/supervisor"
	"github.com/devops-hub/agenthub/types"
	"github.com/devops-hub/agenthub/workflow"
)

// Hub hosts local agents and exposes invocation, discovery, and workflow
// orchestration over them. It implements workflow.Invoker so workflow steps
// dispatch through the same path as direct invocations.
type Hub struct {
	cfg    *config.Config
	logger *zap.Logger

	mu     sync.RWMutex
	agents map[string]*agent.Agent

	bus        agent.EventBus
	registry   *registry.Registry
	router     *router.Router
	supervisor *supervisor.Supervisor
	engine     *workflow.Engine
	monitor    *monitor.Monitor
}

// Option configures a Hub.
type Option func(*hubDeps)

// hubDeps collects injectable dependencies resolved during New.
type hubDeps struct {
	logger    *zap.Logger
	cardStore registry.CardStore
	execStore workflow.ExecutionStore
	collector *monitor.Collector
}

// WithLogger sets the hub logger, shared by all components.
func WithLogger(logger *zap.Logger) Option {
	return func(d *hubDeps) { d.logger = logger }
}

// WithCardStore overrides the registry's card persistence.
func WithCardStore(store registry.CardStore) Option {
	return func(d *hubDeps) { d.cardStore = store }
}

// WithExecutionStore overrides workflow execution persistence.
func WithExecutionStore(store workflow.ExecutionStore) Option {
	return func(d *hubDeps) { d.execStore = store }
}

// WithCollector exports hub metrics through the given Prometheus collector.
func WithCollector(c *monitor.Collector) Option {
	return func(d *hubDeps) { d.collector = c }
}

// New assembles a hub from configuration. Stores not overridden by options
// are built from the config: the registry card store from cfg.Registry.Store
// and the execution store from cfg.Database when enabled.
func New(cfg *config.Config, opts ...Option) (*Hub, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	deps := &hubDeps{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(deps)
	}
	logger := deps.logger

	if deps.cardStore == nil && cfg.Registry.Store == "redis" {
		store, err := registry.NewRedisCardStore(registry.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		deps.cardStore = store
	}
	if deps.execStore == nil && cfg.Database.Enabled {
		db, err := workflow.OpenDB(workflow.DBConfig{
			Driver: cfg.Database.Driver,
			DSN:    cfg.Database.DSN(),
		})
		if err != nil {
			return nil, err
		}
		store, err := workflow.NewGormExecutionStore(db)
		if err != nil {
			return nil, err
		}
		deps.execStore = store
	}

	bus := agent.NewEventBus(logger)

	regOpts := []registry.Option{registry.WithLogger(logger)}
	if deps.cardStore != nil {
		regOpts = append(regOpts, registry.WithStore(deps.cardStore))
	}
	reg := registry.New(&registry.Config{
		DefaultTTL:    cfg.Registry.DefaultTTL,
		SweepInterval: cfg.Registry.SweepInterval,
		EnableSweep:   cfg.Registry.EnableSweep,
	}, regOpts...)

	monOpts := []monitor.Option{monitor.WithLogger(logger)}
	if deps.collector != nil {
		monOpts = append(monOpts, monitor.WithCollector(deps.collector))
	}
	mon := monitor.New(monitor.Config{
		SampleCapacity:  cfg.Monitor.SampleCapacity,
		AlertsPerMinute: cfg.Monitor.AlertsPerMinute,
	}, monOpts...)
	mon.Attach(bus)

	h := &Hub{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "hub")),
		agents:   make(map[string]*agent.Agent),
		bus:      bus,
		registry: reg,
		router:   router.New(logger),
		monitor:  mon,
	}

	engineOpts := []workflow.EngineOption{
		workflow.WithLogger(logger),
		workflow.WithStepTimeout(cfg.Workflow.StepTimeout),
	}
	if deps.execStore != nil {
		engineOpts = append(engineOpts, workflow.WithStore(deps.execStore))
	}
	h.engine = workflow.NewEngine(h, engineOpts...)
	h.supervisor = supervisor.New(h.engine, supervisor.WithLogger(logger))

	return h, nil
}

// AddAgent starts the agent, registers its card for discovery, exposes it as
// a routing endpoint, and places it under supervision.
func (h *Hub) AddAgent(ctx context.Context, a *agent.Agent) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	card := a.Card(h.cfg.Registry.DefaultTTL)
	if err := h.registry.Register(ctx, card); err != nil {
		stopErr := a.Stop(ctx)
		if stopErr != nil {
			h.logger.Warn("failed to stop agent after registration failure",
				zap.String("agent_id", a.ID()), zap.Error(stopErr))
		}
		return err
	}

	caps := card.CapabilityNames()
	h.router.AddEndpoint(router.Endpoint{
		AgentID:      a.ID(),
		Capabilities: caps,
		MaxLoad:      1,
		Healthy:      true,
	})
	h.supervisor.RegisterAgent(a.ID(), a.Name(), caps)

	h.mu.Lock()
	h.agents[a.ID()] = a
	h.mu.Unlock()

	h.logger.Info("agent added",
		zap.String("agent_id", a.ID()),
		zap.Strings("capabilities", caps))
	return nil
}

// RemoveAgent stops the agent and withdraws it from discovery, routing, and
// supervision. Unknown IDs fail with AGENT_NOT_FOUND.
func (h *Hub) RemoveAgent(ctx context.Context, agentID string) error {
	h.mu.Lock()
	a, ok := h.agents[agentID]
	delete(h.agents, agentID)
	h.mu.Unlock()
	if !ok {
		return types.NewErrorf(types.ErrCodeAgentNotFound, "agent %s is not hosted here", agentID)
	}

	h.registry.Unregister(ctx, agentID)
	h.router.RemoveEndpoint(agentID)
	h.supervisor.UnregisterAgent(agentID)
	return a.Stop(ctx)
}

// Agent returns a hosted agent by ID.
func (h *Hub) Agent(agentID string) (*agent.Agent, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.agents[agentID]
	if !ok {
		return nil, types.NewErrorf(types.ErrCodeAgentNotFound, "agent %s is not hosted here", agentID)
	}
	return a, nil
}

// Invoke dispatches a capability invocation to a hosted agent. It never
// returns a nil response; failures are reported as error responses with a
// stable code. Implements workflow.Invoker.
func (h *Hub) Invoke(ctx context.Context, agentID, capability string, input map[string]any) *types.Response {
	msg := types.NewRequest(h.cfg.Hub.Name, agentID, capability, input)

	h.mu.RLock()
	a, ok := h.agents[agentID]
	h.mu.RUnlock()
	if !ok {
		return types.NewErrorResponse(msg, types.ErrCodeAgentNotFound, "agent "+agentID+" is not hosted here")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && h.cfg.Hub.DefaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.Hub.DefaultTimeout)
		defer cancel()
	}
	return a.HandleMessage(ctx, msg)
}

// Route resolves a request to a hosted agent through the router, preferring
// the given agent when it is available, and invokes it.
func (h *Hub) Route(ctx context.Context, capability string, input map[string]any, preferred string) *types.Response {
	msg := types.NewRequest(h.cfg.Hub.Name, "", capability, input)
	target, err := h.router.Route(msg, preferred)
	if err != nil {
		return types.NewErrorResponse(msg, types.GetErrorCode(err), err.Error())
	}
	return h.Invoke(ctx, target, capability, input)
}

// Discover queries the registry for agent cards matching the filter.
func (h *Hub) Discover(ctx context.Context, filter *registry.Filter) []*types.AgentCard {
	return h.registry.Discover(ctx, filter)
}

// RunWorkflow registers the definition if needed and executes it
// synchronously.
func (h *Hub) RunWorkflow(ctx context.Context, def *workflow.Definition, input map[string]any) (*workflow.Execution, error) {
	if _, err := h.engine.Definition(def.ID); err != nil {
		if regErr := h.engine.RegisterDefinition(def); regErr != nil {
			return nil, regErr
		}
	}
	return h.engine.Run(ctx, def.ID, input)
}

// Orchestrate launches a workflow asynchronously through the supervisor.
func (h *Hub) Orchestrate(ctx context.Context, def *workflow.Definition, input map[string]any) (*supervisor.OrchestrationResult, error) {
	return h.supervisor.Orchestrate(ctx, def, input)
}

// Execution returns a snapshot of a workflow execution.
func (h *Hub) Execution(id string) (*workflow.Execution, error) {
	return h.engine.Execution(id)
}

// CancelWorkflow requests cooperative cancellation of an execution.
func (h *Hub) CancelWorkflow(id string) error {
	return h.engine.Cancel(id)
}

// Registry exposes the discovery registry.
func (h *Hub) Registry() *registry.Registry { return h.registry }

// Router exposes the request router.
func (h *Hub) Router() *router.Router { return h.router }

// Supervisor exposes the agent supervisor.
func (h *Hub) Supervisor() *supervisor.Supervisor { return h.supervisor }

// Engine exposes the workflow engine.
func (h *Hub) Engine() *workflow.Engine { return h.engine }

// Monitor exposes the metrics monitor.
func (h *Hub) Monitor() *monitor.Monitor { return h.monitor }

// Bus exposes the runtime event bus.
func (h *Hub) Bus() agent.EventBus { return h.bus }

// Stop shuts the hub down: all hosted agents, the registry sweep loop, and
// the event bus. Safe to call once; agents already stopped are skipped.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	agents := make([]*agent.Agent, 0, len(h.agents))
	for _, a := range h.agents {
		agents = append(agents, a)
	}
	h.agents = make(map[string]*agent.Agent)
	h.mu.Unlock()

	var firstErr error
	for _, a := range agents {
		h.registry.Unregister(ctx, a.ID())
		h.router.RemoveEndpoint(a.ID())
		h.supervisor.UnregisterAgent(a.ID())
		if err := a.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	h.registry.Close()
	h.monitor.Detach(h.bus)
	h.bus.Stop()
	h.logger.Info("hub stopped")
	return firstErr
}

// Heartbeat refreshes an agent's registry card and supervisor status in one
// call.
func (h *Hub) Heartbeat(ctx context.Context, agentID string, status supervisor.AgentStatus) error {
	if err := h.registry.Refresh(ctx, agentID); err != nil {
		return err
	}
	return h.supervisor.Heartbeat(agentID, status)
}

// WaitForExecution blocks until the execution reaches a terminal status or
// the context expires, polling at the given interval.
func (h *Hub) WaitForExecution(ctx context.Context, id string, interval time.Duration) (*workflow.Execution, error) {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		exec, err := h.engine.Execution(id)
		if err != nil {
			return nil, err
		}
		if exec.Status.Terminal() {
			return exec, nil
		}
		select {
		case <-ctx.Done():
			return exec, ctx.Err()
		case <-ticker.C:
		}
	}
}
