package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devops-hub/agenthub/types"
)

// HookEvent names a lifecycle event that per-agent hooks can observe.
type HookEvent string

const (
	HookAgentStarted HookEvent = "agent_started"
	HookAgentStopped HookEvent = "agent_stopped"
	HookAgentPaused  HookEvent = "agent_paused"
	HookAgentResumed HookEvent = "agent_resumed"
)

// Handler processes one request message for a capability and returns the
// result payload. Errors and panics are converted to failed Responses at the
// runtime boundary; they never escape HandleMessage.
type Handler func(ctx context.Context, msg types.Message) (any, error)

// Hook observes a lifecycle event. Hook failures are logged and never abort
// the emitting transition.
type Hook func(agentID string)

// Config describes an agent instance.
type Config struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Version     string            `json:"version,omitempty" yaml:"version"`
	Description string            `json:"description,omitempty" yaml:"description"`
	Domain      string            `json:"domain,omitempty" yaml:"domain"`
	Tags        []string          `json:"tags,omitempty" yaml:"tags"`
	Endpoint    string            `json:"endpoint,omitempty" yaml:"endpoint"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata"`
}

// Agent is a single worker unit: a lifecycle state machine plus a capability
// dispatch table. At most one in-flight HandleMessage call mutates an agent's
// state at a time; concurrent callers observe AGENT_NOT_READY instead of
// queuing.
type Agent struct {
	config Config

	stateMu sync.RWMutex
	state   State

	handlersMu sync.RWMutex
	handlers   map[string]Handler
	caps       []types.Capability
	generic    Handler

	hooksMu sync.RWMutex
	hooks   map[HookEvent][]Hook

	startHook    func(ctx context.Context) error
	shutdownHook func(ctx context.Context) error

	countersMu        sync.Mutex
	requestsProcessed int64
	errorsCount       int64

	startedAt time.Time
	bus       EventBus
	logger    *zap.Logger
}

// Option customizes an Agent at construction time.
type Option func(*Agent)

// WithBus attaches an event bus the agent publishes state-change and
// request-handled events to.
func WithBus(bus EventBus) Option {
	return func(a *Agent) { a.bus = bus }
}

// WithLogger sets the agent logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithStartHook sets the hook run inside Start before the agent becomes
// ready. A hook error leaves the agent in the error state.
func WithStartHook(hook func(ctx context.Context) error) Option {
	return func(a *Agent) { a.startHook = hook }
}

// WithShutdownHook sets the hook run inside Stop while shutting down.
func WithShutdownHook(hook func(ctx context.Context) error) Option {
	return func(a *Agent) { a.shutdownHook = hook }
}

// WithGenericProcessor replaces the default fallback handler used when no
// capability-specific handler matches.
func WithGenericProcessor(h Handler) Option {
	return func(a *Agent) {
		if h != nil {
			a.generic = h
		}
	}
}

// New creates an agent in the initializing state.
func New(cfg Config, opts ...Option) *Agent {
	a := &Agent{
		config:   cfg,
		state:    StateInitializing,
		handlers: make(map[string]Handler),
		hooks:    make(map[HookEvent][]Hook),
		generic:  defaultGenericProcessor,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("agent_id", cfg.ID))
	return a
}

// defaultGenericProcessor echoes the request payload back. It keeps agents
// responsive to capabilities registered on the card but not yet wired to a
// handler.
func defaultGenericProcessor(_ context.Context, msg types.Message) (any, error) {
	return map[string]any{
		"capability": msg.Capability,
		"payload":    msg.Payload,
		"processed":  true,
	}, nil
}

// ID returns the agent ID.
func (a *Agent) ID() string { return a.config.ID }

// Name returns the agent name.
func (a *Agent) Name() string { return a.config.Name }

// Config returns the agent configuration.
func (a *Agent) Config() Config { return a.config }

// State returns the current lifecycle state.
func (a *Agent) State() State {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.state
}

// transition performs a validated state change and publishes it.
func (a *Agent) transition(to State) error {
	a.stateMu.Lock()
	from := a.state
	if !CanTransition(from, to) {
		a.stateMu.Unlock()
		return ErrInvalidTransition{From: from, To: to}
	}
	a.state = to
	a.stateMu.Unlock()

	a.logger.Debug("state transition", zap.String("from", string(from)), zap.String("to", string(to)))

	if a.bus != nil {
		a.bus.Publish(&StateChangeEvent{
			AgentID:   a.config.ID,
			FromState: from,
			ToState:   to,
			At:        time.Now(),
		})
	}
	return nil
}

// Start runs the startup hook and moves the agent to ready. It is only legal
// from the initializing state.
func (a *Agent) Start(ctx context.Context) error {
	if s := a.State(); s != StateInitializing {
		return types.NewErrorf(types.ErrCodeInvalidTransition, "start from state %s", s).
			WithCause(ErrInvalidTransition{From: s, To: StateReady})
	}

	if a.startHook != nil {
		if err := a.startHook(ctx); err != nil {
			_ = a.transition(StateError)
			return types.NewError(types.ErrCodeInternalError, "startup hook failed").WithCause(err)
		}
	}

	if err := a.transition(StateReady); err != nil {
		return err
	}
	a.startedAt = time.Now()
	a.logger.Info("agent started", zap.String("agent_name", a.config.Name))
	a.emitHook(HookAgentStarted)
	if a.bus != nil {
		a.bus.Publish(&LifecycleEvent{AgentID: a.config.ID, EventType: EventAgentStarted, At: time.Now()})
	}
	return nil
}

// Pause moves a ready agent to paused. Calling it from any other state is a
// no-op, not an error.
func (a *Agent) Pause() {
	a.stateMu.Lock()
	if a.state != StateReady {
		a.stateMu.Unlock()
		return
	}
	a.state = StatePaused
	a.stateMu.Unlock()

	a.logger.Info("agent paused")
	a.emitHook(HookAgentPaused)
}

// Resume moves a paused agent back to ready. No-op from other states.
func (a *Agent) Resume() {
	a.stateMu.Lock()
	if a.state != StatePaused {
		a.stateMu.Unlock()
		return
	}
	a.state = StateReady
	a.stateMu.Unlock()

	a.logger.Info("agent resumed")
	a.emitHook(HookAgentResumed)
}

// Stop transitions through shutting_down to stopped, running the shutdown
// hook. It is legal from any state and idempotent.
func (a *Agent) Stop(ctx context.Context) error {
	a.stateMu.Lock()
	if a.state == StateStopped || a.state == StateShuttingDown {
		a.stateMu.Unlock()
		return nil
	}
	a.state = StateShuttingDown
	a.stateMu.Unlock()

	a.logger.Info("agent shutting down")

	var hookErr error
	if a.shutdownHook != nil {
		if err := a.shutdownHook(ctx); err != nil {
			a.logger.Error("shutdown hook failed", zap.Error(err))
			hookErr = err
		}
	}

	a.stateMu.Lock()
	a.state = StateStopped
	a.stateMu.Unlock()

	a.logger.Info("agent stopped")
	a.emitHook(HookAgentStopped)
	if a.bus != nil {
		a.bus.Publish(&LifecycleEvent{AgentID: a.config.ID, EventType: EventAgentStopped, At: time.Now()})
	}
	return hookErr
}

// RegisterCapability registers (or overwrites by name) a capability and its
// handler. Capabilities registered with a nil handler fall back to the
// generic processor on dispatch.
func (a *Agent) RegisterCapability(cap types.Capability, handler Handler) {
	a.handlersMu.Lock()
	defer a.handlersMu.Unlock()

	if handler != nil {
		a.handlers[cap.Name] = handler
	}
	for i := range a.caps {
		if a.caps[i].Name == cap.Name {
			a.caps[i] = cap
			return
		}
	}
	a.caps = append(a.caps, cap)
}

// Capabilities returns the advertised capabilities in registration order.
func (a *Agent) Capabilities() []types.Capability {
	a.handlersMu.RLock()
	defer a.handlersMu.RUnlock()
	return append([]types.Capability(nil), a.caps...)
}

// Card builds the discovery card advertising this agent.
func (a *Agent) Card(ttl time.Duration) *types.AgentCard {
	now := time.Now()
	return &types.AgentCard{
		AgentID:      a.config.ID,
		Name:         a.config.Name,
		Version:      a.config.Version,
		Description:  a.config.Description,
		Capabilities: a.Capabilities(),
		Protocols:    []string{types.ProtocolTag},
		Endpoint:     a.config.Endpoint,
		Domain:       a.config.Domain,
		Tags:         append([]string(nil), a.config.Tags...),
		Metadata:     a.config.Metadata,
		RegisteredAt: now,
		LastSeen:     now,
		TTLSeconds:   int64(ttl / time.Second),
	}
}

// On registers a hook for a named lifecycle event. Multiple hooks per event
// are supported and run in registration order.
func (a *Agent) On(event HookEvent, hook Hook) {
	if hook == nil {
		return
	}
	a.hooksMu.Lock()
	defer a.hooksMu.Unlock()
	a.hooks[event] = append(a.hooks[event], hook)
}

func (a *Agent) emitHook(event HookEvent) {
	a.hooksMu.RLock()
	hooks := append([]Hook(nil), a.hooks[event]...)
	a.hooksMu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("lifecycle hook panicked",
						zap.String("event", string(event)), zap.Any("recover", r))
				}
			}()
			hook(a.config.ID)
		}()
	}
}

// Stats reports the request counters and uptime start.
func (a *Agent) Stats() (requestsProcessed, errorsCount int64, startedAt time.Time) {
	a.countersMu.Lock()
	defer a.countersMu.Unlock()
	return a.requestsProcessed, a.errorsCount, a.startedAt
}

// HandleMessage dispatches one message to the matching capability handler.
// The agent must be ready; otherwise a failed Response with AGENT_NOT_READY
// is returned and the counters stay untouched. Handler errors and panics are
// converted to failed Responses. The context deadline bounds the handler; on
// expiry a failed Response with code TIMEOUT is returned.
func (a *Agent) HandleMessage(ctx context.Context, msg types.Message) *types.Response {
	a.stateMu.Lock()
	if a.state != StateReady {
		state := a.state
		a.stateMu.Unlock()
		return types.NewErrorResponse(msg, types.ErrCodeAgentNotReady,
			fmt.Sprintf("agent %s not ready (state: %s)", a.config.ID, state))
	}
	a.state = StateBusy
	a.stateMu.Unlock()

	start := time.Now()
	resp := a.invokeHandler(ctx, msg)
	elapsed := time.Since(start)
	resp.WithExecutionTime(elapsed)

	a.countersMu.Lock()
	a.requestsProcessed++
	if !resp.Success {
		a.errorsCount++
	}
	a.countersMu.Unlock()

	// Return to ready unless a concurrent Stop moved us on.
	a.stateMu.Lock()
	if a.state == StateBusy {
		a.state = StateReady
	}
	a.stateMu.Unlock()

	if a.bus != nil {
		a.bus.Publish(&RequestHandledEvent{
			AgentID:    a.config.ID,
			Capability: msg.Capability,
			MessageID:  msg.ID,
			Duration:   elapsed,
			Err:        resp.Error,
			At:         time.Now(),
		})
	}

	return resp
}

// invokeHandler runs the capability handler with panic recovery and deadline
// enforcement.
func (a *Agent) invokeHandler(ctx context.Context, msg types.Message) *types.Response {
	a.handlersMu.RLock()
	handler, ok := a.handlers[msg.Capability]
	if !ok {
		handler = a.generic
	}
	a.handlersMu.RUnlock()

	type outcome struct {
		data any
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("capability handler panicked",
					zap.String("capability", msg.Capability), zap.Any("recover", r))
				done <- outcome{err: types.NewErrorf(types.ErrCodeHandlerPanic, "handler panicked: %v", r)}
			}
		}()
		data, err := handler(ctx, msg)
		done <- outcome{data: data, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			code := types.GetErrorCode(out.err)
			if code == "" {
				code = types.ErrCodeInternalError
			}
			return types.NewErrorResponse(msg, code, out.err.Error())
		}
		return types.NewSuccessResponse(msg, out.data)
	case <-ctx.Done():
		return types.NewErrorResponse(msg, types.ErrCodeTimeout,
			fmt.Sprintf("capability %s timed out: %v", msg.Capability, ctx.Err()))
	}
}
