package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devops-hub/agenthub/types"
)

// Invoker dispatches a capability invocation to an agent and returns its
// response. The hub implements this on top of its agent table; tests supply
// fakes.
type Invoker interface {
	Invoke(ctx context.Context, agentID, capability string, input map[string]any) *types.Response
}

// InvokerFunc adapts a plain function to the Invoker interface.
type InvokerFunc func(ctx context.Context, agentID, capability string, input map[string]any) *types.Response

func (f InvokerFunc) Invoke(ctx context.Context, agentID, capability string, input map[string]any) *types.Response {
	return f(ctx, agentID, capability, input)
}

// execState pairs an execution with its run-local synchronization. The run
// loop mutates exec under mu; Cancel closes done to interrupt waits.
type execState struct {
	mu   sync.Mutex
	exec *Execution
	done chan struct{}
	once sync.Once
}

func (es *execState) cancelSignal() {
	es.once.Do(func() { close(es.done) })
}

// Engine registers workflow definitions and runs executions against an
// Invoker. Each execution advances its step index before executing the step,
// so observers always see the step in flight.
type Engine struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
	executions  map[string]*execState

	invoker     Invoker
	store       ExecutionStore
	logger      *zap.Logger
	stepTimeout time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithStore persists execution snapshots after every step.
func WithStore(store ExecutionStore) EngineOption {
	return func(e *Engine) { e.store = store }
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithStepTimeout sets the default per-step timeout used when a step does
// not carry its own.
func WithStepTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.stepTimeout = d }
}

// NewEngine creates an engine dispatching through the given invoker.
func NewEngine(invoker Invoker, opts ...EngineOption) *Engine {
	e := &Engine{
		definitions: make(map[string]*Definition),
		executions:  make(map[string]*execState),
		invoker:     invoker,
		logger:      zap.NewNop(),
		stepTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "workflow"))
	return e
}

// RegisterDefinition validates and stores a workflow definition. An existing
// definition with the same ID is replaced; in-flight executions keep running
// against the steps they started with.
func (e *Engine) RegisterDefinition(def *Definition) error {
	if def.ID == "" {
		return types.NewError(types.ErrCodeInternalError, "workflow definition requires an id")
	}
	if len(def.Steps) == 0 {
		return types.NewErrorf(types.ErrCodeInternalError, "workflow %s has no steps", def.ID)
	}
	for i := range def.Steps {
		if err := validateStep(&def.Steps[i]); err != nil {
			return fmt.Errorf("workflow %s step %d: %w", def.ID, i, err)
		}
	}
	e.mu.Lock()
	e.definitions[def.ID] = def
	e.mu.Unlock()
	e.logger.Info("workflow registered",
		zap.String("workflow_id", def.ID),
		zap.Int("steps", len(def.Steps)))
	return nil
}

func validateStep(s *Step) error {
	switch s.Type {
	case StepAgentInvocation:
		if s.AgentID == "" || s.Capability == "" {
			return types.NewError(types.ErrCodeInternalError, "agent_invocation step requires agent_id and capability")
		}
	case StepParallel:
		if len(s.Steps) == 0 {
			return types.NewError(types.ErrCodeInternalError, "parallel step requires sub-steps")
		}
		for i := range s.Steps {
			if err := validateStep(&s.Steps[i]); err != nil {
				return err
			}
		}
	case StepConditional:
		if s.ConditionPath == "" {
			return types.NewError(types.ErrCodeInternalError, "conditional step requires a condition path")
		}
		for _, branch := range []*Step{s.IfTrue, s.IfFalse} {
			if branch != nil {
				if err := validateStep(branch); err != nil {
					return err
				}
			}
		}
	case StepTransform:
		switch s.Transform {
		case TransformIdentity, TransformExtract, TransformMerge:
		default:
			return types.NewErrorf(types.ErrCodeInternalError, "unknown transform kind %q", s.Transform)
		}
	case StepWait:
		if s.Duration <= 0 {
			return types.NewError(types.ErrCodeInternalError, "wait step requires a positive duration")
		}
	default:
		return types.NewErrorf(types.ErrCodeInternalError, "unknown step type %q", s.Type)
	}
	return nil
}

// Definition returns a registered definition.
func (e *Engine) Definition(id string) (*Definition, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.definitions[id]
	if !ok {
		return nil, types.NewErrorf(types.ErrCodeWorkflowNotFound, "workflow %s not found", id)
	}
	return def, nil
}

// Definitions lists registered definition IDs.
func (e *Engine) Definitions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.definitions))
	for id := range e.definitions {
		ids = append(ids, id)
	}
	return ids
}

// Run executes a workflow synchronously and returns the terminal execution.
func (e *Engine) Run(ctx context.Context, workflowID string, input map[string]any) (*Execution, error) {
	def, es, err := e.begin(workflowID, input)
	if err != nil {
		return nil, err
	}
	e.runSteps(ctx, def, es)
	return e.snapshot(es), nil
}

// Start launches a workflow asynchronously and returns the execution ID
// immediately. Progress is observable through Execution.
func (e *Engine) Start(ctx context.Context, workflowID string, input map[string]any) (string, error) {
	def, es, err := e.begin(workflowID, input)
	if err != nil {
		return "", err
	}
	go e.runSteps(ctx, def, es)
	return es.exec.ID, nil
}

func (e *Engine) begin(workflowID string, input map[string]any) (*Definition, *execState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	def, ok := e.definitions[workflowID]
	if !ok {
		return nil, nil, types.NewErrorf(types.ErrCodeWorkflowNotFound, "workflow %s not found", workflowID)
	}
	exec := &Execution{
		ID:               uuid.NewString(),
		WorkflowID:       workflowID,
		Status:           StatusRunning,
		CurrentStepIndex: 0,
		Context:          copyMap(input),
		Results:          make(map[string]any),
		StartedAt:        time.Now(),
	}
	es := &execState{exec: exec, done: make(chan struct{})}
	e.executions[exec.ID] = es
	e.persist(es)
	return def, es, nil
}

// Execution returns a snapshot of a live or finished execution.
func (e *Engine) Execution(id string) (*Execution, error) {
	e.mu.RLock()
	es, ok := e.executions[id]
	e.mu.RUnlock()
	if !ok {
		return nil, types.NewErrorf(types.ErrCodeWorkflowNotFound, "execution %s not found", id)
	}
	return e.snapshot(es), nil
}

// Executions lists snapshots of all known executions.
func (e *Engine) Executions() []*Execution {
	e.mu.RLock()
	states := make([]*execState, 0, len(e.executions))
	for _, es := range e.executions {
		states = append(states, es)
	}
	e.mu.RUnlock()
	out := make([]*Execution, 0, len(states))
	for _, es := range states {
		out = append(out, e.snapshot(es))
	}
	return out
}

// Cancel requests cooperative cancellation. The run loop stops before the
// next step; a wait step in progress is interrupted. Cancelling a finished
// execution is a no-op.
func (e *Engine) Cancel(id string) error {
	e.mu.RLock()
	es, ok := e.executions[id]
	e.mu.RUnlock()
	if !ok {
		return types.NewErrorf(types.ErrCodeWorkflowNotFound, "execution %s not found", id)
	}
	es.mu.Lock()
	if !es.exec.Status.Terminal() {
		es.exec.Status = StatusCancelled
	}
	es.mu.Unlock()
	es.cancelSignal()
	return nil
}

func (e *Engine) snapshot(es *execState) *Execution {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.exec.Clone()
}

func (e *Engine) persist(es *execState) {
	if e.store == nil {
		return
	}
	snap := es.exec.Clone()
	if err := e.store.SaveExecution(context.Background(), snap); err != nil {
		e.logger.Warn("execution persist failed",
			zap.String("execution_id", snap.ID),
			zap.Error(err))
	}
}

func (e *Engine) runSteps(ctx context.Context, def *Definition, es *execState) {
	for i := range def.Steps {
		if e.interrupted(ctx, es) {
			return
		}
		es.mu.Lock()
		es.exec.CurrentStepIndex = i
		es.mu.Unlock()

		result, err := e.executeStep(ctx, es, &def.Steps[i])
		if err != nil {
			e.finish(es, StatusFailed, &StepError{Step: i, Message: err.Error()})
			e.logger.Warn("workflow step failed",
				zap.String("execution_id", es.exec.ID),
				zap.Int("step", i),
				zap.Error(err))
			return
		}

		if key := def.Steps[i].resultKey(); key != "" {
			es.mu.Lock()
			es.exec.Results[key] = result
			es.exec.Context[key] = result
			es.mu.Unlock()
		}
		es.mu.Lock()
		e.persist(es)
		es.mu.Unlock()
	}
	if e.interrupted(ctx, es) {
		return
	}
	e.finish(es, StatusCompleted, nil)
}

// interrupted reports whether the run should stop, settling the terminal
// status when it should.
func (e *Engine) interrupted(ctx context.Context, es *execState) bool {
	select {
	case <-ctx.Done():
		e.finish(es, StatusCancelled, nil)
		return true
	case <-es.done:
		e.finish(es, StatusCancelled, nil)
		return true
	default:
		return false
	}
}

func (e *Engine) finish(es *execState, status Status, stepErr *StepError) {
	es.mu.Lock()
	if !es.exec.Status.Terminal() {
		es.exec.Status = status
		if stepErr != nil {
			es.exec.Errors = append(es.exec.Errors, *stepErr)
		}
		now := time.Now()
		es.exec.CompletedAt = &now
	}
	e.persist(es)
	es.mu.Unlock()
}

func (e *Engine) executeStep(ctx context.Context, es *execState, step *Step) (any, error) {
	switch step.Type {
	case StepAgentInvocation:
		return e.executeInvocation(ctx, es, step)
	case StepParallel:
		return e.executeParallel(ctx, es, step)
	case StepConditional:
		return e.executeConditional(ctx, es, step)
	case StepTransform:
		return e.executeTransform(es, step), nil
	case StepWait:
		return nil, e.executeWait(ctx, es, step)
	default:
		return nil, types.NewErrorf(types.ErrCodeInternalError, "unknown step type %q", step.Type)
	}
}

// contextSnapshot copies the execution context so step evaluation reads a
// stable view while parallel branches write results.
func (e *Engine) contextSnapshot(es *execState) map[string]any {
	es.mu.Lock()
	defer es.mu.Unlock()
	return copyMap(es.exec.Context)
}

func (e *Engine) executeInvocation(ctx context.Context, es *execState, step *Step) (any, error) {
	snapshot := e.contextSnapshot(es)
	input := make(map[string]any, len(step.InputMapping))
	for target, path := range step.InputMapping {
		if v, ok := lookupPath(snapshot, path); ok {
			input[target] = v
		}
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = e.stepTimeout
	}

	retries := 0
	policy := step.Retry
	if policy != nil {
		retries = policy.MaxRetries
	}

	var lastErr *types.Error
	for attempt := 0; ; attempt++ {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		resp := e.invoker.Invoke(stepCtx, step.AgentID, step.Capability, input)
		cancel()
		if resp.Success {
			return resp.Data, nil
		}
		lastErr = types.NewError(resp.ErrorCode, resp.Error)
		if attempt >= retries || !retryableCode(resp.ErrorCode) {
			break
		}
		e.logger.Debug("retrying step",
			zap.String("agent_id", step.AgentID),
			zap.String("capability", step.Capability),
			zap.Int("attempt", attempt+1))
		select {
		case <-time.After(policy.Backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-es.done:
			return nil, types.NewError(types.ErrCodeInternalError, "execution cancelled")
		}
	}
	return nil, lastErr
}

func retryableCode(code types.ErrorCode) bool {
	switch code {
	case types.ErrCodeTimeout, types.ErrCodeAgentNotReady, types.ErrCodeNoAgentsAvailable:
		return true
	}
	return false
}

// executeParallel runs every sub-step concurrently. A failing branch does not
// abort the block: its error is recorded under the branch key as
// {"error": message} and the remaining branches keep running.
func (e *Engine) executeParallel(ctx context.Context, es *execState, step *Step) (any, error) {
	var (
		mu      sync.Mutex
		results = make(map[string]any, len(step.Steps))
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := range step.Steps {
		sub := &step.Steps[i]
		key := sub.resultKey()
		if key == "" {
			key = fmt.Sprintf("step_%d", i)
		}
		g.Go(func() error {
			result, err := e.executeStep(gctx, es, sub)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[key] = map[string]any{"error": err.Error()}
				return nil
			}
			results[key] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	es.mu.Lock()
	for k, v := range results {
		es.exec.Results[k] = v
		es.exec.Context[k] = v
	}
	es.mu.Unlock()
	return results, nil
}

func (e *Engine) executeConditional(ctx context.Context, es *execState, step *Step) (any, error) {
	v, _ := lookupPath(e.contextSnapshot(es), step.ConditionPath)
	branch := step.IfFalse
	if Truthy(v) {
		branch = step.IfTrue
	}
	if branch == nil {
		return nil, nil
	}
	result, err := e.executeStep(ctx, es, branch)
	if err != nil {
		return nil, err
	}
	if key := branch.resultKey(); key != "" {
		es.mu.Lock()
		es.exec.Results[key] = result
		es.exec.Context[key] = result
		es.mu.Unlock()
	}
	return result, nil
}

func (e *Engine) executeTransform(es *execState, step *Step) any {
	snapshot := e.contextSnapshot(es)
	switch step.Transform {
	case TransformIdentity:
		v, _ := lookupPath(snapshot, step.Source)
		return v
	case TransformExtract:
		v, _ := lookupPath(snapshot, step.Source)
		if m, ok := v.(map[string]any); ok {
			return m[step.Key]
		}
		return v
	case TransformMerge:
		merged := make(map[string]any)
		for _, src := range step.Sources {
			v, ok := lookupPath(snapshot, src)
			if !ok {
				continue
			}
			if m, ok := v.(map[string]any); ok {
				for k, val := range m {
					merged[k] = val
				}
			}
		}
		return merged
	}
	return nil
}

func (e *Engine) executeWait(ctx context.Context, es *execState, step *Step) error {
	timer := time.NewTimer(step.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-es.done:
		return types.NewError(types.ErrCodeInternalError, "execution cancelled")
	}
}
