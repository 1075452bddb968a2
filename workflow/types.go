// Package workflow executes ordered/parallel/conditional step graphs against
// named agent capabilities, threading a shared context between steps.
package workflow

import (
	"time"

	"github.com/devops-hub/agenthub/types"
)

// StepType tags the step variant.
type StepType string

const (
	StepAgentInvocation StepType = "agent_invocation"
	StepParallel        StepType = "parallel"
	StepConditional     StepType = "conditional"
	StepTransform       StepType = "transform"
	StepWait            StepType = "wait"
)

// TransformKind selects the transform step behavior.
type TransformKind string

const (
	// TransformIdentity returns the source value unchanged.
	TransformIdentity TransformKind = "identity"
	// TransformExtract returns source[key] when the source is a map, else
	// the source itself.
	TransformExtract TransformKind = "extract"
	// TransformMerge shallow-merges the resolved map sources in listed
	// order; later sources overwrite earlier keys.
	TransformMerge TransformKind = "merge"
)

// Step is a tagged variant: exactly the fields for its Type are meaningful.
// Parallel and conditional steps nest sub-steps, forming a tree.
type Step struct {
	Name string   `json:"name,omitempty"`
	Type StepType `json:"type"`

	// agent_invocation
	AgentID      string            `json:"agent_id,omitempty"`
	Capability   string            `json:"capability,omitempty"`
	InputMapping map[string]string `json:"input_mapping,omitempty"` // target key -> dot path into context
	OutputKey    string            `json:"output_key,omitempty"`
	Timeout      time.Duration     `json:"timeout,omitempty"`
	Retry        *RetryPolicy      `json:"retry,omitempty"`

	// parallel
	Steps []Step `json:"steps,omitempty"`

	// conditional
	ConditionPath string `json:"condition_path,omitempty"`
	IfTrue        *Step  `json:"if_true,omitempty"`
	IfFalse       *Step  `json:"if_false,omitempty"`

	// transform
	Transform TransformKind `json:"transform,omitempty"`
	Source    string        `json:"source,omitempty"`
	Sources   []string      `json:"sources,omitempty"`
	Key       string        `json:"key,omitempty"`

	// wait
	Duration time.Duration `json:"duration,omitempty"`
}

// resultKey is the key a step's result is attributed to inside a parallel
// block: the output key when set, else the step name.
func (s *Step) resultKey() string {
	if s.OutputKey != "" {
		return s.OutputKey
	}
	return s.Name
}

// Definition is an immutable template of steps. Once registered it is never
// mutated; executions carry all run state.
type Definition struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Steps        []Step        `json:"steps"`
	InputSchema  *types.Schema `json:"input_schema,omitempty"`
	OutputSchema *types.Schema `json:"output_schema,omitempty"`
}

// Status is the execution lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StepError records a failed step: its index in the definition and the cause.
type StepError struct {
	Step    int    `json:"step"`
	Message string `json:"message"`
}

// Execution is one run of a Definition. CurrentStepIndex is advanced before
// each step executes, so a crash mid-step is observable. The execution owns
// its context exclusively until it reaches a terminal status.
type Execution struct {
	ID               string         `json:"id"`
	WorkflowID       string         `json:"workflow_id"`
	Status           Status         `json:"status"`
	CurrentStepIndex int            `json:"current_step_index"`
	Context          map[string]any `json:"context"`
	Results          map[string]any `json:"results"`
	Errors           []StepError    `json:"errors,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// Clone returns a copy safe to hand to callers while the run loop keeps
// mutating the original. Context and results are shallow-copied maps.
func (e *Execution) Clone() *Execution {
	cp := *e
	cp.Context = copyMap(e.Context)
	cp.Results = copyMap(e.Results)
	cp.Errors = append([]StepError(nil), e.Errors...)
	if e.CompletedAt != nil {
		completed := *e.CompletedAt
		cp.CompletedAt = &completed
	}
	return &cp
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
