package workflow

import (
	"context"
	"sort"
	"sync"

	"github.com/devops-hub/agenthub/types"
)

// ExecutionStore persists execution snapshots so runs survive beyond the
// engine's in-memory table. Save is an upsert keyed by execution ID.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	ListExecutions(ctx context.Context, workflowID string) ([]*Execution, error)
	DeleteExecution(ctx context.Context, id string) error
	Close() error
}

// MemoryExecutionStore keeps snapshots in a map. Suitable for tests and
// single-process deployments.
type MemoryExecutionStore struct {
	mu    sync.RWMutex
	execs map[string]*Execution
}

func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{execs: make(map[string]*Execution)}
}

func (s *MemoryExecutionStore) SaveExecution(_ context.Context, exec *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs[exec.ID] = exec.Clone()
	return nil
}

func (s *MemoryExecutionStore) GetExecution(_ context.Context, id string) (*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.execs[id]
	if !ok {
		return nil, types.NewErrorf(types.ErrCodeWorkflowNotFound, "execution %s not found", id)
	}
	return exec.Clone(), nil
}

func (s *MemoryExecutionStore) ListExecutions(_ context.Context, workflowID string) ([]*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Execution
	for _, exec := range s.execs {
		if workflowID == "" || exec.WorkflowID == workflowID {
			out = append(out, exec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *MemoryExecutionStore) DeleteExecution(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.execs, id)
	return nil
}

func (s *MemoryExecutionStore) Close() error { return nil }
