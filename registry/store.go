package registry

import (
	"context"
	"sync"

	"github.com/devops-hub/agenthub/types"
)

// CardStore is the pluggable persistence interface for agent cards. The
// registry writes through it on registration and removal; the in-memory
// indexes remain the source of truth for reads.
type CardStore interface {
	// SaveCard persists a card, overwriting any previous version.
	SaveCard(ctx context.Context, card *types.AgentCard) error

	// DeleteCard removes a persisted card. Unknown IDs are a no-op.
	DeleteCard(ctx context.Context, agentID string) error

	// GetCard loads a single card. Fails with AGENT_NOT_FOUND when absent.
	GetCard(ctx context.Context, agentID string) (*types.AgentCard, error)

	// ListCards loads every persisted card.
	ListCards(ctx context.Context) ([]*types.AgentCard, error)

	// Close releases store resources.
	Close() error

	// Ping checks if the store is healthy.
	Ping(ctx context.Context) error
}

// MemoryCardStore is an in-memory CardStore for development and testing.
type MemoryCardStore struct {
	mu    sync.RWMutex
	cards map[string]*types.AgentCard
}

// NewMemoryCardStore creates an empty in-memory store.
func NewMemoryCardStore() *MemoryCardStore {
	return &MemoryCardStore{cards: make(map[string]*types.AgentCard)}
}

func (s *MemoryCardStore) SaveCard(ctx context.Context, card *types.AgentCard) error {
	if card == nil || card.AgentID == "" {
		return types.NewError(types.ErrCodeInternalError, "card is nil or missing agent_id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[card.AgentID] = card.Clone()
	return nil
}

func (s *MemoryCardStore) DeleteCard(ctx context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cards, agentID)
	return nil
}

func (s *MemoryCardStore) GetCard(ctx context.Context, agentID string) (*types.AgentCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	card, ok := s.cards[agentID]
	if !ok {
		return nil, types.NewErrorf(types.ErrCodeAgentNotFound, "card %s not found", agentID)
	}
	return card.Clone(), nil
}

func (s *MemoryCardStore) ListCards(ctx context.Context) ([]*types.AgentCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.AgentCard, 0, len(s.cards))
	for _, card := range s.cards {
		out = append(out, card.Clone())
	}
	return out, nil
}

func (s *MemoryCardStore) Close() error { return nil }

func (s *MemoryCardStore) Ping(ctx context.Context) error { return nil }
