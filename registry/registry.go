// Package registry provides the capability-indexed agent directory: card
// registration with TTL expiry, discovery over capability/domain/tag/protocol
// filters and a named-node topology graph.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devops-hub/agenthub/types"
)

// Config holds registry configuration.
type Config struct {
	// DefaultTTL is applied to cards registered without a TTL.
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl"`

	// SweepInterval is the interval between expiry sweeps.
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`

	// EnableSweep enables the background expiry sweeper.
	EnableSweep bool `json:"enable_sweep" yaml:"enable_sweep"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultTTL:    5 * time.Minute,
		SweepInterval: 30 * time.Second,
		EnableSweep:   true,
	}
}

// Registry is an in-memory agent-card directory. Cards are indexed by
// capability, domain and tag; all three indexes are mutated under one lock so
// a reader never observes a card present in one index and absent in another.
type Registry struct {
	mu sync.RWMutex

	// cards stores registered cards by agent ID.
	cards map[string]*types.AgentCard

	// byCapability maps capability name -> set of agent IDs.
	byCapability map[string]map[string]struct{}

	// byDomain maps domain -> set of agent IDs.
	byDomain map[string]map[string]struct{}

	// byTag maps tag -> set of agent IDs.
	byTag map[string]map[string]struct{}

	topology *Topology

	store  CardStore
	config *Config
	logger *zap.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// Option customizes a Registry.
type Option func(*Registry)

// WithStore attaches a write-through card store. Registrations and removals
// are persisted; Restore loads the persisted card set back.
func WithStore(store CardStore) Option {
	return func(r *Registry) { r.store = store }
}

// WithLogger sets the registry logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a registry. When sweeping is enabled the expiry loop starts
// immediately and runs until Close.
func New(config *Config, opts ...Option) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	r := &Registry{
		cards:        make(map[string]*types.AgentCard),
		byCapability: make(map[string]map[string]struct{}),
		byDomain:     make(map[string]map[string]struct{}),
		byTag:        make(map[string]map[string]struct{}),
		topology:     NewTopology(),
		config:       config,
		logger:       zap.NewNop(),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "registry"))

	if config.EnableSweep {
		go r.sweepLoop()
	}
	return r
}

// Register upserts a card by agent ID and updates all three derived indexes.
func (r *Registry) Register(ctx context.Context, card *types.AgentCard) error {
	if card == nil || card.AgentID == "" {
		return types.NewError(types.ErrCodeInternalError, "card is nil or missing agent_id")
	}

	now := time.Now()
	card = card.Clone()
	if card.RegisteredAt.IsZero() {
		card.RegisteredAt = now
	}
	card.LastSeen = now
	if card.TTLSeconds == 0 && r.config.DefaultTTL > 0 {
		card.TTLSeconds = int64(r.config.DefaultTTL / time.Second)
	}

	r.mu.Lock()
	if old, exists := r.cards[card.AgentID]; exists {
		// re-registration keeps the original registration time
		card.RegisteredAt = old.RegisteredAt
		r.unindexLocked(old)
	}
	r.cards[card.AgentID] = card
	r.indexLocked(card)
	r.mu.Unlock()

	r.logger.Info("agent registered",
		zap.String("agent_id", card.AgentID),
		zap.String("domain", card.Domain),
		zap.Int("capabilities", len(card.Capabilities)),
	)

	if r.store != nil {
		if err := r.store.SaveCard(ctx, card); err != nil {
			r.logger.Warn("failed to persist card", zap.String("agent_id", card.AgentID), zap.Error(err))
		}
	}
	return nil
}

// Unregister removes the card and prunes it from all three indexes. Unknown
// IDs are a no-op.
func (r *Registry) Unregister(ctx context.Context, agentID string) {
	r.mu.Lock()
	card, exists := r.cards[agentID]
	if exists {
		r.unindexLocked(card)
		delete(r.cards, agentID)
	}
	r.mu.Unlock()

	if !exists {
		return
	}
	r.logger.Info("agent unregistered", zap.String("agent_id", agentID))

	if r.store != nil {
		if err := r.store.DeleteCard(ctx, agentID); err != nil {
			r.logger.Warn("failed to delete persisted card", zap.String("agent_id", agentID), zap.Error(err))
		}
	}
}

// Refresh updates the card's last-seen timestamp. Fails with AGENT_NOT_FOUND
// for unknown IDs.
func (r *Registry) Refresh(ctx context.Context, agentID string) error {
	r.mu.Lock()
	card, exists := r.cards[agentID]
	if exists {
		card.LastSeen = time.Now()
	}
	r.mu.Unlock()

	if !exists {
		return types.NewErrorf(types.ErrCodeAgentNotFound, "agent %s not registered", agentID)
	}
	return nil
}

// Get returns a copy of the card for the given agent. Fails with
// AGENT_NOT_FOUND for unknown IDs.
func (r *Registry) Get(ctx context.Context, agentID string) (*types.AgentCard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	card, exists := r.cards[agentID]
	if !exists {
		return nil, types.NewErrorf(types.ErrCodeAgentNotFound, "agent %s not registered", agentID)
	}
	return card.Clone(), nil
}

// Filter restricts a Discover call. Empty fields are ignored; tag filtering
// uses intersection semantics, so a card must match every requested tag.
type Filter struct {
	Capability string   `json:"capability,omitempty"`
	Domain     string   `json:"domain,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Protocol   string   `json:"protocol,omitempty"`
}

// Discover returns full card projections matching every non-empty filter
// field. Results are sorted by agent ID for stable iteration.
func (r *Registry) Discover(ctx context.Context, filter *Filter) []*types.AgentCard {
	if filter == nil {
		filter = &Filter{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// start from the full ID set, intersect with each filter's index set
	candidates := make(map[string]struct{}, len(r.cards))
	for id := range r.cards {
		candidates[id] = struct{}{}
	}

	if filter.Capability != "" {
		candidates = intersect(candidates, r.byCapability[filter.Capability])
	}
	if filter.Domain != "" {
		candidates = intersect(candidates, r.byDomain[filter.Domain])
	}
	for _, tag := range filter.Tags {
		candidates = intersect(candidates, r.byTag[tag])
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	cards := make([]*types.AgentCard, 0, len(ids))
	for _, id := range ids {
		card := r.cards[id]
		// protocol filtering is a post-filter on the card's protocol list
		if filter.Protocol != "" && !card.HasProtocol(filter.Protocol) {
			continue
		}
		cards = append(cards, card.Clone())
	}
	return cards
}

// Count returns the number of registered cards.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cards)
}

// Topology returns the registry's node topology graph.
func (r *Registry) Topology() *Topology {
	return r.topology
}

// Restore loads persisted cards from the attached store into the indexes.
// Expired cards are skipped.
func (r *Registry) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	cards, err := r.store.ListCards(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	restored := 0
	r.mu.Lock()
	for _, card := range cards {
		if card.Expired(now) {
			continue
		}
		if old, exists := r.cards[card.AgentID]; exists {
			r.unindexLocked(old)
		}
		r.cards[card.AgentID] = card
		r.indexLocked(card)
		restored++
	}
	r.mu.Unlock()

	r.logger.Info("registry restored from store", zap.Int("cards", restored))
	return nil
}

// Close stops the expiry sweeper. Idempotent.
func (r *Registry) Close() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
}

// sweepLoop periodically removes cards whose TTL elapsed since last_seen.
func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep(time.Now())
		case <-r.done:
			return
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	var expired []string
	for id, card := range r.cards {
		if card.Expired(now) {
			expired = append(expired, id)
			r.unindexLocked(card)
			delete(r.cards, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		r.logger.Info("agent card expired", zap.String("agent_id", id))
		if r.store != nil {
			if err := r.store.DeleteCard(context.Background(), id); err != nil {
				r.logger.Warn("failed to delete expired card", zap.String("agent_id", id), zap.Error(err))
			}
		}
	}
}

func (r *Registry) indexLocked(card *types.AgentCard) {
	for _, cap := range card.Capabilities {
		addToIndex(r.byCapability, cap.Name, card.AgentID)
	}
	if card.Domain != "" {
		addToIndex(r.byDomain, card.Domain, card.AgentID)
	}
	for _, tag := range card.Tags {
		addToIndex(r.byTag, tag, card.AgentID)
	}
}

func (r *Registry) unindexLocked(card *types.AgentCard) {
	for _, cap := range card.Capabilities {
		removeFromIndex(r.byCapability, cap.Name, card.AgentID)
	}
	if card.Domain != "" {
		removeFromIndex(r.byDomain, card.Domain, card.AgentID)
	}
	for _, tag := range card.Tags {
		removeFromIndex(r.byTag, tag, card.AgentID)
	}
}

func addToIndex(index map[string]map[string]struct{}, key, agentID string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[agentID] = struct{}{}
}

func removeFromIndex(index map[string]map[string]struct{}, key, agentID string) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, agentID)
	if len(set) == 0 {
		delete(index, key)
	}
}

func intersect(a map[string]struct{}, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	if len(b) == 0 {
		return out
	}
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}
