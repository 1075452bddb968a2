// Package router matches requests to registered endpoints and load-balances
// across agents advertising the same capability.
package router

import (
	"regexp"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/devops-hub/agenthub/types"
)

// Endpoint is the router's mutable view of a routable agent. Endpoint state
// (current load, health) is mutated only through explicit UpdateLoad and
// SetHealth calls; the router never infers health from failed calls.
type Endpoint struct {
	AgentID      string   `json:"agent_id"`
	Capabilities []string `json:"capabilities"`
	Weight       float64  `json:"weight"`
	Healthy      bool     `json:"healthy"`
	CurrentLoad  int      `json:"current_load"`
	MaxLoad      int      `json:"max_load"`
}

func (e *Endpoint) hasCapability(name string) bool {
	for _, c := range e.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

func (e *Endpoint) available() bool {
	return e.Healthy && (e.MaxLoad <= 0 || e.CurrentLoad < e.MaxLoad)
}

func (e *Endpoint) clone() *Endpoint {
	cp := *e
	cp.Capabilities = append([]string(nil), e.Capabilities...)
	return &cp
}

// PatternRoute maps a compiled request pattern to a target agent. Routes are
// consulted in descending priority order; the first match wins.
type PatternRoute struct {
	Pattern  *regexp.Regexp
	TargetID string
	Priority int
}

// Strategy selects the load-balancing behavior.
type Strategy string

const (
	StrategyLeastLoaded Strategy = "least-loaded"
	StrategyWeighted    Strategy = "weighted"
	StrategyRoundRobin  Strategy = "round-robin"
)

// Router owns the endpoint table, the prioritized pattern-route table and
// the per-capability round-robin rotation state.
type Router struct {
	mu        sync.Mutex
	endpoints map[string]*Endpoint
	patterns  []PatternRoute

	// rotation holds per-capability round-robin order. LoadBalance with the
	// round-robin strategy rotates it in place, so that call is a mutating
	// read: repeat calls cycle through the candidates in order.
	rotation map[string][]string

	logger *zap.Logger
}

// New creates an empty router.
func New(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		endpoints: make(map[string]*Endpoint),
		rotation:  make(map[string][]string),
		logger:    logger.With(zap.String("component", "router")),
	}
}

// AddEndpoint registers (or replaces) a routable endpoint. New endpoints
// default to healthy with weight 1.
func (r *Router) AddEndpoint(ep Endpoint) {
	if ep.Weight == 0 {
		ep.Weight = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.endpoints[ep.AgentID]; !exists {
		ep.Healthy = true
	}
	r.endpoints[ep.AgentID] = ep.clone()
	r.invalidateRotationLocked(ep.AgentID)
}

// RemoveEndpoint drops an endpoint and purges it from rotation state.
func (r *Router) RemoveEndpoint(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, agentID)
	for cap, order := range r.rotation {
		r.rotation[cap] = removeID(order, agentID)
	}
}

// Endpoint returns a snapshot of the endpoint, or nil when unknown.
func (r *Router) Endpoint(agentID string) *Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep, ok := r.endpoints[agentID]
	if !ok {
		return nil
	}
	return ep.clone()
}

// UpdateLoad sets the current load of an endpoint.
func (r *Router) UpdateLoad(agentID string, load int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ep, ok := r.endpoints[agentID]; ok {
		ep.CurrentLoad = load
	}
}

// SetHealth marks an endpoint healthy or unhealthy.
func (r *Router) SetHealth(agentID string, healthy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ep, ok := r.endpoints[agentID]; ok {
		ep.Healthy = healthy
	}
}

// AddPattern appends a pattern route. The pattern is matched against the
// request capability.
func (r *Router) AddPattern(pattern *regexp.Regexp, targetID string, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, PatternRoute{Pattern: pattern, TargetID: targetID, Priority: priority})
	sort.SliceStable(r.patterns, func(i, j int) bool {
		return r.patterns[i].Priority > r.patterns[j].Priority
	})
}

// Route picks a target agent for the request. Resolution order: the
// preferred agent if healthy and under max load, then the pattern-route
// table (highest priority first, first match wins, target must be healthy),
// then capability-based selection of the least-loaded healthy endpoint.
// Fails with NO_ROUTE_FOUND when no candidate qualifies.
func (r *Router) Route(msg types.Message, preferred string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if preferred != "" {
		if ep, ok := r.endpoints[preferred]; ok && ep.available() {
			return preferred, nil
		}
	}

	for _, pr := range r.patterns {
		if !pr.Pattern.MatchString(msg.Capability) {
			continue
		}
		if ep, ok := r.endpoints[pr.TargetID]; ok && ep.available() {
			return pr.TargetID, nil
		}
	}

	if target := r.selectBestAgentLocked(msg.Capability); target != "" {
		return target, nil
	}

	return "", types.NewErrorf(types.ErrCodeNoRouteFound, "no route for capability %s", msg.Capability)
}

// SelectBestAgent returns the healthy endpoint advertising the capability
// with the lowest current load. Fails with NO_ROUTE_FOUND.
func (r *Router) SelectBestAgent(capability string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if target := r.selectBestAgentLocked(capability); target != "" {
		return target, nil
	}
	return "", types.NewErrorf(types.ErrCodeNoRouteFound, "no healthy agent for capability %s", capability)
}

func (r *Router) selectBestAgentLocked(capability string) string {
	best := ""
	bestLoad := 0
	for _, id := range r.sortedIDsLocked() {
		ep := r.endpoints[id]
		if !ep.Healthy || !ep.hasCapability(capability) {
			continue
		}
		if best == "" || ep.CurrentLoad < bestLoad {
			best = id
			bestLoad = ep.CurrentLoad
		}
	}
	return best
}

// sortedIDsLocked gives deterministic iteration for tie-breaking.
func (r *Router) sortedIDsLocked() []string {
	ids := make([]string, 0, len(r.endpoints))
	for id := range r.endpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Router) invalidateRotationLocked(agentID string) {
	// endpoint capability set may have changed; rebuild lazily on next use
	for cap, order := range r.rotation {
		r.rotation[cap] = removeID(order, agentID)
	}
}

func removeID(order []string, agentID string) []string {
	out := order[:0]
	for _, id := range order {
		if id != agentID {
			out = append(out, id)
		}
	}
	return out
}
