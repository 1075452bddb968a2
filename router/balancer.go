package router

import (
	"sort"

	"github.com/devops-hub/agenthub/types"
)

// LoadBalance selects one healthy agent for the capability using the given
// strategy. With an empty capability the candidate set is every registered
// endpoint. Fails with NO_AGENTS_AVAILABLE when health filtering leaves no
// candidates.
//
// Note: the round-robin strategy rotates the per-capability candidate list
// in place, so this call is a mutating read for that strategy.
func (r *Router) LoadBalance(capability string, strategy Strategy) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := r.healthyCandidatesLocked(capability)
	if len(candidates) == 0 {
		return "", types.NewErrorf(types.ErrCodeNoAgentsAvailable,
			"no healthy agents available for capability %q", capability)
	}

	switch strategy {
	case StrategyWeighted:
		return r.pickWeightedLocked(candidates), nil
	case StrategyRoundRobin:
		return r.pickRoundRobinLocked(capability, candidates), nil
	case StrategyLeastLoaded:
		fallthrough
	default:
		return r.pickLeastLoadedLocked(candidates), nil
	}
}

func (r *Router) healthyCandidatesLocked(capability string) []string {
	var out []string
	for _, id := range r.sortedIDsLocked() {
		ep := r.endpoints[id]
		if !ep.Healthy {
			continue
		}
		if capability != "" && !ep.hasCapability(capability) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (r *Router) pickLeastLoadedLocked(candidates []string) string {
	best := candidates[0]
	for _, id := range candidates[1:] {
		if r.endpoints[id].CurrentLoad < r.endpoints[best].CurrentLoad {
			best = id
		}
	}
	return best
}

// pickWeightedLocked maximizes remaining weighted capacity:
// (max_load - current_load) * weight.
func (r *Router) pickWeightedLocked(candidates []string) string {
	best := candidates[0]
	bestScore := r.weightedCapacity(r.endpoints[best])
	for _, id := range candidates[1:] {
		if score := r.weightedCapacity(r.endpoints[id]); score > bestScore {
			best = id
			bestScore = score
		}
	}
	return best
}

func (r *Router) weightedCapacity(ep *Endpoint) float64 {
	return float64(ep.MaxLoad-ep.CurrentLoad) * ep.Weight
}

// pickRoundRobinLocked pops the head of the capability's rotation list and
// appends it to the tail, so repeat calls cycle through candidates in order.
// Candidates absent from the rotation (newly added or newly healthy) are
// appended first in sorted order.
func (r *Router) pickRoundRobinLocked(capability string, candidates []string) string {
	candidateSet := make(map[string]struct{}, len(candidates))
	for _, id := range candidates {
		candidateSet[id] = struct{}{}
	}

	// drop rotation entries no longer in the candidate set
	order := r.rotation[capability][:0]
	for _, id := range r.rotation[capability] {
		if _, ok := candidateSet[id]; ok {
			order = append(order, id)
		}
	}
	// append unseen candidates
	seen := make(map[string]struct{}, len(order))
	for _, id := range order {
		seen[id] = struct{}{}
	}
	for _, id := range candidates {
		if _, ok := seen[id]; !ok {
			order = append(order, id)
		}
	}

	head := order[0]
	order = append(order[1:], head)
	r.rotation[capability] = order
	return head
}

// MatchMode controls MatchCapabilities semantics.
type MatchMode string

const (
	// MatchAll returns only endpoints whose capability set is a superset of
	// the required set.
	MatchAll MatchMode = "all"
	// MatchAny returns endpoints with a non-empty intersection, annotated
	// with a match ratio and sorted descending by it.
	MatchAny MatchMode = "any"
)

// CapabilityMatch pairs an endpoint snapshot with its match ratio
// (|intersection| / |required|).
type CapabilityMatch struct {
	Endpoint   *Endpoint `json:"endpoint"`
	MatchRatio float64   `json:"match_ratio"`
}

// MatchCapabilities returns the endpoints satisfying the required capability
// set under the given mode.
func (r *Router) MatchCapabilities(required []string, mode MatchMode) []CapabilityMatch {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []CapabilityMatch
	for _, id := range r.sortedIDsLocked() {
		ep := r.endpoints[id]
		matched := 0
		for _, req := range required {
			if ep.hasCapability(req) {
				matched++
			}
		}

		switch mode {
		case MatchAll:
			if matched == len(required) {
				out = append(out, CapabilityMatch{Endpoint: ep.clone(), MatchRatio: 1})
			}
		case MatchAny:
			if matched > 0 {
				ratio := float64(matched) / float64(len(required))
				out = append(out, CapabilityMatch{Endpoint: ep.clone(), MatchRatio: ratio})
			}
		}
	}

	if mode == MatchAny {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].MatchRatio > out[j].MatchRatio
		})
	}
	return out
}
