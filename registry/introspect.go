package registry

import "sort"

// Stats summarises the capability index for introspection endpoints.
type Stats struct {
	TotalAgents          int            `json:"total_agents"`
	TotalCapabilities    int            `json:"total_capabilities"`
	CapabilitiesPerAgent float64        `json:"capabilities_per_agent"`
	AgentsPerCapability  map[string]int `json:"agents_per_capability"`
}

// ListCapabilities returns the distinct capability names present in the
// index, sorted.
func (r *Registry) ListCapabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byCapability))
	for name := range r.byCapability {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// QueryCapability returns the IDs of agents advertising the named
// capability, sorted.
func (r *Registry) QueryCapability(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byCapability[name]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats reports index-level statistics. capabilities_per_agent is the sum of
// advertised capability counts over max(agent count, 1).
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	totalCaps := 0
	for _, card := range r.cards {
		totalCaps += len(card.Capabilities)
	}
	agents := len(r.cards)
	divisor := agents
	if divisor < 1 {
		divisor = 1
	}

	perCap := make(map[string]int, len(r.byCapability))
	for name, set := range r.byCapability {
		perCap[name] = len(set)
	}

	return Stats{
		TotalAgents:          agents,
		TotalCapabilities:    totalCaps,
		CapabilitiesPerAgent: float64(totalCaps) / float64(divisor),
		AgentsPerCapability:  perCap,
	}
}
