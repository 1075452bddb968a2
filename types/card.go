package types

import "time"

// AgentCard is the discovery record describing a registered agent's identity,
// capabilities and liveness. Cards are created on registration, refreshed on
// heartbeat and expire when now - LastSeen exceeds TTLSeconds.
type AgentCard struct {
	AgentID      string            `json:"agent_id"`
	Name         string            `json:"name"`
	Version      string            `json:"version,omitempty"`
	Description  string            `json:"description,omitempty"`
	Capabilities []Capability      `json:"capabilities,omitempty"`
	Protocols    []string          `json:"protocols,omitempty"`
	Endpoint     string            `json:"endpoint,omitempty"`
	Domain       string            `json:"domain,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RegisteredAt time.Time         `json:"registered_at"`
	LastSeen     time.Time         `json:"last_seen"`
	TTLSeconds   int64             `json:"ttl_seconds"`
}

// Expired reports whether the card is stale at the given instant. A zero TTL
// means the card never expires.
func (c *AgentCard) Expired(now time.Time) bool {
	if c.TTLSeconds <= 0 {
		return false
	}
	return now.Sub(c.LastSeen) > time.Duration(c.TTLSeconds)*time.Second
}

// HasCapability reports whether the card advertises the named capability.
func (c *AgentCard) HasCapability(name string) bool {
	for _, cap := range c.Capabilities {
		if cap.Name == name {
			return true
		}
	}
	return false
}

// HasProtocol reports whether the card speaks the named protocol.
func (c *AgentCard) HasProtocol(protocol string) bool {
	for _, p := range c.Protocols {
		if p == protocol {
			return true
		}
	}
	return false
}

// HasTag reports whether the card carries the named tag.
func (c *AgentCard) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// CapabilityNames returns the advertised capability names in declaration
// order.
func (c *AgentCard) CapabilityNames() []string {
	names := make([]string, 0, len(c.Capabilities))
	for _, cap := range c.Capabilities {
		names = append(names, cap.Name)
	}
	return names
}

// Clone returns a deep copy of the card so callers can hold it without
// observing later registry mutations.
func (c *AgentCard) Clone() *AgentCard {
	cp := *c
	cp.Capabilities = append([]Capability(nil), c.Capabilities...)
	cp.Protocols = append([]string(nil), c.Protocols...)
	cp.Tags = append([]string(nil), c.Tags...)
	if c.Metadata != nil {
		cp.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
