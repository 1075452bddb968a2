package registry

import (
	"context"
	"testing"

	"pgregory.net/rapid"
)

// The three derived indexes must stay consistent with the card set under any
// interleaving of register/unregister/re-register operations: every indexed
// agent ID refers to a live card that actually carries the indexed
// capability/domain/tag, and every live card is fully indexed.
func TestIndexConsistencyProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := DefaultConfig()
		cfg.EnableSweep = false
		r := New(cfg)
		defer r.Close()
		ctx := context.Background()

		agentIDs := []string{"a1", "a2", "a3", "a4"}
		capPool := []string{"deploy", "rollback", "market-analysis", "reporting"}
		tagPool := []string{"prod", "staging", "eu"}
		domainPool := []string{"ops", "finance", ""}

		ops := rapid.IntRange(1, 40).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			id := rapid.SampledFrom(agentIDs).Draw(rt, "agent")
			if rapid.Bool().Draw(rt, "register") {
				caps := rapid.SliceOfNDistinct(rapid.SampledFrom(capPool), 0, len(capPool), rapid.ID[string]).Draw(rt, "caps")
				tags := rapid.SliceOfNDistinct(rapid.SampledFrom(tagPool), 0, len(tagPool), rapid.ID[string]).Draw(rt, "tags")
				domain := rapid.SampledFrom(domainPool).Draw(rt, "domain")
				card := testCard(id, domain, caps, tags...)
				if err := r.Register(ctx, card); err != nil {
					rt.Fatalf("register failed: %v", err)
				}
			} else {
				r.Unregister(ctx, id)
			}
		}

		checkIndexesConsistent(rt, r)
	})
}

func checkIndexesConsistent(rt *rapid.T, r *Registry) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// every index entry points at a live card carrying the indexed key
	for cap, set := range r.byCapability {
		for id := range set {
			card, ok := r.cards[id]
			if !ok {
				rt.Fatalf("capability index %q references unknown agent %q", cap, id)
			}
			if !card.HasCapability(cap) {
				rt.Fatalf("capability index %q references agent %q without that capability", cap, id)
			}
		}
	}
	for domain, set := range r.byDomain {
		for id := range set {
			card, ok := r.cards[id]
			if !ok || card.Domain != domain {
				rt.Fatalf("domain index %q inconsistent for agent %q", domain, id)
			}
		}
	}
	for tag, set := range r.byTag {
		for id := range set {
			card, ok := r.cards[id]
			if !ok || !card.HasTag(tag) {
				rt.Fatalf("tag index %q inconsistent for agent %q", tag, id)
			}
		}
	}

	// every live card is fully indexed
	for id, card := range r.cards {
		for _, cap := range card.Capabilities {
			if _, ok := r.byCapability[cap.Name][id]; !ok {
				rt.Fatalf("agent %q missing from capability index %q", id, cap.Name)
			}
		}
		if card.Domain != "" {
			if _, ok := r.byDomain[card.Domain][id]; !ok {
				rt.Fatalf("agent %q missing from domain index %q", id, card.Domain)
			}
		}
		for _, tag := range card.Tags {
			if _, ok := r.byTag[tag][id]; !ok {
				rt.Fatalf("agent %q missing from tag index %q", id, tag)
			}
		}
	}
}
