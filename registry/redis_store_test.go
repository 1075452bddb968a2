package registry

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/devops-hub/agenthub/types"
)

func newMiniredisStore(t *testing.T) *RedisCardStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCardStoreFromClient(client, "test:")
}

func TestRedisCardStoreSaveGet(t *testing.T) {
	store := newMiniredisStore(t)
	defer store.Close()
	ctx := context.Background()

	card := testCard("a1", "finance", []string{"market-analysis"}, "prod")
	if err := store.SaveCard(ctx, card); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.GetCard(ctx, "a1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.AgentID != "a1" || got.Domain != "finance" {
		t.Errorf("card mismatch: %+v", got)
	}
	if len(got.Capabilities) != 1 || got.Capabilities[0].Name != "market-analysis" {
		t.Errorf("capabilities mismatch: %+v", got.Capabilities)
	}
}

func TestRedisCardStoreDeleteAndList(t *testing.T) {
	store := newMiniredisStore(t)
	defer store.Close()
	ctx := context.Background()

	for _, id := range []string{"a1", "a2", "a3"} {
		if err := store.SaveCard(ctx, testCard(id, "ops", []string{"deploy"})); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.DeleteCard(ctx, "a2"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	cards, err := store.ListCards(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(cards))
	}

	if _, err := store.GetCard(ctx, "a2"); !types.IsCode(err, types.ErrCodeAgentNotFound) {
		t.Errorf("expected AGENT_NOT_FOUND, got %v", err)
	}
}

func TestRegistryRestoreFromStore(t *testing.T) {
	store := newMiniredisStore(t)
	defer store.Close()
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.EnableSweep = false
	r := New(cfg, WithStore(store))
	defer r.Close()

	if err := r.Register(ctx, testCard("a1", "ops", []string{"deploy"}, "prod")); err != nil {
		t.Fatal(err)
	}

	// a fresh registry over the same store sees the persisted card
	r2 := New(cfg, WithStore(store))
	defer r2.Close()
	if err := r2.Restore(ctx); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	got, err := r2.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("restored card missing: %v", err)
	}
	if !got.HasCapability("deploy") {
		t.Errorf("restored card lost capabilities: %+v", got)
	}
	if ids := r2.QueryCapability("deploy"); len(ids) != 1 {
		t.Errorf("restore did not rebuild indexes: %v", ids)
	}
}
