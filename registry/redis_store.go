package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/devops-hub/agenthub/types"
)

// RedisConfig contains Redis connection settings for the card store.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string `json:"addr" yaml:"addr"`

	// Password is the Redis password (optional).
	Password string `json:"password" yaml:"password"`

	// DB is the Redis database number.
	DB int `json:"db" yaml:"db"`

	// PoolSize is the connection pool size.
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// KeyPrefix is the prefix for all Redis keys.
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// DefaultRedisConfig returns the default Redis store configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		PoolSize:  10,
		KeyPrefix: "agenthub:",
	}
}

// RedisCardStore is a Redis-backed CardStore for deployments where the card
// set must survive process restarts. Cards are stored as JSON values with a
// set index of registered IDs.
type RedisCardStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCardStore connects to Redis and verifies the connection.
func NewRedisCardStore(config RedisConfig) (*RedisCardStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "agenthub:"
	}

	return &RedisCardStore{
		client:    client,
		keyPrefix: keyPrefix + "card:",
	}, nil
}

// NewRedisCardStoreFromClient wraps an existing client. Used by tests.
func NewRedisCardStoreFromClient(client *redis.Client, keyPrefix string) *RedisCardStore {
	if keyPrefix == "" {
		keyPrefix = "agenthub:"
	}
	return &RedisCardStore{client: client, keyPrefix: keyPrefix + "card:"}
}

func (s *RedisCardStore) cardKey(agentID string) string {
	return s.keyPrefix + "data:" + agentID
}

func (s *RedisCardStore) allCardsKey() string {
	return s.keyPrefix + "all"
}

func (s *RedisCardStore) SaveCard(ctx context.Context, card *types.AgentCard) error {
	if card == nil || card.AgentID == "" {
		return types.NewError(types.ErrCodeInternalError, "card is nil or missing agent_id")
	}

	data, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("failed to marshal card: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.cardKey(card.AgentID), data, 0)
	pipe.SAdd(ctx, s.allCardsKey(), card.AgentID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisCardStore) DeleteCard(ctx context.Context, agentID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.cardKey(agentID))
	pipe.SRem(ctx, s.allCardsKey(), agentID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisCardStore) GetCard(ctx context.Context, agentID string) (*types.AgentCard, error) {
	data, err := s.client.Get(ctx, s.cardKey(agentID)).Bytes()
	if err == redis.Nil {
		return nil, types.NewErrorf(types.ErrCodeAgentNotFound, "card %s not found", agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load card: %w", err)
	}

	var card types.AgentCard
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("failed to unmarshal card: %w", err)
	}
	return &card, nil
}

func (s *RedisCardStore) ListCards(ctx context.Context) ([]*types.AgentCard, error) {
	ids, err := s.client.SMembers(ctx, s.allCardsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list card ids: %w", err)
	}

	cards := make([]*types.AgentCard, 0, len(ids))
	for _, id := range ids {
		card, err := s.GetCard(ctx, id)
		if err != nil {
			// index entry without data: skip, the next sweep cleans it up
			if types.IsCode(err, types.ErrCodeAgentNotFound) {
				continue
			}
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}

func (s *RedisCardStore) Close() error {
	return s.client.Close()
}

func (s *RedisCardStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
