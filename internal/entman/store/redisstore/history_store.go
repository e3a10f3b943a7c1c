// Package redisstore keeps the access history in a Redis list of JSON
// encoded entries.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stuvusIT/entman/internal/entman/store"
	"github.com/stuvusIT/entman/internal/entman/types"
)

const DefaultKey = "entman:history"

type HistoryStore struct {
	client *redis.Client
	key    string
}

// NewHistoryStore connects to addr and verifies the connection with PING.
func NewHistoryStore(addr string, db int, password, key string) (*HistoryStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewHistoryStoreWithClient(client, key), nil
}

func NewHistoryStoreWithClient(client *redis.Client, key string) *HistoryStore {
	if key == "" {
		key = DefaultKey
	}
	return &HistoryStore{client: client, key: key}
}

func (s *HistoryStore) Insert(ctx context.Context, e types.HistoryEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}
	if err := s.client.RPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

// Query reads the whole list and filters in process. The list preserves
// insertion order, which store.Apply relies on for tie-breaking.
func (s *HistoryStore) Query(ctx context.Context, q types.HistoryQuery) ([]types.HistoryEntry, error) {
	vals, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	entries := make([]types.HistoryEntry, 0, len(vals))
	for i, v := range vals {
		var e types.HistoryEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("corrupt history entry at index %d: %w", i, err)
		}
		entries = append(entries, e)
	}

	return store.Apply(q, entries), nil
}

// Ping checks the connection without reading the list.
func (s *HistoryStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *HistoryStore) Close() error {
	return s.client.Close()
}
