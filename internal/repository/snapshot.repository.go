package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nepselabs/feed-service/internal/entity"
	"github.com/redis/go-redis/v9"
)

const (
	snapshotKeyQuotes  = "feed:snapshot:quotes"
	snapshotKeyAlerts  = "feed:snapshot:alerts"
	snapshotKeySymbols = "feed:snapshot:symbols"
)

// SnapshotStore is the narrow durable key→blob interface the engine warm
// starts from. Implementations must treat a missing key as (nil, false, nil).
type SnapshotStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, blob []byte) error
}

type RedisSnapshotStore struct {
	client *redis.Client
}

func NewRedisSnapshotStore(cacheDSN string) (*RedisSnapshotStore, error) {
	if cacheDSN == "" {
		return nil, fmt.Errorf("redis cache_dsn is required")
	}

	options, err := redis.ParseURL(cacheDSN)
	if err != nil {
		return nil, fmt.Errorf("parse redis cache_dsn: %w", err)
	}

	return &RedisSnapshotStore{client: redis.NewClient(options)}, nil
}

func (s *RedisSnapshotStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	blob, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}

	return blob, true, nil
}

func (s *RedisSnapshotStore) Set(ctx context.Context, key string, blob []byte) error {
	return s.client.Set(ctx, key, blob, 0).Err()
}

func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}

// FeedSnapshotRepository provides typed access over the snapshot store for
// the three warm-start keys.
type FeedSnapshotRepository struct {
	store SnapshotStore
}

func NewFeedSnapshotRepository(store SnapshotStore) *FeedSnapshotRepository {
	return &FeedSnapshotRepository{store: store}
}

// SaveQuotes persists the quote set, pruning anything older than maxAge so
// the snapshot stays bounded.
func (r *FeedSnapshotRepository) SaveQuotes(ctx context.Context, quotes []entity.Quote, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)

	recent := make([]entity.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.Timestamp.Before(cutoff) {
			continue
		}
		recent = append(recent, q)
	}

	blob, err := json.Marshal(recent)
	if err != nil {
		return err
	}

	return r.store.Set(ctx, snapshotKeyQuotes, blob)
}

// LoadQuotes returns the persisted quotes still inside maxAge.
func (r *FeedSnapshotRepository) LoadQuotes(ctx context.Context, maxAge time.Duration) ([]entity.Quote, error) {
	blob, found, err := r.store.Get(ctx, snapshotKeyQuotes)
	if err != nil || !found {
		return nil, err
	}

	var quotes []entity.Quote
	if err := json.Unmarshal(blob, &quotes); err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-maxAge)
	fresh := make([]entity.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.Timestamp.Before(cutoff) {
			continue
		}
		fresh = append(fresh, q)
	}

	return fresh, nil
}

func (r *FeedSnapshotRepository) SaveAlerts(ctx context.Context, alerts []entity.MarketAlert) error {
	blob, err := json.Marshal(alerts)
	if err != nil {
		return err
	}

	return r.store.Set(ctx, snapshotKeyAlerts, blob)
}

func (r *FeedSnapshotRepository) LoadAlerts(ctx context.Context) ([]entity.MarketAlert, error) {
	blob, found, err := r.store.Get(ctx, snapshotKeyAlerts)
	if err != nil || !found {
		return nil, err
	}

	var alerts []entity.MarketAlert
	if err := json.Unmarshal(blob, &alerts); err != nil {
		return nil, err
	}

	return alerts, nil
}

func (r *FeedSnapshotRepository) SaveSymbols(ctx context.Context, symbols []string) error {
	blob, err := json.Marshal(symbols)
	if err != nil {
		return err
	}

	return r.store.Set(ctx, snapshotKeySymbols, blob)
}

func (r *FeedSnapshotRepository) LoadSymbols(ctx context.Context) ([]string, error) {
	blob, found, err := r.store.Get(ctx, snapshotKeySymbols)
	if err != nil || !found {
		return nil, err
	}

	var symbols []string
	if err := json.Unmarshal(blob, &symbols); err != nil {
		return nil, err
	}

	return symbols, nil
}
