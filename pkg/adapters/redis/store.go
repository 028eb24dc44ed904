// Package redis provides the Redis-backed CheckpointStore and the
// distributed session locker used when the graph runs on more than one
// replica.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/quarrydata/quarry/pkg/domain"
)

const defaultPrefix = "quarry:run:"

// farFuture scores index entries that never expire (2100-01-01, in millis).
const farFuture = 4102444800000

// Store implements ports.CheckpointStore using Redis. Each run's latest
// checkpoint lives under one key; a ZSET index scored by expiry keeps
// ListRuns cheap and lazily prunes expired runs.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets the expiration for run checkpoints.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for run checkpoints.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis checkpoint store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Redis checkpoint store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: defaultPrefix,
		ttl:    0, // no expiration by default
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(runID string) string {
	return s.prefix + runID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save replaces the run's checkpoint and refreshes its index entry.
func (s *Store) Save(ctx context.Context, cp *domain.Checkpoint) error {
	if cp == nil || cp.RunID == "" {
		return fmt.Errorf("redis: checkpoint has no run id")
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("redis: marshal checkpoint: %w", err)
	}

	score := float64(time.Now().Add(s.ttl).UnixMilli())
	if s.ttl == 0 {
		score = farFuture
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(cp.RunID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: cp.RunID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: save checkpoint %s: %w", cp.RunID, err)
	}
	return nil
}

// Load retrieves the latest checkpoint for a run.
func (s *Store) Load(ctx context.Context, runID string) (*domain.Checkpoint, error) {
	val, err := s.client.Get(ctx, s.key(runID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, fmt.Errorf("redis: run %s: %w", runID, domain.ErrRunNotFound)
		}
		return nil, fmt.Errorf("redis: load checkpoint %s: %w", runID, err)
	}

	cp := new(domain.Checkpoint)
	if err := json.Unmarshal([]byte(val), cp); err != nil {
		return nil, fmt.Errorf("redis: unmarshal checkpoint %s: %w", runID, err)
	}
	return cp, nil
}

// Delete removes the run's checkpoint and index entry.
func (s *Store) Delete(ctx context.Context, runID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(runID))
	pipe.ZRem(ctx, s.indexKey(), runID)
	_, err := pipe.Exec(ctx)
	return err
}

// ListRuns returns the IDs of all checkpointed runs, pruning expired index
// entries first.
func (s *Store) ListRuns(ctx context.Context) ([]string, error) {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", now).Err(); err != nil {
		return nil, fmt.Errorf("redis: prune expired runs: %w", err)
	}

	runs, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list runs: %w", err)
	}
	return runs, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
