// Package redis implements store.Store using Redis, for deployments
// where the archive must survive scheduler restarts. Records are stored
// as JSON strings with a Sorted Set index keyed by finish time, so
// listing and pruning are range operations.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/scribeflow/sched/id"
	"github.com/scribeflow/sched/store"
)

var _ store.Store = (*Store)(nil)

// Redis key naming. All keys are prefixed with "sched:" to avoid
// collisions.
const keyPrefix = "sched:"

// recordKey returns the key for a record: sched:record:{jobID}
func recordKey(jobID string) string { return keyPrefix + "record:" + jobID }

// recordIndexKey is the Sorted Set indexing job IDs by finish time.
const recordIndexKey = keyPrefix + "records"

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithTTL sets a per-record expiry as a backstop under the index-driven
// prune. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// Store implements store.Store backed by Redis.
type Store struct {
	client goredis.Cmdable
	logger *slog.Logger
	ttl    time.Duration
}

// New creates a Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// SaveRecord persists a record, overwriting any previous record for the
// same job.
func (s *Store) SaveRecord(ctx context.Context, r *store.Record) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("sched/redis: marshal record: %w", err)
	}

	jobID := r.JobID.String()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, recordKey(jobID), payload, s.ttl)
	pipe.ZAdd(ctx, recordIndexKey, goredis.Z{
		Score:  float64(r.FinishedAt.UnixNano()),
		Member: jobID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("sched/redis: save record: %w", err)
	}
	return nil
}

// GetRecord retrieves the record for a job.
func (s *Store) GetRecord(ctx context.Context, jobID id.JobID) (*store.Record, error) {
	payload, err := s.client.Get(ctx, recordKey(jobID.String())).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sched/redis: get record: %w", err)
	}

	var r store.Record
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("sched/redis: unmarshal record: %w", err)
	}
	return &r, nil
}

// ListRecords returns up to limit records, newest first.
func (s *Store) ListRecords(ctx context.Context, limit int) ([]*store.Record, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	jobIDs, err := s.client.ZRevRange(ctx, recordIndexKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("sched/redis: list records: %w", err)
	}

	out := make([]*store.Record, 0, len(jobIDs))
	for _, jobID := range jobIDs {
		payload, err := s.client.Get(ctx, recordKey(jobID)).Bytes()
		if errors.Is(err, goredis.Nil) {
			// Record expired under the index; clean up lazily.
			s.client.ZRem(ctx, recordIndexKey, jobID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("sched/redis: list get %s: %w", jobID, err)
		}

		var r store.Record
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("sched/redis: unmarshal record %s: %w", jobID, err)
		}
		out = append(out, &r)
	}
	return out, nil
}

// PruneRecords deletes records finished before the cutoff.
func (s *Store) PruneRecords(ctx context.Context, cutoff time.Time) (int, error) {
	max := fmt.Sprintf("(%d", cutoff.UnixNano())
	jobIDs, err := s.client.ZRangeByScore(ctx, recordIndexKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("sched/redis: prune range: %w", err)
	}
	if len(jobIDs) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, jobID := range jobIDs {
		pipe.Del(ctx, recordKey(jobID))
	}
	pipe.ZRemRangeByScore(ctx, recordIndexKey, "-inf", max)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("sched/redis: prune records: %w", err)
	}
	return len(jobIDs), nil
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op — the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
