// Package idempotency de-duplicates event ids delivered at least once by
// JetStream consumers.
//
// Backends, best first: Redis SETNX with TTL, Postgres processed_events,
// in-memory (development only).
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Store interface {
	// Check returns true if eventID was already processed.
	// If not seen, it atomically marks it as processed.
	Check(ctx context.Context, eventID string) (duplicate bool, err error)
	// Forget clears a mark so a failed event can be redelivered.
	Forget(ctx context.Context, eventID string) error
}

type Options struct {
	Namespace string
	Redis     *redis.Client
	Pool      *pgxpool.Pool
	TTL       time.Duration
	IsProd    bool
}

func NewStore(opts Options) (Store, error) {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	switch {
	case opts.Redis != nil:
		return &redisStore{client: opts.Redis, prefix: opts.Namespace + ":idempotent:", ttl: opts.TTL}, nil
	case opts.Pool != nil:
		return &postgresStore{pool: opts.Pool, prefix: opts.Namespace + ":"}, nil
	case opts.IsProd:
		return nil, errors.New("production requires REDIS_URL or DATABASE_URL for idempotency; in-memory store is not allowed")
	default:
		return newMemoryStore(opts.TTL, time.Now), nil
	}
}

type redisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (s *redisStore) Check(ctx context.Context, eventID string) (bool, error) {
	set, err := s.client.SetNX(ctx, s.prefix+eventID, 1, s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

func (s *redisStore) Forget(ctx context.Context, eventID string) error {
	return s.client.Del(ctx, s.prefix+eventID).Err()
}

// postgresStore relies on the processed_events table from the schema
// migrations.
type postgresStore struct {
	pool   *pgxpool.Pool
	prefix string
}

func (s *postgresStore) Check(ctx context.Context, eventID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO processed_events (event_id) VALUES ($1) ON CONFLICT (event_id) DO NOTHING`,
		s.prefix+eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 0, nil
}

func (s *postgresStore) Forget(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM processed_events WHERE event_id = $1`, s.prefix+eventID)
	return err
}
