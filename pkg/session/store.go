package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "user."

// Store persists session snapshots in Redis, one key per user address, with
// a sliding inactivity TTL. It is not transactional across addresses; writes
// for a given address are last-writer-wins.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore wraps an established Redis client. ttl is the inactivity window
// after which a session expires from the store.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Get loads the session for an address. A missing or expired key returns
// (nil, nil): absence is an expected state, not an error.
func (s *Store) Get(ctx context.Context, address string) (*Session, error) {
	data, err := s.rdb.Get(ctx, keyPrefix+address).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session for %s: %w", address, err)
	}

	sess := New(address)
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("unmarshal session for %s: %w", address, err)
	}
	sess.Address = address

	return sess, nil
}

// Put writes the session snapshot and restarts its TTL.
func (s *Store) Put(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session for %s: %w", sess.Address, err)
	}

	if err := s.rdb.Set(ctx, keyPrefix+sess.Address, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session for %s: %w", sess.Address, err)
	}
	return nil
}

// Ping verifies store connectivity for health reporting.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying Redis client.
func (s *Store) Close() error {
	return s.rdb.Close()
}
