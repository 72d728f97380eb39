package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	threadKeyPrefix  = "thread:"
	defaultRedisTTL  = 24 * time.Hour
	appendMaxRetries = 5
)

// RedisStore implements Store on Redis so threads survive restarts and can
// be shared across instances. Per-thread append serialization uses
// WATCH/MULTI/EXEC optimistic transactions on the thread key, which keeps
// threads independent of each other.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed thread store. A non-positive ttl
// falls back to 24h.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// key scopes the thread to its owner so a guessed thread ID can never read
// another user's history.
func (s *RedisStore) key(userID, threadID string) string {
	return threadKeyPrefix + userID + ":" + threadID
}

// Resolve implements Store.
func (s *RedisStore) Resolve(ctx context.Context, userID, threadID string) (*Session, bool, error) {
	if threadID != "" {
		val, err := s.client.Get(ctx, s.key(userID, threadID)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, false, fmt.Errorf("get thread: %w", err)
		}
		if err == nil {
			var sess Session
			if err := json.Unmarshal([]byte(val), &sess); err != nil {
				return nil, false, fmt.Errorf("decode thread: %w", err)
			}
			// Refresh TTL on read; failure to refresh is not fatal.
			_ = s.client.Expire(ctx, s.key(userID, threadID), s.ttl).Err()
			return &sess, false, nil
		}
	}

	now := time.Now()
	sess := Session{
		ThreadID:    uuid.NewString(),
		OwnerUserID: userID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}

	val, err := json.Marshal(&sess)
	if err != nil {
		return nil, false, fmt.Errorf("encode thread: %w", err)
	}
	if err := s.client.Set(ctx, s.key(userID, sess.ThreadID), val, s.ttl).Err(); err != nil {
		return nil, false, fmt.Errorf("create thread: %w", err)
	}
	return &sess, true, nil
}

// Append implements Store. Concurrent appends to the same thread are
// serialized through the optimistic transaction: a conflicting write aborts
// the EXEC and the append is retried on the fresh value, so no turn pair is
// lost.
func (s *RedisStore) Append(ctx context.Context, userID, threadID string, userTurn, modelTurn Turn) error {
	key := s.key(userID, threadID)

	for attempt := 0; attempt < appendMaxRetries; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			val, err := tx.Get(ctx, key).Result()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}

			var sess Session
			if err := json.Unmarshal([]byte(val), &sess); err != nil {
				return fmt.Errorf("decode thread: %w", err)
			}

			sess.Turns = append(sess.Turns, userTurn, modelTurn)
			sess.UpdatedAt = time.Now()
			sess.Version++

			newVal, err := json.Marshal(&sess)
			if err != nil {
				return fmt.Errorf("encode thread: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, newVal, s.ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return fmt.Errorf("append thread %s: %w", threadID, ErrVersionConflict)
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
