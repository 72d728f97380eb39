// Package session provides keyed, per-user refinement threads.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Turn roles. These match the role names the model API expects.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Common errors for session store operations.
var (
	ErrNotFound        = errors.New("session not found")
	ErrInvalidBackend  = errors.New("invalid session backend")
	ErrMissingRedis    = errors.New("redis backend requires a redis client")
	ErrVersionConflict = errors.New("session version conflict")
)

// Turn is a single message in a thread's history.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one refinement thread owned by a single user. Values returned
// by Store.Resolve are snapshots; mutation happens only through Append.
type Session struct {
	ThreadID    string    `json:"thread_id"`
	OwnerUserID string    `json:"owner_user_id"`
	Turns       []Turn    `json:"turns"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Version     int64     `json:"version"`
}

// Store holds per-user refinement threads, keyed by (userID, threadID) so
// a thread ID can never resolve across users.
type Store interface {
	// Resolve returns the thread for (userID, threadID) and whether it was
	// just created. An empty threadID always creates a new thread. A
	// threadID that is unknown, or that belongs to a different user, also
	// creates a new thread with a freshly generated ID.
	Resolve(ctx context.Context, userID, threadID string) (*Session, bool, error)

	// Append adds one (user turn, model turn) pair to an existing thread.
	// Appends to the same thread are serialized; threads never share a lock.
	// Returns ErrNotFound if the thread does not exist for that user.
	Append(ctx context.Context, userID, threadID string, userTurn, modelTurn Turn) error

	// Close releases any resources held by the store.
	Close() error
}

// Backend selects a Store driver.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// StoreOption configures NewStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	redisTTL    time.Duration
}

// WithRedisClient sets the Redis client for the redis backend.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisTTL sets the expiry applied to thread keys in Redis.
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.redisTTL = ttl
	}
}

// NewStore creates a Store for the given backend. The memory backend is
// self-contained; the redis backend requires WithRedisClient.
func NewStore(backend Backend, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		if cfg.redisClient == nil {
			return nil, ErrMissingRedis
		}
		return NewRedisStore(cfg.redisClient, cfg.redisTTL), nil
	default:
		return nil, ErrInvalidBackend
	}
}
