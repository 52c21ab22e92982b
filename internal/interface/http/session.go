package http

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/persistence/redis"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// Bearer tokens issued on login. Redis-backed when available so web
// sessions survive a deploy; otherwise an in-memory map.
// ══════════════════════════════════════════════════════════════════════════════

// ErrSessionNotFound is returned for unknown or expired session tokens.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore maps opaque session tokens to portal user IDs.
type SessionStore interface {
	// Create issues a new session token for the user.
	Create(ctx context.Context, userID string) (string, error)

	// Resolve returns the user ID the token belongs to.
	// Returns ErrSessionNotFound for unknown or expired tokens.
	Resolve(ctx context.Context, token string) (string, error)

	// Destroy invalidates the token. Unknown tokens are not an error.
	Destroy(ctx context.Context, token string) error
}

// ──────────────────────────────────────────────────────────────────────────────
// In-memory store
// ──────────────────────────────────────────────────────────────────────────────

type memorySession struct {
	userID    string
	expiresAt time.Time
}

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	ttl      time.Duration
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		ttl:      ttl,
	}
}

func (s *MemorySessionStore) Create(_ context.Context, userID string) (string, error) {
	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[token] = memorySession{userID: userID, expiresAt: time.Now().Add(s.ttl)}
	return token, nil
}

func (s *MemorySessionStore) Resolve(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return "", ErrSessionNotFound
	}
	if time.Now().After(session.expiresAt) {
		delete(s.sessions, token)
		return "", ErrSessionNotFound
	}
	return session.userID, nil
}

func (s *MemorySessionStore) Destroy(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Redis store
// ──────────────────────────────────────────────────────────────────────────────

// RedisSessionStore keeps sessions in Redis with a TTL.
type RedisSessionStore struct {
	cache *redis.Cache
	ttl   time.Duration
}

// NewRedisSessionStore wraps the Redis cache as a session store.
func NewRedisSessionStore(cache *redis.Cache, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSessionStore{cache: cache, ttl: ttl}
}

func (s *RedisSessionStore) Create(ctx context.Context, userID string) (string, error) {
	token := uuid.NewString()
	if err := s.cache.SetString(ctx, redis.SessionKey(token), userID, s.ttl); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

func (s *RedisSessionStore) Resolve(ctx context.Context, token string) (string, error) {
	userID, err := s.cache.GetString(ctx, redis.SessionKey(token))
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("load session: %w", err)
	}
	return userID, nil
}

func (s *RedisSessionStore) Destroy(ctx context.Context, token string) error {
	return s.cache.Delete(ctx, redis.SessionKey(token))
}
