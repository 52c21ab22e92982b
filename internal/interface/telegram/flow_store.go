package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/persistence/redis"
)

// ══════════════════════════════════════════════════════════════════════════════
// LINK FLOW STATE
// ══════════════════════════════════════════════════════════════════════════════

// flowStep is the position of a chat inside the account linking dialog.
type flowStep string

const (
	stepAwaitLogin    flowStep = "await_login"
	stepAwaitPassword flowStep = "await_password"
)

// linkFlow holds the in-progress linking dialog for one chat.
type linkFlow struct {
	Step  flowStep `json:"step"`
	Login string   `json:"login,omitempty"`
}

// flowTTL bounds how long an abandoned dialog is kept.
const flowTTL = 10 * time.Minute

// FlowStore keeps per-chat dialog state between updates.
type FlowStore interface {
	Get(ctx context.Context, chatID int64) (*linkFlow, bool, error)
	Put(ctx context.Context, chatID int64, flow *linkFlow) error
	Delete(ctx context.Context, chatID int64) error
}

// ──────────────────────────────────────────────────────────────────────────────
// In-memory store
// ──────────────────────────────────────────────────────────────────────────────

type memoryEntry struct {
	flow      linkFlow
	expiresAt time.Time
}

// MemoryFlowStore is the fallback store used when Redis is disabled.
// State does not survive a bot restart, which only means the student
// has to send /start again.
type MemoryFlowStore struct {
	mu      sync.Mutex
	entries map[int64]memoryEntry
}

// NewMemoryFlowStore creates an empty in-memory flow store.
func NewMemoryFlowStore() *MemoryFlowStore {
	return &MemoryFlowStore{entries: make(map[int64]memoryEntry)}
}

func (s *MemoryFlowStore) Get(_ context.Context, chatID int64) (*linkFlow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[chatID]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.entries, chatID)
		return nil, false, nil
	}
	flow := entry.flow
	return &flow, true, nil
}

func (s *MemoryFlowStore) Put(_ context.Context, chatID int64, flow *linkFlow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[chatID] = memoryEntry{flow: *flow, expiresAt: time.Now().Add(flowTTL)}
	return nil
}

func (s *MemoryFlowStore) Delete(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, chatID)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Redis store
// ──────────────────────────────────────────────────────────────────────────────

// RedisFlowStore keeps dialog state in Redis so the dialog survives
// bot restarts.
type RedisFlowStore struct {
	cache *redis.Cache
}

// NewRedisFlowStore wraps a Redis cache as a flow store.
func NewRedisFlowStore(cache *redis.Cache) *RedisFlowStore {
	return &RedisFlowStore{cache: cache}
}

func (s *RedisFlowStore) Get(ctx context.Context, chatID int64) (*linkFlow, bool, error) {
	raw, err := s.cache.GetString(ctx, redis.LinkFlowKey(chatID))
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load link flow: %w", err)
	}

	var flow linkFlow
	if err := json.Unmarshal([]byte(raw), &flow); err != nil {
		// Corrupted state is dropped so the dialog can restart cleanly.
		_ = s.cache.Delete(ctx, redis.LinkFlowKey(chatID))
		return nil, false, nil
	}
	return &flow, true, nil
}

func (s *RedisFlowStore) Put(ctx context.Context, chatID int64, flow *linkFlow) error {
	raw, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("encode link flow: %w", err)
	}
	return s.cache.SetString(ctx, redis.LinkFlowKey(chatID), string(raw), flowTTL)
}

func (s *RedisFlowStore) Delete(ctx context.Context, chatID int64) error {
	return s.cache.Delete(ctx, redis.LinkFlowKey(chatID))
}
