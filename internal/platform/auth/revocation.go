package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore records signed-out token ids until their natural expiry.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryRevocationStore keeps revoked token ids in process memory, with a
// background loop that drops entries past their expiry.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	done    chan struct{}
	once    sync.Once
}

func NewMemoryRevocationStore(cleanupEvery time.Duration) *MemoryRevocationStore {
	s := &MemoryRevocationStore{
		entries: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
	go s.cleanupLoop(cleanupEvery)
	return s
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	s.mu.Lock()
	s.entries[tokenID] = expiresAt
	s.mu.Unlock()
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	exp, ok := s.entries[tokenID]
	s.mu.RUnlock()
	return ok && time.Now().Before(exp), nil
}

// Count returns the number of tracked entries, expired or not.
func (s *MemoryRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the cleanup loop. Safe to call more than once.
func (s *MemoryRevocationStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryRevocationStore) cleanupLoop(every time.Duration) {
	if every <= 0 {
		every = 5 * time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup(time.Now())
		}
	}
}

func (s *MemoryRevocationStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, id)
		}
	}
}

// RedisRevocationStore shares revocations across replicas. Keys expire with
// the token so Redis does the cleanup.
type RedisRevocationStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisRevocationStore(rdb *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{rdb: rdb, prefix: "retina:revoked:"}
}

func (s *RedisRevocationStore) key(tokenID string) string {
	return s.prefix + tokenID
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, s.key(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis set revocation: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists revocation: %w", err)
	}
	return n > 0, nil
}

// RevocationChecker wraps a Provider and rejects signed-out tokens. A store
// failure fails closed as ErrProviderUnavailable.
type RevocationChecker struct {
	Provider
	Store RevocationStore
}

func (r RevocationChecker) Validate(ctx context.Context, token string) (*Identity, error) {
	id, err := r.Provider.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	tokenID := id.TokenID
	if tokenID == "" {
		tokenID = TokenFingerprint(token)
	}
	revoked, err := r.Store.IsRevoked(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: token revoked", ErrInvalidCredential)
	}
	return id, nil
}

// TokenFingerprint identifies a credential that carries no jti.
func TokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
