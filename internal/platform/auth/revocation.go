package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore records revoked token ids until the tokens would have
// expired anyway.
type RevocationStore interface {
	Revoke(ctx context.Context, jti, subject string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RevocationInfo is a public representation of a revocation entry.
type RevocationInfo struct {
	JTI       string    `json:"jti"`
	Subject   string    `json:"subject,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type revocationEntry struct {
	ExpiresAt time.Time
	Subject   string
}

// MemoryRevocationStore keeps revocations in process memory. A background
// loop drops entries past their expiry every interval.
type MemoryRevocationStore struct {
	mu       sync.RWMutex
	entries  map[string]revocationEntry
	interval time.Duration
	done     chan struct{}
	once     sync.Once
	now      func() time.Time
}

func NewMemoryRevocationStore() *MemoryRevocationStore {
	s := &MemoryRevocationStore{
		entries:  make(map[string]revocationEntry),
		interval: 5 * time.Minute,
		done:     make(chan struct{}),
		now:      time.Now,
	}
	go s.cleanupLoop()
	return s
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, jti, subject string, expiresAt time.Time) error {
	if jti == "" {
		return errors.New("revocation: empty token id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jti] = revocationEntry{ExpiresAt: expiresAt, Subject: subject}
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[jti]
	return ok, nil
}

// Entries returns a snapshot of the current revocations.
func (s *MemoryRevocationStore) Entries() []RevocationInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RevocationInfo, 0, len(s.entries))
	for jti, e := range s.entries {
		out = append(out, RevocationInfo{JTI: jti, Subject: e.Subject, ExpiresAt: e.ExpiresAt})
	}
	return out
}

// Close stops the cleanup loop. Safe to call more than once.
func (s *MemoryRevocationStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryRevocationStore) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *MemoryRevocationStore) cleanup() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, e := range s.entries {
		if now.After(e.ExpiresAt) {
			delete(s.entries, jti)
		}
	}
}

// RedisRevocationStore shares revocations across replicas. Each entry
// expires in redis together with the token.
type RedisRevocationStore struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

func NewRedisRevocationStore(client redis.Cmdable) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, prefix: "rollcare:revoked:", now: time.Now}
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, jti, subject string, expiresAt time.Time) error {
	if jti == "" {
		return errors.New("revocation: empty token id")
	}
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.prefix+jti, subject, ttl).Err(); err != nil {
		return fmt.Errorf("redis revoke %s: %w", jti, err)
	}
	return nil
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("redis revocation lookup: %w", err)
	}
	return n > 0, nil
}
