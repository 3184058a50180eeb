// Package cache keeps authorization codes in process memory.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.pilab.hu/fence/domain"
)

// MemoryAuthCodeStore implements domain.AuthorizationCodeRepository using ttlcache.
// Items expire with their code, so a restart or reap never leaves stale codes behind.
type MemoryAuthCodeStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *domain.AuthCode]
}

// NewMemoryAuthCodeStore creates a new in-memory code store with automatic cleanup.
func NewMemoryAuthCodeStore() *MemoryAuthCodeStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *domain.AuthCode](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemoryAuthCodeStore{
		cache: cache,
	}
}

// SaveAuthCode implements domain.AuthorizationCodeRepository.
func (s *MemoryAuthCodeStore) SaveAuthCode(_ context.Context, code *domain.AuthCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.Has(code.CodeHash) {
		return domain.ErrAuthCodeExists
	}

	// ttlcache treats a non-positive TTL as "never expires".
	ttl := max(time.Until(code.ExpiresAt), time.Nanosecond)
	stored := *code
	s.cache.Set(code.CodeHash, &stored, ttl)

	return nil
}

// GetAuthCode implements domain.AuthorizationCodeRepository.
func (s *MemoryAuthCodeStore) GetAuthCode(_ context.Context, codeHash string) (*domain.AuthCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(codeHash)
	if item == nil {
		return nil, domain.ErrAuthCodeInvalid
	}

	code := *item.Value()
	return &code, nil
}

// ConsumeAuthCode implements domain.AuthorizationCodeRepository. The check and the
// flip of Consumed happen under one lock.
func (s *MemoryAuthCodeStore) ConsumeAuthCode(_ context.Context, req domain.RedemptionRequest) (*domain.AuthCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(req.CodeHash)
	if item == nil {
		return nil, domain.ErrAuthCodeInvalid
	}

	stored := item.Value()
	if !stored.Redeemable(req.ClientID, req.RedirectURI, req.Now) {
		return nil, domain.ErrAuthCodeInvalid
	}
	stored.Consumed = true

	code := *stored
	return &code, nil
}

// DeleteExpiredAuthCodes implements domain.AuthorizationCodeRepository.
func (s *MemoryAuthCodeStore) DeleteExpiredAuthCodes(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.cache.Len()
	s.cache.DeleteExpired()

	return int64(before - s.cache.Len()), nil
}

// Count counts the number of codes in the cache, expired ones included until reaped.
func (s *MemoryAuthCodeStore) Count() int {
	return s.cache.Len()
}

// Close stops the cleanup goroutine.
func (s *MemoryAuthCodeStore) Close() error {
	s.cache.Stop()

	return nil
}
