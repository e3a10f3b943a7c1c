package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/stuvusIT/entman/internal/entman/store"
)

type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]store.TokenRecord
}

func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]store.TokenRecord)}
}

// Issue hashes token and stores it under its prefix, replacing any token
// with the same prefix.
func (s *TokenStore) Issue(token, name string) error {
	prefix := store.TokenPrefix(token)
	if prefix == "" {
		return fmt.Errorf("token must be at least %d characters", store.TokenPrefixLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("hash token: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[prefix] = store.TokenRecord{Prefix: prefix, Hash: hash, Name: name}
	return nil
}

// Revoke marks the token with the given prefix as revoked.
func (s *TokenStore) Revoke(prefix string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[prefix]
	if !ok {
		return
	}
	rec.RevokedAt = &t
	s.tokens[prefix] = rec
}

func (s *TokenStore) LookupToken(_ context.Context, prefix string) (store.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tokens[prefix]
	if !ok {
		return store.TokenRecord{}, store.ErrTokenNotFound
	}
	return rec, nil
}

func (s *TokenStore) MarkUsed(_ context.Context, prefix string, t time.Time) error {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[prefix]
	if !ok {
		return nil
	}
	rec.LastUsed = &t
	s.tokens[prefix] = rec
	return nil
}
