package service

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/stuvusIT/entman/internal/entman/identity"
	"github.com/stuvusIT/entman/internal/entman/store"
	"github.com/stuvusIT/entman/internal/entman/types"
)

// Shared is the verifier and history store pair used by every request.
// One mutex serialises the verify/timestamp/append sequence of access
// requests and the reads of history queries against each other. Exactly
// one Shared exists per process; it is built in main and passed by pointer.
type Shared struct {
	mu       sync.Mutex
	verifier identity.Verifier
	history  store.HistoryStore
}

func NewShared(v identity.Verifier, h store.HistoryStore) *Shared {
	return &Shared{verifier: v, history: h}
}

// record runs steps verify → timestamp → append under the lock and returns
// the decision only once it is stored. The lock is released on return, so
// whatever the caller does next (the callback) runs unlocked.
func (s *Shared) record(ctx context.Context, token string, clock Clock) (types.AccessResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.verifier.Access(ctx, token)
	if err != nil {
		return types.AccessResponse{}, fmt.Errorf("%w: %w", ErrVerifier, err)
	}
	if !resp.Outcome.Valid() {
		return types.AccessResponse{}, fmt.Errorf("%w: invalid outcome %q", ErrVerifier, resp.Outcome)
	}

	now, err := clock()
	if err != nil {
		return types.AccessResponse{}, fmt.Errorf("%w: %w", ErrClock, err)
	}

	entry := types.HistoryEntry{Time: now, Token: token, Response: resp.Clone()}
	if err := s.history.Insert(ctx, entry); err != nil {
		return types.AccessResponse{}, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}

	return resp, nil
}

func (s *Shared) query(ctx context.Context, q types.HistoryQuery) ([]types.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.history.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	if entries == nil {
		entries = []types.HistoryEntry{}
	}
	return entries, nil
}

// ping checks the history store. Stores that implement store.Pinger are
// checked without taking the lock; others answer an empty query.
func (s *Shared) ping(ctx context.Context) error {
	p, ok := s.history.(store.Pinger)
	if !ok {
		never := uint64(math.MaxUint64)
		_, err := s.query(ctx, types.HistoryQuery{TimeMin: &never})
		return err
	}
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	return nil
}
