package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/stuvusIT/entman/internal/entman/store"
	"github.com/stuvusIT/entman/internal/entman/types"
)

// HashedVerifier checks tokens against bcrypt hashes kept in a TokenStore.
// The first store.TokenPrefixLen characters select the record; the whole
// token is compared against its hash.
type HashedVerifier struct {
	tokens store.TokenStore
	logger *zap.Logger
	now    func() time.Time
}

func NewHashedVerifier(tokens store.TokenStore, logger *zap.Logger) *HashedVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HashedVerifier{
		tokens: tokens,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (v *HashedVerifier) Access(ctx context.Context, token string) (types.AccessResponse, error) {
	prefix := store.TokenPrefix(token)
	if prefix == "" {
		return denied(ReasonUnknownToken), nil
	}

	rec, err := v.tokens.LookupToken(ctx, prefix)
	if errors.Is(err, store.ErrTokenNotFound) {
		return denied(ReasonUnknownToken), nil
	}
	if err != nil {
		return types.AccessResponse{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if err := bcrypt.CompareHashAndPassword(rec.Hash, []byte(token)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return denied(ReasonBadToken), nil
		}
		// A hash bcrypt cannot parse means the store holds garbage.
		return types.AccessResponse{}, fmt.Errorf("%w: token %s: %w", ErrUnavailable, prefix, err)
	}

	if rec.Revoked() {
		return denied(ReasonRevoked), nil
	}

	if err := v.tokens.MarkUsed(ctx, prefix, v.now()); err != nil {
		v.logger.Warn("failed to record token use",
			zap.String("token_prefix", prefix),
			zap.Error(err),
		)
	}

	return granted(rec.Name, ReasonTokenValid), nil
}
