package store

import (
	"context"
	"errors"
	"time"
)

// ErrTokenNotFound is returned by TokenStore.LookupToken when no token with
// the given prefix exists.
var ErrTokenNotFound = errors.New("token not found")

// TokenPrefixLen is the number of leading token characters stored in clear
// text and used as the lookup key for the hashed token.
const TokenPrefixLen = 8

// TokenRecord describes an issued token. Only the bcrypt hash of the full
// token is stored.
type TokenRecord struct {
	Prefix    string
	Hash      []byte
	Name      string
	RevokedAt *time.Time
	LastUsed  *time.Time
}

func (r TokenRecord) Revoked() bool { return r.RevokedAt != nil }

// TokenStore backs the hashed-token verifier.
type TokenStore interface {
	LookupToken(ctx context.Context, prefix string) (TokenRecord, error)
	MarkUsed(ctx context.Context, prefix string, t time.Time) error
}

// TokenPrefix returns the lookup prefix for token, or "" if the token is too
// short to have one.
func TokenPrefix(token string) string {
	if len(token) < TokenPrefixLen {
		return ""
	}
	return token[:TokenPrefixLen]
}
