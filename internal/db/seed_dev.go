package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/stuvusIT/entman/internal/entman/store"
)

type SeedDevOptions struct {
	// Tokens maps a clear-text dev token to its display name. Each token is
	// stored bcrypt-hashed under its store.TokenPrefix.
	Tokens map[string]string
}

// DefaultDevToken is seeded when SeedDevOptions.Tokens is empty.
const DefaultDevToken = "dev-token-0001"

// SeedDev inserts (or refreshes) development tokens in the sqlite tokens
// table. It is never called in prod.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	tokens := opt.Tokens
	if len(tokens) == 0 {
		tokens = map[string]string{DefaultDevToken: "Dev User"}
	}
	now := time.Now().UTC().UnixMilli()

	for tok, name := range tokens {
		tok = strings.TrimSpace(tok)
		prefix := store.TokenPrefix(tok)
		if prefix == "" {
			return fmt.Errorf("seed token %q: must be at least %d characters", tok, store.TokenPrefixLen)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(tok), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("seed token hash: %w", err)
		}

		if _, err := db.ExecContext(ctx, `
INSERT INTO tokens(token_prefix, token_hash, name, created_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(token_prefix) DO UPDATE SET
  token_hash    = excluded.token_hash,
  name          = excluded.name,
  revoked_at_ms = NULL;
`, prefix, hash, name, now); err != nil {
			return fmt.Errorf("seed token %s: %w", prefix, err)
		}
	}

	return nil
}
