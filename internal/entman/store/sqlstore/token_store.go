package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/stuvusIT/entman/internal/db"
	"github.com/stuvusIT/entman/internal/entman/store"
)

type TokenStore struct {
	db      *sql.DB
	dialect dbpkg.Dialect
	writer  *dbpkg.Worker
}

func NewTokenStore(db *sql.DB, d dbpkg.Dialect, writer *dbpkg.Worker) *TokenStore {
	return &TokenStore{db: db, dialect: d, writer: writer}
}

func (s *TokenStore) LookupToken(ctx context.Context, prefix string) (store.TokenRecord, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return store.TokenRecord{}, store.ErrTokenNotFound
	}

	var (
		rec      store.TokenRecord
		revoked  sql.NullInt64
		lastUsed sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT token_prefix, token_hash, name, revoked_at_ms, last_used_at_ms
FROM tokens
WHERE token_prefix = `+s.dialect.Placeholder(1)+`;
`, prefix).Scan(&rec.Prefix, &rec.Hash, &rec.Name, &revoked, &lastUsed)

	if err == sql.ErrNoRows {
		return store.TokenRecord{}, store.ErrTokenNotFound
	}
	if err != nil {
		return store.TokenRecord{}, fmt.Errorf("LookupToken query: %w", err)
	}

	if revoked.Valid {
		t := time.UnixMilli(revoked.Int64).UTC()
		rec.RevokedAt = &t
	}
	if lastUsed.Valid {
		t := time.UnixMilli(lastUsed.Int64).UTC()
		rec.LastUsed = &t
	}
	return rec, nil
}

// MarkUsed records the last successful use; unknown prefixes are ignored.
func (s *TokenStore) MarkUsed(ctx context.Context, prefix string, t time.Time) error {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	p := s.dialect.Placeholder
	stmt := fmt.Sprintf(`
UPDATE tokens
SET last_used_at_ms = %s
WHERE token_prefix = %s;`, p(1), p(2))

	return runTx(ctx, s.db, s.writer, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, stmt, t.UTC().UnixMilli(), prefix); err != nil {
			return fmt.Errorf("MarkUsed update token: %w", err)
		}
		return nil
	})
}

// IssueToken stores a pre-hashed token, replacing any token with the same
// prefix.
func (s *TokenStore) IssueToken(ctx context.Context, rec store.TokenRecord) error {
	if rec.Prefix == "" || len(rec.Hash) == 0 {
		return fmt.Errorf("IssueToken: prefix and hash are required")
	}
	p := s.dialect.Placeholder
	stmt := fmt.Sprintf(`
INSERT INTO tokens(token_prefix, token_hash, name, created_at_ms)
VALUES (%s, %s, %s, %s)
ON CONFLICT(token_prefix) DO UPDATE SET
  token_hash    = excluded.token_hash,
  name          = excluded.name,
  revoked_at_ms = NULL;`, p(1), p(2), p(3), p(4))

	return runTx(ctx, s.db, s.writer, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, stmt, rec.Prefix, rec.Hash, rec.Name, time.Now().UTC().UnixMilli()); err != nil {
			return fmt.Errorf("IssueToken insert: %w", err)
		}
		return nil
	})
}

// RevokeToken marks the token with the given prefix as revoked at t.
func (s *TokenStore) RevokeToken(ctx context.Context, prefix string, t time.Time) error {
	p := s.dialect.Placeholder
	stmt := fmt.Sprintf(`UPDATE tokens SET revoked_at_ms = %s WHERE token_prefix = %s;`, p(1), p(2))

	return runTx(ctx, s.db, s.writer, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, stmt, t.UTC().UnixMilli(), prefix); err != nil {
			return fmt.Errorf("RevokeToken update: %w", err)
		}
		return nil
	})
}
