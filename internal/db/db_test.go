package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuvusIT/entman/internal/entman/store"
)

func openTemp(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := OpenSQLite(context.Background(), Config{Path: filepath.Join(t.TempDir(), "sub", "entman.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestOpenSQLite_MigratesOnce(t *testing.T) {
	conn := openTemp(t)
	ctx := context.Background()

	// Re-running is a no-op.
	require.NoError(t, Migrate(ctx, conn, SQLite))

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations;`).Scan(&n))
	assert.Equal(t, 1, n)

	for _, table := range []string{"access_history", "tokens"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?;`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestOpenSQLite_OutcomeConstraint(t *testing.T) {
	conn := openTemp(t)
	_, err := conn.Exec(`INSERT INTO access_history(time_s, token, outcome, recorded_at_ms) VALUES (1, 't', 'Maybe', 0);`)
	assert.Error(t, err)
}

func TestOpenPostgres_EmptyDSN(t *testing.T) {
	_, err := OpenPostgres(context.Background(), "")
	assert.Error(t, err)
}

func TestLoadMigrations(t *testing.T) {
	for _, d := range []Dialect{SQLite, Postgres} {
		ms, err := loadMigrations(d)
		require.NoError(t, err)
		require.NotEmpty(t, ms)
		assert.Equal(t, 1, ms[0].version)
	}
	_, err := loadMigrations("oracle")
	assert.Error(t, err)
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("0012_add_index.sql")
	require.NoError(t, err)
	assert.Equal(t, 12, v)

	_, err = parseVersion("init.sql")
	assert.Error(t, err)
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "?", SQLite.Placeholder(3))
	assert.Equal(t, "$3", Postgres.Placeholder(3))
}

func TestWorker_CommitAndRollback(t *testing.T) {
	conn := openTemp(t)
	w := NewWorker(conn)
	t.Cleanup(w.Close)
	ctx := context.Background()

	insert := func(token string) TxFn {
		return func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO access_history(time_s, token, outcome, recorded_at_ms) VALUES (1, ?, 'Success', 0);`, token)
			return err
		}
	}

	require.NoError(t, w.Do(ctx, insert("kept")))

	boom := errors.New("boom")
	err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := insert("dropped")(ctx, tx); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM access_history;`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestWorker_Closed(t *testing.T) {
	conn := openTemp(t)
	w := NewWorker(conn)
	w.Close()
	w.Close()

	err := w.Do(context.Background(), func(context.Context, *sql.Tx) error { return nil })
	assert.ErrorIs(t, err, ErrWorkerClosed)
}

func TestWorker_CancelledContext(t *testing.T) {
	conn := openTemp(t)
	w := NewWorker(conn)
	t.Cleanup(w.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Do(ctx, func(context.Context, *sql.Tx) error { return nil })
	assert.Error(t, err)
}

func TestSeedDev_StoresUnderLookupPrefix(t *testing.T) {
	conn := openTemp(t)
	tok := "seeded-dev-token"
	require.NoError(t, SeedDev(context.Background(), conn, SeedDevOptions{Tokens: map[string]string{tok: "Dev"}}))

	var name string
	err := conn.QueryRow(`SELECT name FROM tokens WHERE token_prefix = ?;`, store.TokenPrefix(tok)).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "Dev", name)
}

func TestSeedDev_RejectsShortTokens(t *testing.T) {
	conn := openTemp(t)
	err := SeedDev(context.Background(), conn, SeedDevOptions{Tokens: map[string]string{"short": "x"}})
	assert.Error(t, err)
}
