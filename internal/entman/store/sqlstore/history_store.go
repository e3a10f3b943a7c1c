// Package sqlstore implements the history and token stores on database/sql
// for both the sqlite and postgres dialects.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	dbpkg "github.com/stuvusIT/entman/internal/db"
	"github.com/stuvusIT/entman/internal/entman/types"
)

var errTimeOverflow = errors.New("entry time does not fit a signed 64-bit column")

type HistoryStore struct {
	db      *sql.DB
	dialect dbpkg.Dialect
	writer  *dbpkg.Worker // nil: write directly
}

// NewHistoryStore returns a store over db. For sqlite pass the shared
// writer so inserts are serialised with other writes; postgres takes nil.
func NewHistoryStore(db *sql.DB, d dbpkg.Dialect, writer *dbpkg.Worker) *HistoryStore {
	return &HistoryStore{db: db, dialect: d, writer: writer}
}

func (s *HistoryStore) Insert(ctx context.Context, e types.HistoryEntry) error {
	if e.Time > math.MaxInt64 {
		return errTimeOverflow
	}

	var name, reason any
	if e.Response.Name != "" {
		name = e.Response.Name
	}
	if e.Response.Reason != "" {
		reason = e.Response.Reason
	}

	p := s.dialect.Placeholder
	stmt := fmt.Sprintf(`
INSERT INTO access_history(time_s, token, outcome, name, reason, recorded_at_ms)
VALUES (%s, %s, %s, %s, %s, %s);`, p(1), p(2), p(3), p(4), p(5), p(6))

	// A queued write commits even if the caller goes away; report its real
	// result instead of ctx.Err().
	ctx = context.WithoutCancel(ctx)

	return runTx(ctx, s.db, s.writer, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, stmt,
			int64(e.Time), e.Token, string(e.Response.Outcome), name, reason,
			time.Now().UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("Insert history: %w", err)
		}
		return nil
	})
}

func (s *HistoryStore) Query(ctx context.Context, q types.HistoryQuery) ([]types.HistoryEntry, error) {
	stmt, args := buildHistoryQuery(s.dialect, q)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("Query history: %w", err)
	}
	defer rows.Close()

	out := []types.HistoryEntry{}
	for rows.Next() {
		var (
			t       int64
			token   string
			outcome string
			name    sql.NullString
			reason  sql.NullString
		)
		if err := rows.Scan(&t, &token, &outcome, &name, &reason); err != nil {
			return nil, fmt.Errorf("Query history scan: %w", err)
		}
		out = append(out, types.HistoryEntry{
			Time:  uint64(t),
			Token: token,
			Response: types.AccessResponse{
				Outcome: types.Outcome(outcome),
				Name:    name.String,
				Reason:  reason.String,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Query history rows: %w", err)
	}
	return out, nil
}

func (s *HistoryStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// buildHistoryQuery renders q as one SELECT. Ordering is time then id,
// which is insertion order for equal times.
func buildHistoryQuery(d dbpkg.Dialect, q types.HistoryQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, d.Placeholder(len(args))))
	}

	if q.TimeMin != nil {
		if *q.TimeMin > math.MaxInt64 {
			// Nothing stored can be that late.
			where = append(where, "1 = 0")
		} else {
			add("time_s >= %s", int64(*q.TimeMin))
		}
	}
	if q.TimeMax != nil && *q.TimeMax <= math.MaxInt64 {
		add("time_s <= %s", int64(*q.TimeMax))
	}
	if q.Token != nil {
		add("token = %s", *q.Token)
	}
	if q.Name != nil {
		add("name = %s", *q.Name)
	}
	if q.Outcome != nil {
		add("outcome = %s", string(*q.Outcome))
	}

	cond := ""
	if len(where) > 0 {
		cond = "WHERE " + strings.Join(where, " AND ")
	}

	const cols = "time_s, token, outcome, name, reason"
	if !q.OnlyLatest {
		return fmt.Sprintf("SELECT %s FROM access_history %s ORDER BY time_s, id;", cols, cond), args
	}

	return fmt.Sprintf(`
SELECT %[1]s FROM (
  SELECT id, %[1]s,
         ROW_NUMBER() OVER (PARTITION BY token ORDER BY time_s DESC, id DESC) AS rn
  FROM access_history %[2]s
) AS latest
WHERE rn = 1
ORDER BY time_s, id;`, cols, cond), args
}

func runTx(ctx context.Context, db *sql.DB, writer *dbpkg.Worker, fn dbpkg.TxFn) error {
	if writer != nil {
		return writer.Do(ctx, fn)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
