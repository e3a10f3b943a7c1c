package store

import (
	"context"

	"github.com/stuvusIT/entman/internal/entman/types"
)

// HistoryStore persists access attempts as an append-only audit log.
//
// Query results are ordered by time ascending, ties by insertion order, so
// identical queries over identical data return identical sequences.
type HistoryStore interface {
	Insert(ctx context.Context, entry types.HistoryEntry) error
	Query(ctx context.Context, q types.HistoryQuery) ([]types.HistoryEntry, error)
}

// Pinger is implemented by stores that can check their backend without
// reading the history.
type Pinger interface {
	Ping(ctx context.Context) error
}
