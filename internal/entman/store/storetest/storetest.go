// Package storetest holds behaviour tests shared by every HistoryStore and
// TokenStore implementation.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuvusIT/entman/internal/entman/store"
	"github.com/stuvusIT/entman/internal/entman/types"
)

func ptr[T any](v T) *T { return &v }

func entry(t uint64, token string, outcome types.Outcome, name string) types.HistoryEntry {
	return types.HistoryEntry{
		Time:     t,
		Token:    token,
		Response: types.AccessResponse{Outcome: outcome, Name: name, Reason: "test"},
	}
}

// sample is inserted in this order by every history test.
var sample = []types.HistoryEntry{
	entry(30, "tok-a", types.Success, "alice"),
	entry(10, "tok-b", types.Failure, ""),
	entry(30, "tok-c", types.Success, "carol"),
	entry(20, "tok-a", types.Failure, ""),
	entry(30, "tok-a", types.Success, "alice"),
}

func tokensAt(entries []types.HistoryEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Token)
	}
	return out
}

// RunHistoryStore exercises newStore, which must return an empty store for
// every call.
func RunHistoryStore(t *testing.T, newStore func(t *testing.T) store.HistoryStore) {
	ctx := context.Background()

	seeded := func(t *testing.T) store.HistoryStore {
		s := newStore(t)
		for _, e := range sample {
			require.NoError(t, s.Insert(ctx, e))
		}
		return s
	}

	t.Run("empty", func(t *testing.T) {
		got, err := newStore(t).Query(ctx, types.HistoryQuery{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("round_trip", func(t *testing.T) {
		s := newStore(t)
		e := entry(5, "tok-x", types.Success, "xavier")
		require.NoError(t, s.Insert(ctx, e))

		got, err := s.Query(ctx, types.HistoryQuery{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, e, got[0])
	})

	t.Run("ordered_by_time_then_insertion", func(t *testing.T) {
		got, err := seeded(t).Query(ctx, types.HistoryQuery{})
		require.NoError(t, err)
		assert.Equal(t, []uint64{10, 20, 30, 30, 30}, []uint64{got[0].Time, got[1].Time, got[2].Time, got[3].Time, got[4].Time})
		assert.Equal(t, []string{"tok-b", "tok-a", "tok-a", "tok-c", "tok-a"}, tokensAt(got))
	})

	t.Run("time_bounds_inclusive", func(t *testing.T) {
		got, err := seeded(t).Query(ctx, types.HistoryQuery{TimeMin: ptr[uint64](10), TimeMax: ptr[uint64](20)})
		require.NoError(t, err)
		assert.Equal(t, []string{"tok-b", "tok-a"}, tokensAt(got))
	})

	t.Run("token_and_outcome", func(t *testing.T) {
		got, err := seeded(t).Query(ctx, types.HistoryQuery{Token: ptr("tok-a"), Outcome: ptr(types.Success)})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("name", func(t *testing.T) {
		s := seeded(t)
		got, err := s.Query(ctx, types.HistoryQuery{Name: ptr("carol")})
		require.NoError(t, err)
		assert.Equal(t, []string{"tok-c"}, tokensAt(got))

		got, err = s.Query(ctx, types.HistoryQuery{Name: ptr("")})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("only_latest", func(t *testing.T) {
		s := seeded(t)
		got, err := s.Query(ctx, types.HistoryQuery{OnlyLatest: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"tok-b", "tok-c", "tok-a"}, tokensAt(got))

		// Filters apply before the latest entry per token is chosen.
		got, err = s.Query(ctx, types.HistoryQuery{OnlyLatest: true, Outcome: ptr(types.Failure)})
		require.NoError(t, err)
		assert.Equal(t, []string{"tok-b", "tok-a"}, tokensAt(got))
		assert.Equal(t, uint64(20), got[1].Time)
	})
}
