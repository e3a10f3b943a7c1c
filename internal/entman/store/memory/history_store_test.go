package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuvusIT/entman/internal/entman/store"
	"github.com/stuvusIT/entman/internal/entman/store/memory"
	"github.com/stuvusIT/entman/internal/entman/store/storetest"
	"github.com/stuvusIT/entman/internal/entman/types"
)

func TestHistoryStore(t *testing.T) {
	storetest.RunHistoryStore(t, func(*testing.T) store.HistoryStore {
		return memory.NewHistoryStore()
	})
}

func TestHistoryStore_EntriesIsACopy(t *testing.T) {
	s := memory.NewHistoryStore()
	require.NoError(t, s.Insert(context.Background(), types.HistoryEntry{Time: 1, Token: "a"}))

	got := s.Entries()
	got[0].Token = "changed"
	assert.Equal(t, "a", s.Entries()[0].Token)
}

func TestTokenStore(t *testing.T) {
	ctx := context.Background()
	s := memory.NewTokenStore()

	require.Error(t, s.Issue("short", "x"))
	require.NoError(t, s.Issue("abcdefgh-secret", "alice"))

	rec, err := s.LookupToken(ctx, "abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Name)
	assert.NotEmpty(t, rec.Hash)
	assert.False(t, rec.Revoked())
	assert.Nil(t, rec.LastUsed)

	used := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.MarkUsed(ctx, "abcdefgh", used))
	s.Revoke("abcdefgh", used)

	rec, err = s.LookupToken(ctx, "abcdefgh")
	require.NoError(t, err)
	require.NotNil(t, rec.LastUsed)
	assert.Equal(t, used, *rec.LastUsed)
	assert.True(t, rec.Revoked())

	_, err = s.LookupToken(ctx, "zzzzzzzz")
	assert.ErrorIs(t, err, store.ErrTokenNotFound)
}
