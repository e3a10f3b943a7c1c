package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuvusIT/entman/internal/entman/identity"
	"github.com/stuvusIT/entman/internal/entman/service"
	"github.com/stuvusIT/entman/internal/entman/types"
)

func ptr[T any](v T) *T { return &v }

// seed records tokens in order with clock values taken from times.
func seed(t *testing.T, tokens []string, times []uint64) *service.HistoryService {
	t.Helper()
	i := 0
	clock := func() (uint64, error) { v := times[i]; i++; return v, nil }
	policy := identity.StaticPolicy{Tokens: map[string]string{"a-token": "alice", "b-token": "bob", "anon": ""}}
	access, hist, _ := newTestServices(identity.NewStaticVerifier(policy), nil, clock)
	for _, tok := range tokens {
		_, _, err := access.Access(context.Background(), tok)
		require.NoError(t, err)
	}
	return hist
}

func tokensOf(entries []types.HistoryEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Token)
	}
	return out
}

func TestHistory_EmptyStoreReturnsEmptySlice(t *testing.T) {
	_, hist, _ := newTestServices(identity.NewStaticVerifier(alice), nil, fixedClock(1))

	entries, err := hist.Query(context.Background(), types.HistoryQuery{})
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestHistory_TimeBoundsInclusive(t *testing.T) {
	hist := seed(t, []string{"a-token", "b-token", "x", "a-token"}, []uint64{10, 20, 30, 40})

	entries, err := hist.Query(context.Background(), types.HistoryQuery{TimeMin: ptr[uint64](20), TimeMax: ptr[uint64](30)})
	require.NoError(t, err)
	assert.Equal(t, []string{"b-token", "x"}, tokensOf(entries))

	entries, err = hist.Query(context.Background(), types.HistoryQuery{TimeMin: ptr[uint64](31), TimeMax: ptr[uint64](30)})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHistory_NameNeverMatchesAnonymous(t *testing.T) {
	hist := seed(t, []string{"anon", "a-token", "x"}, []uint64{1, 2, 3})

	entries, err := hist.Query(context.Background(), types.HistoryQuery{Name: ptr("")})
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = hist.Query(context.Background(), types.HistoryQuery{Name: ptr("alice")})
	require.NoError(t, err)
	assert.Equal(t, []string{"a-token"}, tokensOf(entries))
}

func TestHistory_OutcomeAndTokenFilters(t *testing.T) {
	hist := seed(t, []string{"a-token", "x", "b-token", "x"}, []uint64{1, 2, 3, 4})

	entries, err := hist.Query(context.Background(), types.HistoryQuery{Outcome: ptr(types.Failure)})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "x"}, tokensOf(entries))

	entries, err = hist.Query(context.Background(), types.HistoryQuery{Token: ptr("b-token"), Outcome: ptr(types.Success)})
	require.NoError(t, err)
	assert.Equal(t, []string{"b-token"}, tokensOf(entries))
}

func TestHistory_OnlyLatest_TiesKeepLaterInsertion(t *testing.T) {
	// Both a-token attempts share time 5; the later insertion wins.
	hist := seed(t, []string{"a-token", "x", "a-token", "b-token"}, []uint64{5, 3, 5, 4})

	entries, err := hist.Query(context.Background(), types.HistoryQuery{OnlyLatest: true})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"x", "b-token", "a-token"}, tokensOf(entries))
	assert.Equal(t, []uint64{3, 4, 5}, []uint64{entries[0].Time, entries[1].Time, entries[2].Time})
}

func TestHistory_OrderedByTimeThenInsertion(t *testing.T) {
	hist := seed(t, []string{"a-token", "b-token", "x"}, []uint64{9, 2, 9})

	entries, err := hist.Query(context.Background(), types.HistoryQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b-token", "a-token", "x"}, tokensOf(entries))
}

func TestHistory_StoreError_ServiceUnavailable(t *testing.T) {
	shared := service.NewShared(identity.NewStaticVerifier(alice), failingHistory{err: errors.New("gone")})
	hist := service.NewHistoryService(shared, nil, nil)

	_, err := hist.Query(context.Background(), types.HistoryQuery{})
	assert.ErrorIs(t, err, service.ErrServiceUnavailable)
	assert.Equal(t, service.StatusServiceUnavailable, service.StatusOf(err))
}

// pingingHistory answers pings with pingErr and fails every query.
type pingingHistory struct {
	failingHistory
	pingErr error
}

func (h pingingHistory) Ping(context.Context) error { return h.pingErr }

func TestHistory_Ping(t *testing.T) {
	v := identity.NewStaticVerifier(alice)

	hist := service.NewHistoryService(service.NewShared(v, pingingHistory{failingHistory: failingHistory{err: errors.New("slow scan")}}), nil, nil)
	assert.NoError(t, hist.Ping(context.Background()))

	hist = service.NewHistoryService(service.NewShared(v, pingingHistory{pingErr: errors.New("conn refused")}), nil, nil)
	assert.ErrorIs(t, hist.Ping(context.Background()), service.ErrServiceUnavailable)

	hist = service.NewHistoryService(service.NewShared(v, failingHistory{err: errors.New("disk gone")}), nil, nil)
	assert.ErrorIs(t, hist.Ping(context.Background()), service.ErrServiceUnavailable)
}

func TestHistory_PingDoesNotWaitForAccess(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	v := verifierFunc(func(context.Context, string) (types.AccessResponse, error) {
		close(entered)
		<-release
		return types.AccessResponse{Outcome: types.Success}, nil
	})
	access, hist, _ := newTestServices(v, nil, fixedClock(1))

	done := make(chan error, 1)
	go func() {
		_, _, err := access.Access(context.Background(), "tok")
		done <- err
	}()
	<-entered

	pinged := make(chan error, 1)
	go func() { pinged <- hist.Ping(context.Background()) }()
	select {
	case err := <-pinged:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ping blocked behind an access attempt")
	}

	close(release)
	require.NoError(t, <-done)
}
