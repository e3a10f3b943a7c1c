package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuvusIT/entman/internal/entman/types"
)

// countingVerifier answers with resp/err and counts calls.
type countingVerifier struct {
	mu    sync.Mutex
	calls int
	resp  types.AccessResponse
	err   error
}

func (v *countingVerifier) Access(context.Context, string) (types.AccessResponse, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.resp, v.err
}

func (v *countingVerifier) set(resp types.AccessResponse, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resp, v.err = resp, err
}

func (v *countingVerifier) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestCache(next Verifier) (*CachingVerifier, *fakeNow) {
	clock := &fakeNow{t: time.Unix(1_700_000_000, 0)}
	c := NewCachingVerifier(next, time.Minute, 0, nil)
	c.now = clock.now
	return c, clock
}

func TestCachingVerifier_CachesSuccess(t *testing.T) {
	next := &countingVerifier{resp: granted("alice", ReasonTokenAllowed)}
	c, _ := newTestCache(next)

	for i := 0; i < 3; i++ {
		resp, err := c.Access(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, "alice", resp.Name)
	}
	assert.Equal(t, 1, next.count())
}

func TestCachingVerifier_DoesNotCacheFailureOrError(t *testing.T) {
	next := &countingVerifier{resp: denied(ReasonTokenNotAllowed)}
	c, _ := newTestCache(next)

	_, _ = c.Access(context.Background(), "tok")
	_, _ = c.Access(context.Background(), "tok")
	assert.Equal(t, 2, next.count())

	next.set(types.AccessResponse{}, ErrUnavailable)
	_, err := c.Access(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, next.count())
}

func TestCachingVerifier_StaleServedThenRefreshed(t *testing.T) {
	next := &countingVerifier{resp: granted("alice", ReasonTokenAllowed)}
	c, clock := newTestCache(next)

	_, err := c.Access(context.Background(), "tok")
	require.NoError(t, err)

	next.set(granted("alice v2", ReasonTokenAllowed), nil)
	clock.advance(2 * time.Minute)

	resp, err := c.Access(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.Name, "stale entry is served while refreshing")
	c.Wait()
	assert.Equal(t, 2, next.count())

	resp, err = c.Access(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "alice v2", resp.Name)
	assert.Equal(t, 2, next.count())
}

func TestCachingVerifier_RevocationDropsEntry(t *testing.T) {
	next := &countingVerifier{resp: granted("alice", ReasonTokenAllowed)}
	c, clock := newTestCache(next)

	_, _ = c.Access(context.Background(), "tok")

	next.set(denied(ReasonRevoked), nil)
	clock.advance(2 * time.Minute)
	_, _ = c.Access(context.Background(), "tok") // stale, triggers refresh
	c.Wait()

	resp, err := c.Access(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, types.Failure, resp.Outcome)
	assert.Equal(t, ReasonRevoked, resp.Reason)
}

func TestCachingVerifier_RefreshErrorDropsEntry(t *testing.T) {
	next := &countingVerifier{resp: granted("alice", ReasonTokenAllowed)}
	c, clock := newTestCache(next)

	_, _ = c.Access(context.Background(), "tok")

	next.set(types.AccessResponse{}, errors.New("db down"))
	clock.advance(2 * time.Minute)
	_, _ = c.Access(context.Background(), "tok")
	c.Wait()

	_, err := c.Access(context.Background(), "tok")
	assert.Error(t, err)
}

func TestCachingVerifier_BoundedByMaxEntries(t *testing.T) {
	next := &countingVerifier{resp: granted("", ReasonAllowAll)}
	clock := &fakeNow{t: time.Unix(1_700_000_000, 0)}
	c := NewCachingVerifier(next, time.Minute, 3, nil)
	c.now = clock.now

	for i := 0; i < 100; i++ {
		resp, err := c.Access(context.Background(), fmt.Sprintf("tok-%d", i))
		require.NoError(t, err)
		assert.Equal(t, types.Success, resp.Outcome)
	}
	assert.Equal(t, 3, c.Len())

	// Tokens that did not fit are verified every time.
	_, err := c.Access(context.Background(), "tok-99")
	require.NoError(t, err)
	assert.Equal(t, 101, next.count())

	_, err = c.Access(context.Background(), "tok-0")
	require.NoError(t, err)
	assert.Equal(t, 101, next.count())
}

func TestCachingVerifier_ExpiredEntriesSwept(t *testing.T) {
	next := &countingVerifier{resp: granted("", ReasonAllowAll)}
	c, clock := newTestCache(next)

	for i := 0; i < 1000; i++ {
		_, err := c.Access(context.Background(), fmt.Sprintf("tok-%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 1000, c.Len())

	clock.advance(2 * time.Minute)
	_, err := c.Access(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}
