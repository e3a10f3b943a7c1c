package identity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/stuvusIT/entman/internal/entman/types"
)

// DefaultCacheMaxEntries bounds CachingVerifier when no limit is given.
const DefaultCacheMaxEntries = 10000

// CachingVerifier remembers Success responses of the wrapped verifier for a
// TTL. An expired entry is still served once while a single background
// refresh re-verifies the token (stale-while-revalidate). Failures and
// errors are never cached, so a revoked token stops working at most one TTL
// plus one refresh after revocation.
//
// At most maxEntries tokens are held. Expired entries are swept once per TTL
// and whenever the cache is full; a token that still does not fit is
// verified without being cached.
type CachingVerifier struct {
	next       Verifier
	ttl        time.Duration
	maxEntries int
	logger     *zap.Logger
	now        func() time.Time

	mu        sync.Mutex
	entries   map[string]*cacheEntry
	lastSweep time.Time

	wg sync.WaitGroup
}

type cacheEntry struct {
	resp       types.AccessResponse
	expiresAt  time.Time
	refreshing atomic.Bool
}

func NewCachingVerifier(next Verifier, ttl time.Duration, maxEntries int, logger *zap.Logger) *CachingVerifier {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingVerifier{
		next:       next,
		ttl:        ttl,
		maxEntries: maxEntries,
		logger:     logger,
		now:        time.Now,
		entries:    make(map[string]*cacheEntry),
	}
}

func (c *CachingVerifier) Access(ctx context.Context, token string) (types.AccessResponse, error) {
	c.mu.Lock()
	e, ok := c.entries[token]
	c.mu.Unlock()

	if ok {
		if c.now().Before(e.expiresAt) {
			return e.resp.Clone(), nil
		}
		if e.refreshing.CompareAndSwap(false, true) {
			c.wg.Add(1)
			go c.refresh(token)
		}
		return e.resp.Clone(), nil
	}

	resp, err := c.next.Access(ctx, token)
	if err != nil {
		return types.AccessResponse{}, err
	}
	if resp.Granted() {
		c.store(token, resp)
	}
	return resp, nil
}

func (c *CachingVerifier) refresh(token string) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.next.Access(ctx, token)
	if err != nil || !resp.Granted() {
		if err != nil {
			c.logger.Warn("background token refresh failed", zap.Error(err))
		}
		c.mu.Lock()
		delete(c.entries, token)
		c.mu.Unlock()
		return
	}
	c.store(token, resp)
}

func (c *CachingVerifier) store(token string, resp types.AccessResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	_, replacing := c.entries[token]
	if now.Sub(c.lastSweep) >= c.ttl || (!replacing && len(c.entries) >= c.maxEntries) {
		c.sweepLocked(now)
	}
	if !replacing && len(c.entries) >= c.maxEntries {
		return
	}

	c.entries[token] = &cacheEntry{
		resp:      resp.Clone(),
		expiresAt: now.Add(c.ttl),
	}
}

// sweepLocked drops expired entries that no refresh is working on.
func (c *CachingVerifier) sweepLocked(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) && !e.refreshing.Load() {
			delete(c.entries, k)
		}
	}
	c.lastSweep = now
}

// Len reports the number of cached tokens.
func (c *CachingVerifier) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Wait blocks until in-flight background refreshes have finished.
func (c *CachingVerifier) Wait() {
	c.wg.Wait()
}
