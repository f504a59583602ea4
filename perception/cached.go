package perception

import (
	"context"
	"log/slog"
	"time"

	"go.aimuz.me/basar/cache"
	"go.aimuz.me/basar/internal/types"
)

// Cached answers repeated frames from a result cache.
// Identical frames are common with directory and file sources.
type Cached struct {
	next  Client
	cache *cache.Cache
	ttl   time.Duration
}

// NewCached wraps next with c. A zero ttl uses cache.DefaultTTL.
func NewCached(next Client, c *cache.Cache, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Cached{next: next, cache: c, ttl: ttl}
}

func (c *Cached) Name() string { return c.next.Name() }

// Submit returns the cached result for the frame, or asks next and stores
// a successful answer.
func (c *Cached) Submit(ctx context.Context, mode types.Mode, image []byte) (types.Result, error) {
	key := cache.GenerateKey(c.next.Name(), mode.WireName(), cache.HashImage(image))

	if entry, ok := c.cache.Get(key); ok {
		slog.Debug("perception cache hit", "mode", mode, "provider", entry.Provider)
		res := entry.Result
		res.Mode = mode
		res.Latency = 0
		return res, nil
	}

	res, err := c.next.Submit(ctx, mode, image)
	if err != nil {
		return res, err
	}

	entry := &cache.Entry{
		Result:    res,
		Provider:  c.next.Name(),
		CreatedAt: time.Now(),
	}
	if err := c.cache.Set(key, entry, c.ttl); err != nil {
		slog.Warn("failed to cache perception result", "error", err)
	}
	return res, nil
}
