// Package globalconfig serves the deployment-wide display configuration
// owned by the super-admin profile. It is best-effort and never
// participates in the access decision.
package globalconfig

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saporia/saporia/internal/metrics"
	"github.com/saporia/saporia/internal/profile"
)

// DefaultTTL is how long a fetched config is served before refetching.
const DefaultTTL = 5 * time.Minute

// Lookup fetches a profile by email; satisfied by profile.Store.
type Lookup interface {
	GetProfileByEmail(ctx context.Context, email string) (*profile.TenantProfile, error)
}

// Cache is an injected, TTL-bounded cache of the super-admin globalConfig
// blob. Get never fails and never blocks the entitlement path beyond its
// context: any failure serves the last good value, or defaults.
type Cache struct {
	lookup          Lookup
	superAdminEmail string
	ttl             time.Duration
	nowFn           func() time.Time

	mu        sync.Mutex
	cached    profile.GlobalConfig
	fetchedAt time.Time
	haveGood  bool
}

// New creates a cache over the given lookup. A non-positive ttl falls back
// to DefaultTTL.
func New(lookup Lookup, superAdminEmail string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		lookup:          lookup,
		superAdminEmail: superAdminEmail,
		ttl:             ttl,
		nowFn:           time.Now,
	}
}

// Get returns the current global configuration, refreshing from the store
// when the TTL has elapsed. On any failure the previous value is retained;
// with no previous value, defaults are returned.
func (c *Cache) Get(ctx context.Context) profile.GlobalConfig {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFn()
	if c.haveGood && now.Sub(c.fetchedAt) < c.ttl {
		metrics.GlobalConfigLookups.WithLabelValues("hit").Inc()
		return c.cached
	}

	cfg, ok := c.fetch(ctx)
	if !ok {
		if c.haveGood {
			metrics.GlobalConfigLookups.WithLabelValues("stale").Inc()
			return c.cached
		}
		metrics.GlobalConfigLookups.WithLabelValues("default").Inc()
		return profile.DefaultGlobalConfig()
	}

	c.cached = cfg
	c.fetchedAt = now
	c.haveGood = true
	metrics.GlobalConfigLookups.WithLabelValues("miss").Inc()
	return c.cached
}

// Invalidate drops the cached value so the next Get refetches.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.haveGood = false
	c.fetchedAt = time.Time{}
}

func (c *Cache) fetch(ctx context.Context) (profile.GlobalConfig, bool) {
	p, err := c.lookup.GetProfileByEmail(ctx, c.superAdminEmail)
	if err != nil {
		log.Debug().Err(err).Msg("Global config fetch failed, serving previous or default values")
		return profile.GlobalConfig{}, false
	}
	if p == nil || p.Settings.GlobalConfig == nil {
		log.Debug().Str("email", c.superAdminEmail).Msg("Super-admin profile has no globalConfig blob")
		return profile.GlobalConfig{}, false
	}
	return *p.Settings.GlobalConfig, true
}
