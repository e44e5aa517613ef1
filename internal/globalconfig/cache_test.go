package globalconfig

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saporia/saporia/internal/profile"
)

type fakeLookup struct {
	profile *profile.TenantProfile
	err     error
	calls   int
}

func (f *fakeLookup) GetProfileByEmail(ctx context.Context, email string) (*profile.TenantProfile, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

func superAdmin(cfg *profile.GlobalConfig) *profile.TenantProfile {
	return &profile.TenantProfile{
		ID:    "super-admin",
		Email: "admin@saporia.app",
		Settings: profile.TenantSettings{
			GlobalConfig: cfg,
		},
	}
}

func TestCache_ServesAndCachesWithinTTL(t *testing.T) {
	lookup := &fakeLookup{profile: superAdmin(&profile.GlobalConfig{ContactEmail: "support@saporia.app"})}
	cache := New(lookup, "admin@saporia.app", time.Minute)

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	cache.nowFn = func() time.Time { return now }

	got := cache.Get(context.Background())
	require.Equal(t, "support@saporia.app", got.ContactEmail)
	require.Equal(t, 1, lookup.calls)

	// Within TTL: no refetch.
	now = now.Add(30 * time.Second)
	cache.Get(context.Background())
	assert.Equal(t, 1, lookup.calls)

	// Past TTL: refetch.
	now = now.Add(time.Minute)
	cache.Get(context.Background())
	assert.Equal(t, 2, lookup.calls)
}

func TestCache_FailureServesDefaultsThenLastGood(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("store unreachable")}
	cache := New(lookup, "admin@saporia.app", time.Minute)

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	cache.nowFn = func() time.Time { return now }

	// No previous value: defaults, never an error or panic.
	got := cache.Get(context.Background())
	assert.Equal(t, profile.DefaultGlobalConfig(), got)

	// A successful fetch is remembered.
	lookup.err = nil
	lookup.profile = superAdmin(&profile.GlobalConfig{ContactEmail: "support@saporia.app"})
	now = now.Add(2 * time.Minute)
	got = cache.Get(context.Background())
	require.Equal(t, "support@saporia.app", got.ContactEmail)

	// A later failure serves the last good value, not defaults.
	lookup.err = errors.New("store unreachable again")
	now = now.Add(2 * time.Minute)
	got = cache.Get(context.Background())
	assert.Equal(t, "support@saporia.app", got.ContactEmail)
}

func TestCache_MissingBlobFallsBack(t *testing.T) {
	lookup := &fakeLookup{profile: superAdmin(nil)}
	cache := New(lookup, "admin@saporia.app", time.Minute)

	got := cache.Get(context.Background())
	assert.Equal(t, profile.DefaultGlobalConfig(), got)
}

func TestCache_InvalidateForcesRefetch(t *testing.T) {
	lookup := &fakeLookup{profile: superAdmin(&profile.GlobalConfig{ContactEmail: "v1@saporia.app"})}
	cache := New(lookup, "admin@saporia.app", time.Hour)

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	cache.nowFn = func() time.Time { return now }

	require.Equal(t, "v1@saporia.app", cache.Get(context.Background()).ContactEmail)

	lookup.profile = superAdmin(&profile.GlobalConfig{ContactEmail: "v2@saporia.app"})

	// Still cached for an hour without the hook.
	assert.Equal(t, "v1@saporia.app", cache.Get(context.Background()).ContactEmail)

	cache.Invalidate()
	assert.Equal(t, "v2@saporia.app", cache.Get(context.Background()).ContactEmail)
}
