package globalconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/saporia/saporia/internal/profile"
)

func TestBuildPromoView_Countdown(t *testing.T) {
	updated := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	promo := profile.Promo{
		Name:          "Launch offer",
		Cost:          19.9,
		Duration:      "3 months",
		DeadlineHours: 1,
		Active:        true,
		LastUpdated:   updated,
	}

	// Mid-countdown.
	view := BuildPromoView(promo, updated.Add(30*time.Minute))
	assert.True(t, view.Active)
	assert.False(t, view.Expired)
	assert.Equal(t, 30*time.Minute, view.Remaining)

	// One minute past the deadline: the view reports expired, but this is
	// a read-time computation — the stored flag stays true.
	view = BuildPromoView(promo, updated.Add(61*time.Minute))
	assert.True(t, view.Active)
	assert.True(t, view.Expired)
	assert.Equal(t, time.Duration(0), view.Remaining)
	assert.True(t, promo.Active, "stored promo flag must not be auto-cleared")
}

func TestBuildPromoView_InactiveOrNoDeadline(t *testing.T) {
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	view := BuildPromoView(profile.Promo{Active: false, DeadlineHours: 1, LastUpdated: now}, now)
	assert.False(t, view.Active)
	assert.False(t, view.Expired)

	// Active with no countdown configured: runs until an admin clears it.
	view = BuildPromoView(profile.Promo{Active: true}, now)
	assert.True(t, view.Active)
	assert.False(t, view.Expired)
	assert.True(t, view.Deadline.IsZero())
}

func TestEffectiveCost(t *testing.T) {
	updated := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	cfg := profile.GlobalConfig{
		DefaultCost: 29.9,
		Promo: profile.Promo{
			Cost:          19.9,
			DeadlineHours: 1,
			Active:        true,
			LastUpdated:   updated,
		},
	}

	assert.Equal(t, 19.9, EffectiveCost(cfg, updated.Add(30*time.Minute)))
	assert.Equal(t, 29.9, EffectiveCost(cfg, updated.Add(2*time.Hour)), "expired promo falls back to default price")

	cfg.Promo.Active = false
	assert.Equal(t, 29.9, EffectiveCost(cfg, updated))
}
