package globalconfig

import (
	"time"

	"github.com/saporia/saporia/internal/profile"
)

// PromoView is the read-time presentation of a promo. Expiry of the
// countdown is a display computation only; the persisted promo.active flag
// is never cleared here — that requires an explicit admin action.
type PromoView struct {
	Name     string  `json:"name"`
	Cost     float64 `json:"cost"`
	Duration string  `json:"duration"`

	// Active mirrors the stored flag.
	Active bool `json:"active"`

	// Expired reports that the countdown from lastUpdated + deadlineHours
	// has elapsed. It can be true while Active is still true.
	Expired bool `json:"expired"`

	// Remaining is the countdown time left, zero once expired.
	Remaining time.Duration `json:"remaining"`

	// Deadline is the instant the countdown ends, zero when no deadline
	// applies.
	Deadline time.Time `json:"deadline,omitzero"`
}

// BuildPromoView computes the countdown view of a promo at the given
// instant.
func BuildPromoView(promo profile.Promo, now time.Time) PromoView {
	view := PromoView{
		Name:     promo.Name,
		Cost:     promo.Cost,
		Duration: promo.Duration,
		Active:   promo.Active,
	}
	if !promo.Active {
		return view
	}

	if promo.DeadlineHours <= 0 || promo.LastUpdated.IsZero() {
		// No countdown configured; the offer simply runs until an admin
		// clears it.
		return view
	}

	view.Deadline = promo.LastUpdated.Add(time.Duration(promo.DeadlineHours) * time.Hour)
	if remaining := view.Deadline.Sub(now); remaining > 0 {
		view.Remaining = remaining
	} else {
		view.Expired = true
	}
	return view
}

// EffectiveCost returns the price display layers should show: the promo
// cost while an active, unexpired promo runs, otherwise the default.
func EffectiveCost(cfg profile.GlobalConfig, now time.Time) float64 {
	view := BuildPromoView(cfg.Promo, now)
	if view.Active && !view.Expired {
		return view.Cost
	}
	return cfg.DefaultCost
}
