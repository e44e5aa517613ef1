// Package welcome implements the one-time onboarding-acceptance gate.
package welcome

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/saporia/saporia/internal/errors"
	"github.com/saporia/saporia/internal/profile"
)

// ShowModal re-derives whether the welcome modal is due. It is stateless:
// the flag comes from stored preferences on every call.
func ShowModal(p *profile.TenantProfile) bool {
	if p == nil {
		return false
	}
	prefs := p.Settings.RestaurantProfile.UserPreferences
	return !prefs.TermsAccepted && !prefs.DontShowWelcomeAgain
}

// Gate persists welcome acceptance through the profile store.
type Gate struct {
	store profile.Store
}

// NewGate creates a gate over the given store.
func NewGate(store profile.Store) *Gate {
	return &Gate{store: store}
}

// Accept persists termsAccepted (and optionally dontShowWelcomeAgain) and
// returns the refreshed profile. Acceptance is only reported after the
// store confirms the write; a failed write returns the error and leaves
// the caller's profile untouched, so it is never treated as acceptance.
func (g *Gate) Accept(ctx context.Context, p *profile.TenantProfile, dontShowAgain bool) (*profile.TenantProfile, error) {
	if p == nil {
		return nil, errors.ErrInvalidInput
	}

	prefs := p.Settings.RestaurantProfile.UserPreferences
	prefs.TermsAccepted = true
	if dontShowAgain {
		prefs.DontShowWelcomeAgain = true
	}

	updated, err := g.store.SetPreferences(ctx, p.ID, prefs)
	if err != nil {
		log.Warn().Err(err).Str("tenant", p.ID).Msg("Welcome acceptance write failed")
		return nil, err
	}

	log.Info().Str("tenant", p.ID).Msg("Welcome gate accepted")
	return updated, nil
}
