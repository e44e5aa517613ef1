// Package entitlement decides, for a tenant session, whether the product
// may be used at all, in what degraded mode, and which one-time gates
// apply. The decision is recomputed fresh on every call; there is no
// stored "current state".
package entitlement

import (
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saporia/saporia/internal/profile"
)

// AccessState is the top-level access classification of a session.
type AccessState string

const (
	StateActive    AccessState = "active"
	StateSuspended AccessState = "suspended"
	StateBanned    AccessState = "banned"
)

// SuspensionReason qualifies StateSuspended.
type SuspensionReason string

const (
	ReasonNone           SuspensionReason = ""
	ReasonNoProfile      SuspensionReason = "no_profile"
	ReasonAdminSuspended SuspensionReason = "admin_suspended"
	ReasonExpired        SuspensionReason = "expired"
)

// Decision is the derived access decision. It is never persisted.
type Decision struct {
	State  AccessState      `json:"state"`
	Reason SuspensionReason `json:"reason,omitempty"`

	// DaysRemaining is nil exactly when the plan is unrestricted-duration
	// (Free/Demo) or no decision about expiry could be made.
	DaysRemaining *int `json:"days_remaining"`

	// MissingEndDate marks a paid plan with no subscription end date. Such
	// tenants are treated as unlimited but the condition is surfaced so
	// admin tooling can flag it instead of it passing silently.
	MissingEndDate bool `json:"missing_end_date,omitempty"`

	ShowWelcomeModal bool `json:"show_welcome_modal"`
}

// Equal compares two decisions by value, including the day count behind
// the pointer.
func (d Decision) Equal(other Decision) bool {
	if d.State != other.State || d.Reason != other.Reason ||
		d.MissingEndDate != other.MissingEndDate ||
		d.ShowWelcomeModal != other.ShowWelcomeModal {
		return false
	}
	if (d.DaysRemaining == nil) != (other.DaysRemaining == nil) {
		return false
	}
	return d.DaysRemaining == nil || *d.DaysRemaining == *other.DaysRemaining
}

// Evaluator computes access decisions. It is stateless apart from the
// configured privileged identity and safe for concurrent use.
type Evaluator struct {
	privilegedEmail string
}

// NewEvaluator creates an evaluator. privilegedEmail is the single account
// exempt from expiry-based suspension (never from a ban).
func NewEvaluator(privilegedEmail string) *Evaluator {
	return &Evaluator{privilegedEmail: strings.TrimSpace(privilegedEmail)}
}

// Evaluate derives the access decision for a profile at the given instant.
// A nil profile means the profile could not be fetched or does not exist;
// uncertainty denies access rather than granting it.
//
// Checks run in strict priority order: missing profile, ban, administrative
// suspension, unrestricted plans, then expiry. The privileged-identity
// bypass is applied last so it can never mask a ban or an administrative
// suspension.
func (e *Evaluator) Evaluate(p *profile.TenantProfile, now time.Time, sessionEmail string) Decision {
	if p == nil {
		return Decision{State: StateSuspended, Reason: ReasonNoProfile}
	}

	decision := Decision{
		ShowWelcomeModal: showWelcomeModal(p.Settings.RestaurantProfile.UserPreferences),
	}

	switch p.SubscriptionStatus {
	case profile.StatusBanned:
		decision.State = StateBanned
		return decision
	case profile.StatusSuspended:
		decision.State = StateSuspended
		decision.Reason = ReasonAdminSuspended
		return decision
	}

	rp := p.Settings.RestaurantProfile
	if profile.IsUnlimitedPlan(rp.PlanType) {
		decision.State = StateActive
		return decision
	}

	if rp.SubscriptionEndDate == nil {
		// Paid plan with no end date: treated as unlimited, but loudly.
		log.Warn().
			Str("tenant", p.ID).
			Str("plan", rp.PlanType).
			Msg("Paid plan has no subscription end date, treating as unlimited")
		decision.State = StateActive
		decision.MissingEndDate = true
		return decision
	}

	days := DaysRemaining(*rp.SubscriptionEndDate, now)
	expired := now.After(rp.SubscriptionEndDate.EndOfDay())

	if expired && !e.isPrivileged(sessionEmail) {
		decision.State = StateSuspended
		decision.Reason = ReasonExpired
		return decision
	}

	decision.State = StateActive
	decision.DaysRemaining = &days
	return decision
}

// DaysRemaining counts whole days left until the end date, giving the
// tenant the full calendar day of expiry: an end date of today yields 0
// while access stays valid until the end of the day.
func DaysRemaining(end profile.DateOnly, now time.Time) int {
	diff := end.Sub(now)
	return int(math.Ceil(diff.Hours() / 24))
}

func (e *Evaluator) isPrivileged(sessionEmail string) bool {
	if e.privilegedEmail == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(sessionEmail), e.privilegedEmail)
}

func showWelcomeModal(prefs profile.UserPreferences) bool {
	return !prefs.TermsAccepted && !prefs.DontShowWelcomeAgain
}
