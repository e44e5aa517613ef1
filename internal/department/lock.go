// Package department enforces the plan-conditioned, write-once restriction
// of a tenant to a single operational surface.
package department

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/saporia/saporia/internal/errors"
	"github.com/saporia/saporia/internal/profile"
)

// Outcome classifies the result of a department entry request.
type Outcome string

const (
	// OutcomeAllow grants entry to the requested department.
	OutcomeAllow Outcome = "allow"
	// OutcomeDeny refuses entry because the tenant is locked elsewhere.
	OutcomeDeny Outcome = "deny"
	// OutcomeNeedsConfirmation requires explicit operator confirmation of
	// the irreversible lock before entry.
	OutcomeNeedsConfirmation Outcome = "needs_confirmation"
)

// RequestResult is the decision for a department entry request.
type RequestResult struct {
	Outcome Outcome `json:"outcome"`

	// LockedDepartment is set on OutcomeDeny: the department the tenant is
	// already locked to.
	LockedDepartment profile.Department `json:"locked_department,omitempty"`
}

// Manager applies the department lock. Request is a pure decision; Confirm
// performs the single conditional write that makes the lock permanent.
type Manager struct {
	store profile.Store
}

// NewManager creates a lock manager over the given store.
func NewManager(store profile.Store) *Manager {
	return &Manager{store: store}
}

// Request decides whether the tenant may enter the department. It never
// writes: an unset lock on a restricted plan yields NeedsConfirmation and
// the caller must obtain operator confirmation before calling Confirm.
func (m *Manager) Request(p *profile.TenantProfile, dept profile.Department) RequestResult {
	if p == nil {
		return RequestResult{Outcome: OutcomeDeny}
	}

	rp := p.Settings.RestaurantProfile
	if !profile.IsBasicPlan(rp.PlanType) || !profile.LockableDepartments[dept] {
		// Unrestricted plans, and the waiter surface on any plan, are
		// always allowed and never lock.
		return RequestResult{Outcome: OutcomeAllow}
	}

	switch rp.AllowedDepartment {
	case profile.DepartmentNone:
		return RequestResult{Outcome: OutcomeNeedsConfirmation}
	case dept:
		return RequestResult{Outcome: OutcomeAllow}
	default:
		return RequestResult{
			Outcome:          OutcomeDeny,
			LockedDepartment: rp.AllowedDepartment,
		}
	}
}

// Confirm persists the irreversible lock and returns the refreshed profile.
// The write is conditional on the stored department being unset, so two
// devices confirming concurrently cannot both succeed with different
// values; the loser gets errors.ErrDepartmentLocked. Nothing is updated
// locally until the store confirms.
func (m *Manager) Confirm(ctx context.Context, p *profile.TenantProfile, dept profile.Department) (*profile.TenantProfile, error) {
	if p == nil {
		return nil, errors.ErrInvalidInput
	}
	if !profile.LockableDepartments[dept] {
		return nil, fmt.Errorf("%w: department %q cannot be locked", errors.ErrInvalidInput, dept)
	}

	result := m.Request(p, dept)
	switch result.Outcome {
	case OutcomeAllow:
		return p, nil
	case OutcomeDeny:
		return nil, errors.WrapConflict("confirm_department", p.ID,
			fmt.Errorf("%w to %q", errors.ErrDepartmentLocked, result.LockedDepartment))
	}

	updated, err := m.store.SetAllowedDepartment(ctx, p.ID, dept)
	if err != nil {
		if stderrors.Is(err, errors.ErrDepartmentLocked) {
			log.Warn().
				Str("tenant", p.ID).
				Str("department", string(dept)).
				Msg("Department lock confirmation lost a concurrent race")
		}
		return nil, err
	}

	log.Info().
		Str("tenant", p.ID).
		Str("department", string(dept)).
		Msg("Tenant locked to department")

	return updated, nil
}
