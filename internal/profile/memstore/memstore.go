// Package memstore is an in-memory profile store used by tests and mock
// mode. It honors the same contract as the SQLite store, including the
// conditional department write.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	apperrors "github.com/saporia/saporia/internal/errors"
	"github.com/saporia/saporia/internal/profile"
)

// Store keeps profiles in memory, keyed by id.
type Store struct {
	mu       sync.Mutex
	profiles map[string]*profile.TenantProfile
	notifier profile.ChangeNotifier

	// FailWrites forces every mutation to fail, for exercising
	// failed-persistence paths.
	FailWrites bool
}

// New creates an empty store.
func New() *Store {
	return &Store{profiles: make(map[string]*profile.TenantProfile)}
}

// Put inserts or replaces a profile directly, bypassing notifications.
func (s *Store) Put(p *profile.TenantProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p.Clone()
}

func (s *Store) GetProfile(ctx context.Context, id string) (*profile.TenantProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, apperrors.WrapNotFound("get_profile", id)
	}
	return p.Clone(), nil
}

func (s *Store) GetProfileByEmail(ctx context.Context, email string) (*profile.TenantProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.profiles {
		if p.Email == email {
			return p.Clone(), nil
		}
	}
	return nil, apperrors.WrapNotFound("get_profile_by_email", email)
}

func (s *Store) CreateProfile(ctx context.Context, email string, settings profile.TenantSettings) (*profile.TenantProfile, error) {
	if s.FailWrites {
		return nil, apperrors.WrapConnectionError("create_profile", "", apperrors.ErrConnectionFailed)
	}
	s.mu.Lock()
	now := time.Now()
	p := &profile.TenantProfile{
		ID:                 ulid.Make().String(),
		Email:              email,
		SubscriptionStatus: profile.StatusActive,
		Settings:           settings,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.profiles[p.ID] = p
	clone := p.Clone()
	s.mu.Unlock()

	s.notifier.Notify(clone)
	return clone.Clone(), nil
}

func (s *Store) UpdateSettings(ctx context.Context, id string, settings profile.TenantSettings) (*profile.TenantProfile, error) {
	return s.mutate(id, "update_settings", func(p *profile.TenantProfile) error {
		// The stored lock stays authoritative.
		settings.RestaurantProfile.AllowedDepartment = p.Settings.RestaurantProfile.AllowedDepartment
		p.Settings = settings
		return nil
	})
}

func (s *Store) SetPreferences(ctx context.Context, id string, prefs profile.UserPreferences) (*profile.TenantProfile, error) {
	return s.mutate(id, "set_preferences", func(p *profile.TenantProfile) error {
		p.Settings.RestaurantProfile.UserPreferences = prefs
		return nil
	})
}

func (s *Store) SetAllowedDepartment(ctx context.Context, id string, dept profile.Department) (*profile.TenantProfile, error) {
	if !profile.LockableDepartments[dept] {
		return nil, fmt.Errorf("%w: department %q cannot be locked", apperrors.ErrInvalidInput, dept)
	}
	return s.mutate(id, "set_department", func(p *profile.TenantProfile) error {
		stored := p.Settings.RestaurantProfile.AllowedDepartment
		switch stored {
		case profile.DepartmentNone:
			p.Settings.RestaurantProfile.AllowedDepartment = dept
			return nil
		case dept:
			return nil
		default:
			return apperrors.WrapConflict("set_department", id,
				fmt.Errorf("%w to %q", apperrors.ErrDepartmentLocked, stored))
		}
	})
}

func (s *Store) SetSubscription(ctx context.Context, id string, status profile.SubscriptionStatus, planType string, endDate *profile.DateOnly) (*profile.TenantProfile, error) {
	return s.mutate(id, "set_subscription", func(p *profile.TenantProfile) error {
		p.SubscriptionStatus = status
		p.Settings.RestaurantProfile.PlanType = planType
		p.Settings.RestaurantProfile.SubscriptionEndDate = endDate
		return nil
	})
}

func (s *Store) Subscribe(fn func(*profile.TenantProfile)) func() {
	return s.notifier.Subscribe(fn)
}

func (s *Store) Close() error { return nil }

func (s *Store) mutate(id, op string, fn func(*profile.TenantProfile) error) (*profile.TenantProfile, error) {
	if s.FailWrites {
		return nil, apperrors.WrapConnectionError(op, id, apperrors.ErrConnectionFailed)
	}

	s.mu.Lock()
	p, ok := s.profiles[id]
	if !ok {
		s.mu.Unlock()
		return nil, apperrors.WrapNotFound(op, id)
	}
	if err := fn(p); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	p.UpdatedAt = time.Now()
	clone := p.Clone()
	s.mu.Unlock()

	s.notifier.Notify(clone)
	return clone.Clone(), nil
}
