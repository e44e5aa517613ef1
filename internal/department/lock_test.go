package department

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/saporia/saporia/internal/errors"
	"github.com/saporia/saporia/internal/profile"
	"github.com/saporia/saporia/internal/profile/memstore"
)

func seedTenant(t *testing.T, store *memstore.Store, plan string, locked profile.Department) *profile.TenantProfile {
	t.Helper()
	p, err := store.CreateProfile(context.Background(), "trattoria@example.com", profile.TenantSettings{
		RestaurantProfile: profile.RestaurantProfile{
			PlanType:          plan,
			AllowedDepartment: locked,
		},
	})
	require.NoError(t, err)
	return p
}

func TestRequest_PlanAndDepartmentApplicability(t *testing.T) {
	store := memstore.New()
	m := NewManager(store)

	tests := []struct {
		name string
		plan string
		dept profile.Department
		want Outcome
	}{
		{name: "basic_plan_restricted_department", plan: "Basic", dept: profile.DepartmentKitchen, want: OutcomeNeedsConfirmation},
		{name: "basic_substring_matches_case_insensitively", plan: "BASIC-monthly", dept: profile.DepartmentPub, want: OutcomeNeedsConfirmation},
		{name: "pro_plan_never_locks", plan: "Pro", dept: profile.DepartmentKitchen, want: OutcomeAllow},
		{name: "free_plan_never_locks", plan: "Free", dept: profile.DepartmentDelivery, want: OutcomeAllow},
		{name: "waiter_surface_always_allowed", plan: "Basic", dept: profile.DepartmentWaiter, want: OutcomeAllow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := seedTenant(t, memstore.New(), tt.plan, profile.DepartmentNone)
			got := m.Request(p, tt.dept)
			assert.Equal(t, tt.want, got.Outcome)
		})
	}
}

func TestRequest_NilProfileDenies(t *testing.T) {
	m := NewManager(memstore.New())
	got := m.Request(nil, profile.DepartmentKitchen)
	assert.Equal(t, OutcomeDeny, got.Outcome)
}

func TestConfirmThenRequest_WriteOnceFlow(t *testing.T) {
	store := memstore.New()
	m := NewManager(store)
	ctx := context.Background()

	p := seedTenant(t, store, "Basic", profile.DepartmentNone)

	// First entry needs confirmation.
	require.Equal(t, OutcomeNeedsConfirmation, m.Request(p, profile.DepartmentKitchen).Outcome)

	confirmed, err := m.Confirm(ctx, p, profile.DepartmentKitchen)
	require.NoError(t, err)
	require.Equal(t, profile.DepartmentKitchen, confirmed.Settings.RestaurantProfile.AllowedDepartment)

	// Locked department allows, any other denies and names the lock.
	assert.Equal(t, OutcomeAllow, m.Request(confirmed, profile.DepartmentKitchen).Outcome)

	denied := m.Request(confirmed, profile.DepartmentPub)
	assert.Equal(t, OutcomeDeny, denied.Outcome)
	assert.Equal(t, profile.DepartmentKitchen, denied.LockedDepartment)
}

func TestConfirm_ConcurrentRaceSecondLoses(t *testing.T) {
	store := memstore.New()
	m := NewManager(store)
	ctx := context.Background()

	p := seedTenant(t, store, "Basic", profile.DepartmentNone)

	// Two devices hold the same unlocked snapshot.
	first, err := m.Confirm(ctx, p, profile.DepartmentKitchen)
	require.NoError(t, err)

	_, err = m.Confirm(ctx, p, profile.DepartmentPub)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDepartmentLocked)

	// The stored lock is the winner's.
	reloaded, err := store.GetProfile(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, profile.DepartmentKitchen, reloaded.Settings.RestaurantProfile.AllowedDepartment)
}

func TestConfirm_SameDepartmentIsIdempotent(t *testing.T) {
	store := memstore.New()
	m := NewManager(store)
	ctx := context.Background()

	p := seedTenant(t, store, "Basic", profile.DepartmentNone)

	_, err := m.Confirm(ctx, p, profile.DepartmentDelivery)
	require.NoError(t, err)

	again, err := m.Confirm(ctx, p, profile.DepartmentDelivery)
	require.NoError(t, err)
	assert.Equal(t, profile.DepartmentDelivery, again.Settings.RestaurantProfile.AllowedDepartment)
}

func TestConfirm_FailedWriteSurfacesError(t *testing.T) {
	store := memstore.New()
	m := NewManager(store)
	ctx := context.Background()

	p := seedTenant(t, store, "Basic", profile.DepartmentNone)
	store.FailWrites = true

	_, err := m.Confirm(ctx, p, profile.DepartmentKitchen)
	require.Error(t, err)

	// No optimistic update: the store still has no lock after the failure.
	store.FailWrites = false
	reloaded, err := store.GetProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, profile.DepartmentNone, reloaded.Settings.RestaurantProfile.AllowedDepartment)
}

func TestConfirm_RejectsUnlockableDepartment(t *testing.T) {
	store := memstore.New()
	m := NewManager(store)

	p := seedTenant(t, store, "Basic", profile.DepartmentNone)

	_, err := m.Confirm(context.Background(), p, profile.DepartmentWaiter)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
