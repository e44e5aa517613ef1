package sqlitestore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/saporia/saporia/internal/errors"
	"github.com/saporia/saporia/internal/profile"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	end := profile.NewDateOnly(time.Date(2026, 9, 30, 0, 0, 0, 0, time.Local))
	created, err := s.CreateProfile(ctx, "osteria@example.com", profile.TenantSettings{
		RestaurantProfile: profile.RestaurantProfile{
			PlanType:            "Basic mensile",
			SubscriptionEndDate: &end,
		},
		PrintOrders: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, profile.StatusActive, created.SubscriptionStatus)

	got, err := s.GetProfile(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "osteria@example.com", got.Email)
	assert.Equal(t, "Basic mensile", got.Settings.RestaurantProfile.PlanType)
	require.NotNil(t, got.Settings.RestaurantProfile.SubscriptionEndDate)
	assert.True(t, got.Settings.RestaurantProfile.SubscriptionEndDate.Equal(end.Time))
	assert.True(t, got.Settings.PrintOrders)
}

func TestGetProfileByEmail_CaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateProfile(ctx, "Osteria@Example.com", profile.TenantSettings{})
	require.NoError(t, err)

	got, err := s.GetProfileByEmail(ctx, "osteria@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestGetProfile_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetProfile(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCreateProfile_RejectsEmptyEmail(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateProfile(context.Background(), "  ", profile.TenantSettings{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCreateProfile_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateProfile(ctx, "dup@example.com", profile.TenantSettings{})
	require.NoError(t, err)

	_, err = s.CreateProfile(ctx, "DUP@example.com", profile.TenantSettings{})
	require.Error(t, err)
}

func TestSetAllowedDepartment_WriteOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateProfile(ctx, "lock@example.com", profile.TenantSettings{})
	require.NoError(t, err)

	// First confirmation wins.
	p, err := s.SetAllowedDepartment(ctx, created.ID, profile.DepartmentKitchen)
	require.NoError(t, err)
	assert.Equal(t, profile.DepartmentKitchen, p.Settings.RestaurantProfile.AllowedDepartment)

	// Re-confirming the same department is idempotent.
	p, err = s.SetAllowedDepartment(ctx, created.ID, profile.DepartmentKitchen)
	require.NoError(t, err)
	assert.Equal(t, profile.DepartmentKitchen, p.Settings.RestaurantProfile.AllowedDepartment)

	// A different department loses against the stored lock.
	_, err = s.SetAllowedDepartment(ctx, created.ID, profile.DepartmentPub)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDepartmentLocked)

	got, err := s.GetProfile(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, profile.DepartmentKitchen, got.Settings.RestaurantProfile.AllowedDepartment)
}

func TestSetAllowedDepartment_RejectsUnlockable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateProfile(ctx, "waiter@example.com", profile.TenantSettings{})
	require.NoError(t, err)

	_, err = s.SetAllowedDepartment(ctx, created.ID, profile.DepartmentWaiter)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSetAllowedDepartment_ConcurrentConfirmations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateProfile(ctx, "race@example.com", profile.TenantSettings{})
	require.NoError(t, err)

	depts := []profile.Department{profile.DepartmentKitchen, profile.DepartmentPizzeria, profile.DepartmentPub}
	results := make([]error, len(depts))
	var wg sync.WaitGroup
	for i, dept := range depts {
		wg.Add(1)
		go func(i int, dept profile.Department) {
			defer wg.Done()
			_, results[i] = s.SetAllowedDepartment(ctx, created.ID, dept)
		}(i, dept)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, apperrors.ErrDepartmentLocked)
		}
	}
	assert.Equal(t, 1, wins, "exactly one confirmation may take the lock")
}

func TestUpdateSettings_CannotChangeDepartment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateProfile(ctx, "immutable@example.com", profile.TenantSettings{})
	require.NoError(t, err)

	_, err = s.SetAllowedDepartment(ctx, created.ID, profile.DepartmentPizzeria)
	require.NoError(t, err)

	// A settings write that smuggles in a different department must not
	// move the lock.
	tampered := created.Settings
	tampered.RestaurantProfile.AllowedDepartment = profile.DepartmentPub
	tampered.PrintOrders = true

	updated, err := s.UpdateSettings(ctx, created.ID, tampered)
	require.NoError(t, err)
	assert.Equal(t, profile.DepartmentPizzeria, updated.Settings.RestaurantProfile.AllowedDepartment)
	assert.True(t, updated.Settings.PrintOrders)
}

func TestSetPreferences_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateProfile(ctx, "prefs@example.com", profile.TenantSettings{})
	require.NoError(t, err)

	updated, err := s.SetPreferences(ctx, created.ID, profile.UserPreferences{
		TermsAccepted:        true,
		DontShowWelcomeAgain: true,
	})
	require.NoError(t, err)
	assert.True(t, updated.Settings.RestaurantProfile.UserPreferences.TermsAccepted)
	assert.True(t, updated.Settings.RestaurantProfile.UserPreferences.DontShowWelcomeAgain)
}

func TestSetSubscription(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateProfile(ctx, "sub@example.com", profile.TenantSettings{})
	require.NoError(t, err)

	end := profile.NewDateOnly(time.Date(2026, 12, 31, 0, 0, 0, 0, time.Local))
	updated, err := s.SetSubscription(ctx, created.ID, profile.StatusSuspended, "Pro", &end)
	require.NoError(t, err)
	assert.Equal(t, profile.StatusSuspended, updated.SubscriptionStatus)
	assert.Equal(t, "Pro", updated.Settings.RestaurantProfile.PlanType)
	require.NotNil(t, updated.Settings.RestaurantProfile.SubscriptionEndDate)
	assert.True(t, updated.Settings.RestaurantProfile.SubscriptionEndDate.Equal(end.Time))
}

func TestSubscribe_NotifiesOnWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []*profile.TenantProfile
	unsub := s.Subscribe(func(p *profile.TenantProfile) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	})
	defer unsub()

	created, err := s.CreateProfile(ctx, "notify@example.com", profile.TenantSettings{})
	require.NoError(t, err)
	_, err = s.SetAllowedDepartment(ctx, created.ID, profile.DepartmentDelivery)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, created.ID, seen[1].ID)
	assert.Equal(t, profile.DepartmentDelivery, seen[1].Settings.RestaurantProfile.AllowedDepartment)
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(dir)
	require.NoError(t, err)
	created, err := s.CreateProfile(ctx, "persist@example.com", profile.TenantSettings{
		RestaurantProfile: profile.RestaurantProfile{PlanType: "Demo"},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := New(dir)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetProfile(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Demo", got.Settings.RestaurantProfile.PlanType)
}
