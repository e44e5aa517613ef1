package profile

import (
	"context"
	"sync"
)

// Store is the profile persistence contract. Mutators return the refreshed
// profile so callers never have to update local state optimistically; local
// views change only after the store has confirmed the write.
type Store interface {
	GetProfile(ctx context.Context, id string) (*TenantProfile, error)
	GetProfileByEmail(ctx context.Context, email string) (*TenantProfile, error)

	CreateProfile(ctx context.Context, email string, settings TenantSettings) (*TenantProfile, error)
	UpdateSettings(ctx context.Context, id string, settings TenantSettings) (*TenantProfile, error)
	SetPreferences(ctx context.Context, id string, prefs UserPreferences) (*TenantProfile, error)

	// SetAllowedDepartment is conditional: it succeeds only while the
	// stored department is unset. A concurrent confirmation that lost the
	// race gets errors.ErrDepartmentLocked instead of clobbering the lock.
	SetAllowedDepartment(ctx context.Context, id string, dept Department) (*TenantProfile, error)

	// SetSubscription is the admin-facing mutation of status, plan and end
	// date. A nil endDate clears the stored date.
	SetSubscription(ctx context.Context, id string, status SubscriptionStatus, planType string, endDate *DateOnly) (*TenantProfile, error)

	// Subscribe registers a change listener invoked after every committed
	// profile write. The returned function unsubscribes.
	Subscribe(fn func(*TenantProfile)) func()

	Close() error
}

// ChangeNotifier is a minimal fan-out of committed profile changes, shared
// by store implementations and test doubles.
type ChangeNotifier struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func(*TenantProfile)
}

// Subscribe registers fn and returns an unsubscribe function.
func (n *ChangeNotifier) Subscribe(fn func(*TenantProfile)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.listeners == nil {
		n.listeners = make(map[int]func(*TenantProfile))
	}
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listeners, id)
	}
}

// Notify delivers a committed profile to every listener. Each listener gets
// its own clone.
func (n *ChangeNotifier) Notify(p *TenantProfile) {
	n.mu.Lock()
	fns := make([]func(*TenantProfile), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(p.Clone())
	}
}
