// Package session keeps one tenant session's access decision current: a
// watchdog-bounded initial fetch, the store's push subscription, and a
// periodic re-evaluation tick all converge on the same evaluator so
// decisions never diverge between initial load and live update.
package session

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saporia/saporia/internal/entitlement"
	apperrors "github.com/saporia/saporia/internal/errors"
	"github.com/saporia/saporia/internal/metrics"
	"github.com/saporia/saporia/internal/profile"
)

// DefaultFetchTimeout bounds the initial profile fetch. Timing out resolves
// the loading state but the decision stays fail-closed: no profile, no
// access.
const DefaultFetchTimeout = 8 * time.Second

// DefaultReevalInterval is how often the decision is recomputed without any
// push, so wall-clock expiry is observed with no explicit event.
const DefaultReevalInterval = time.Minute

// Identity is an already-authenticated session identity.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Provider supplies the session identity. Authentication itself is out of
// scope; the provider is trusted.
type Provider interface {
	// CurrentIdentity returns the signed-in identity, or false when there
	// is no session.
	CurrentIdentity() (Identity, bool)

	// OnAuthChange registers a callback for sign-in/sign-out transitions
	// and returns an unsubscribe function.
	OnAuthChange(fn func(Identity, bool)) func()
}

// StaticProvider serves a fixed identity for server-side sessions whose
// identity is resolved once at connection time and never changes.
type StaticProvider struct {
	Identity Identity
}

func (p StaticProvider) CurrentIdentity() (Identity, bool) {
	return p.Identity, p.Identity.ID != ""
}

func (p StaticProvider) OnAuthChange(func(Identity, bool)) func() {
	return func() {}
}

// Monitor owns the live access decision for the current session.
type Monitor struct {
	store     profile.Store
	evaluator *entitlement.Evaluator
	provider  Provider

	// publish receives every fresh decision, typically the websocket hub.
	publish func(tenantID string, decision entitlement.Decision)

	fetchTimeout time.Duration
	interval     time.Duration
	nowFn        func() time.Time

	authChanged chan struct{}
	pushed      chan *profile.TenantProfile

	mu       sync.RWMutex
	identity Identity
	signedIn bool
	current  *profile.TenantProfile
	decision entitlement.Decision
	loaded   bool
}

// Options tune the monitor; zero values take defaults.
type Options struct {
	FetchTimeout   time.Duration
	ReevalInterval time.Duration
	Publish        func(tenantID string, decision entitlement.Decision)
}

// NewMonitor creates a monitor. Run must be called for it to start.
func NewMonitor(store profile.Store, evaluator *entitlement.Evaluator, provider Provider, opts Options) *Monitor {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.ReevalInterval <= 0 {
		opts.ReevalInterval = DefaultReevalInterval
	}
	return &Monitor{
		store:        store,
		evaluator:    evaluator,
		provider:     provider,
		publish:      opts.Publish,
		fetchTimeout: opts.FetchTimeout,
		interval:     opts.ReevalInterval,
		nowFn:        time.Now,
		authChanged:  make(chan struct{}, 1),
		pushed:       make(chan *profile.TenantProfile, 16),
	}
}

// Run establishes the session and keeps the decision fresh until ctx ends.
func (m *Monitor) Run(ctx context.Context) error {
	unsubAuth := m.provider.OnAuthChange(func(Identity, bool) {
		select {
		case m.authChanged <- struct{}{}:
		default:
		}
	})
	defer unsubAuth()

	unsubStore := m.store.Subscribe(func(p *profile.TenantProfile) {
		select {
		case m.pushed <- p:
		default:
			log.Warn().Str("tenant", p.ID).Msg("Profile push buffer full, dropping update")
		}
	})
	defer unsubStore()

	m.establish(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-m.authChanged:
			m.establish(ctx)

		case p := <-m.pushed:
			m.mu.RLock()
			relevant := m.signedIn && p != nil && p.ID == m.identity.ID
			m.mu.RUnlock()
			if relevant {
				m.mu.Lock()
				m.current = p
				m.mu.Unlock()
				m.refresh()
			}

		case <-ticker.C:
			// Same evaluator as the push path: the passage of wall-clock
			// time can move Active to Suspended(Expired) with no event.
			m.refresh()
		}
	}
}

// establish resolves the identity and performs the watchdog-bounded
// initial fetch.
func (m *Monitor) establish(ctx context.Context) {
	identity, ok := m.provider.CurrentIdentity()

	m.mu.Lock()
	m.identity = identity
	m.signedIn = ok
	m.current = nil
	m.mu.Unlock()

	if !ok {
		log.Debug().Msg("No session identity, decision is no-profile")
		m.refresh()
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	p, err := m.store.GetProfile(fetchCtx, identity.ID)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			metrics.ProfileFetchTimeouts.Inc()
			log.Warn().Str("tenant", identity.ID).Msg("Initial profile fetch hit watchdog timeout")
		} else if !stderrors.Is(err, apperrors.ErrNotFound) {
			log.Error().Err(err).Str("tenant", identity.ID).Msg("Initial profile fetch failed")
		}
		// Fail-closed: uncertainty denies access.
		m.refresh()
		return
	}

	m.mu.Lock()
	m.current = p
	m.mu.Unlock()
	m.refresh()
}

// refresh recomputes the decision from the latest profile snapshot. now is
// an explicit input on every call; the decision is never a stored state.
// The loaded flag flips here, so "loading resolved" always coincides with a
// real decision.
func (m *Monitor) refresh() {
	m.mu.Lock()
	p := m.current
	email := m.identity.Email
	if email == "" && p != nil {
		email = p.Email
	}
	tenantID := m.identity.ID
	decision := m.evaluator.Evaluate(p, m.nowFn(), email)
	changed := !decision.Equal(m.decision)
	m.decision = decision
	m.loaded = true
	m.mu.Unlock()

	metrics.Evaluations.WithLabelValues(string(decision.State), string(decision.Reason)).Inc()

	if changed && m.publish != nil && tenantID != "" {
		m.publish(tenantID, decision)
	}
}

// Current returns the latest access decision and whether the initial load
// has resolved.
func (m *Monitor) Current() (entitlement.Decision, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.decision, m.loaded
}

// Profile returns the latest profile snapshot, nil when none is loaded.
func (m *Monitor) Profile() *profile.TenantProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}
