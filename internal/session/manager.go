// Package session owns the authenticated identity and the token lifecycle.
//
// The manager is a small state machine: Unknown until start-up hydration
// resolves, then Authenticated or Anonymous. Authenticated falls back to
// Anonymous on logout or when the API rejects the current token; Anonymous
// only becomes Authenticated through login or registration.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"postraft-facade/internal/client"
	"postraft-facade/internal/domain"
	"postraft-facade/internal/navigation"
	"postraft-facade/internal/tokenstore"
	"postraft-facade/internal/validation"
)

var (
	// ErrSubmissionInProgress is returned when a login or registration is
	// submitted while another one is still in flight.
	ErrSubmissionInProgress = errors.New("a sign-in is already in progress")
	// ErrNotAuthenticated is returned by Refresh when there is no token.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrMalformedResponse is returned when the API answers without a token or user.
	ErrMalformedResponse = errors.New("malformed authentication response")
)

// API is the part of the API client the manager uses.
type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

// Cache is the resource cache as seen by the session: user data is dropped
// on sign-out and mounted views are refetched after sign-in.
type Cache interface {
	Reset()
	RefetchObserved() int
}

// Options configures a Manager. API and Store are required.
type Options struct {
	API       API
	Store     tokenstore.Store
	Cache     Cache
	Navigator navigation.Navigator
	Logger    *slog.Logger
	// OnTransition is called under the state lock and must not call back
	// into the Manager.
	OnTransition func(from, to domain.SessionState)
}

type authResponse struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

type profileResponse struct {
	User *domain.User `json:"user"`
	Plan *domain.Plan `json:"plan"`
}

// Manager is safe for concurrent use.
type Manager struct {
	api          API
	store        tokenstore.Store
	cache        Cache
	nav          navigation.Navigator
	validate     *validation.Validator
	log          *slog.Logger
	onTransition func(from, to domain.SessionState)
	now          func() time.Time

	mu         sync.RWMutex
	state      domain.SessionState
	user       *domain.User
	plan       *domain.Plan
	token      string
	hydrating  bool
	submitting bool
	// epoch changes on every identity change so a profile response
	// requested under an older identity is dropped.
	epoch uint64

	ready     chan struct{}
	readyOnce sync.Once
}

// NewManager creates a manager in the Unknown state. Call Hydrate once at start-up.
func NewManager(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	nav := opts.Navigator
	if nav == nil {
		nav = navigation.ContextNavigator{Logger: log}
	}
	return &Manager{
		api:          opts.API,
		store:        opts.Store,
		cache:        opts.Cache,
		nav:          nav,
		validate:     validation.New(),
		log:          log.With("component", "session"),
		onTransition: opts.OnTransition,
		now:          time.Now,
		state:        domain.SessionUnknown,
		hydrating:    true,
		ready:        make(chan struct{}),
	}
}

// Token returns the current bearer token. It satisfies client.TokenSource.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() domain.Session {
	return domain.Session{
		State:   m.state,
		User:    m.user,
		Plan:    m.plan,
		Token:   m.token,
		Loading: m.hydrating || m.submitting,
	}
}

// State returns the current state machine position.
func (m *Manager) State() domain.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Ready is closed once start-up hydration has finished.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// WaitReady blocks until hydration has finished and returns the session.
func (m *Manager) WaitReady(ctx context.Context) (domain.Session, error) {
	select {
	case <-m.ready:
		return m.Snapshot(), nil
	case <-ctx.Done():
		return m.Snapshot(), ctx.Err()
	}
}

// Hydrate restores the session from the persisted token. A JWT whose exp is
// already past is discarded without asking the API. Hydrate always leaves
// the manager ready.
func (m *Manager) Hydrate(ctx context.Context) domain.Session {
	defer m.markReady()

	token, err := m.store.Load(ctx)
	if err != nil {
		m.log.WarnContext(ctx, "failed to load persisted token", "error", err)
		m.becomeAnonymous()
		return m.Snapshot()
	}
	if token == "" {
		m.becomeAnonymous()
		return m.Snapshot()
	}
	if m.expired(token) {
		m.log.InfoContext(ctx, "persisted token expired, discarding")
		m.clearStore(ctx)
		m.becomeAnonymous()
		return m.Snapshot()
	}

	m.mu.Lock()
	m.token = token
	epoch := m.epoch
	m.mu.Unlock()

	profile, err := m.fetchProfile(ctx)
	if err != nil {
		if domain.KindOf(err) == domain.KindAuth {
			m.log.InfoContext(ctx, "persisted token rejected")
			m.clearStore(ctx)
		} else {
			m.log.WarnContext(ctx, "session hydration failed", "error", err)
		}
		m.mu.Lock()
		if m.epoch == epoch {
			m.resetIdentityLocked()
			m.setStateLocked(domain.SessionAnonymous)
		}
		m.mu.Unlock()
		return m.Snapshot()
	}

	m.mu.Lock()
	if m.epoch == epoch && m.token == token {
		m.user = profile.User
		m.plan = profile.Plan
		m.setStateLocked(domain.SessionAuthenticated)
	}
	m.mu.Unlock()
	return m.Snapshot()
}

func (m *Manager) markReady() {
	m.mu.Lock()
	m.hydrating = false
	if m.state == domain.SessionUnknown {
		m.resetIdentityLocked()
		m.setStateLocked(domain.SessionAnonymous)
	}
	m.mu.Unlock()
	m.readyOnce.Do(func() { close(m.ready) })
}

// Login signs in, persists the token, refreshes the full profile and
// navigates to the dashboard. On failure the previous session is kept and
// nothing is persisted.
func (m *Manager) Login(ctx context.Context, in LoginInput) (domain.Session, error) {
	if err := m.validate.Validate(in); err != nil {
		return m.Snapshot(), err
	}
	return m.authenticate(ctx, "/auth/login", in)
}

// Register creates an account and signs in like Login. Form errors are
// reported before any request is made.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (domain.Session, error) {
	if err := m.validate.Validate(in); err != nil {
		return m.Snapshot(), err
	}
	return m.authenticate(ctx, "/auth/register", registerRequest{
		Email:    in.Email,
		Password: in.Password,
		UserName: in.UserName,
	})
}

func (m *Manager) authenticate(ctx context.Context, path string, body any) (domain.Session, error) {
	if err := m.beginSubmit(); err != nil {
		return m.Snapshot(), err
	}
	err := m.signIn(ctx, path, body)
	m.endSubmit()
	return m.Snapshot(), err
}

func (m *Manager) signIn(ctx context.Context, path string, body any) error {
	var resp authResponse
	if err := m.api.Post(client.WithoutAuth(ctx), path, body, &resp); err != nil {
		return err
	}
	if resp.Token == "" || resp.User == nil {
		return ErrMalformedResponse
	}
	// a caller giving up after the API answered must not leave the
	// token unpersisted while the session is Authenticated
	if err := m.store.Save(context.WithoutCancel(ctx), resp.Token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}

	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	m.token = resp.Token
	m.user = resp.User
	m.plan = nil
	m.setStateLocked(domain.SessionAuthenticated)
	m.mu.Unlock()

	if err := m.refreshProfile(ctx, epoch); err != nil {
		if domain.KindOf(err) == domain.KindAuth {
			return err
		}
		m.log.WarnContext(ctx, "profile refresh after sign-in failed", "error", err)
	}
	if m.cache != nil {
		if n := m.cache.RefetchObserved(); n > 0 {
			m.log.DebugContext(ctx, "refetching mounted views after sign-in", "count", n)
		}
	}

	m.nav.Navigate(ctx, navigation.PathDashboard)
	return nil
}

func (m *Manager) beginSubmit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitting {
		return ErrSubmissionInProgress
	}
	m.submitting = true
	return nil
}

func (m *Manager) endSubmit() {
	m.mu.Lock()
	m.submitting = false
	m.mu.Unlock()
}

// Refresh re-reads user and plan with the current token. A rejected token
// clears the session without navigating; the route guard decides what to show.
func (m *Manager) Refresh(ctx context.Context) (domain.Session, error) {
	m.mu.RLock()
	token, epoch := m.token, m.epoch
	m.mu.RUnlock()
	if token == "" {
		return m.Snapshot(), ErrNotAuthenticated
	}
	err := m.refreshProfile(ctx, epoch)
	return m.Snapshot(), err
}

func (m *Manager) refreshProfile(ctx context.Context, epoch uint64) error {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()

	profile, err := m.fetchProfile(ctx)
	if err != nil {
		if domain.KindOf(err) == domain.KindAuth {
			m.HandleUnauthorized(token)
		}
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch || m.token != token {
		return nil
	}
	m.user = profile.User
	m.plan = profile.Plan
	return nil
}

func (m *Manager) fetchProfile(ctx context.Context) (*profileResponse, error) {
	var profile profileResponse
	if err := m.api.Get(ctx, "/auth/me", nil, &profile); err != nil {
		return nil, err
	}
	if profile.User == nil {
		return nil, ErrMalformedResponse
	}
	return &profile, nil
}

// Logout forgets the token and identity, drops every cached resource and
// navigates to the login page. Calling it while signed out is a no-op apart
// from the navigation.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.epoch++
	m.resetIdentityLocked()
	m.setStateLocked(domain.SessionAnonymous)
	m.mu.Unlock()

	// the token must be gone even when the caller already gave up
	err := m.store.Clear(context.WithoutCancel(ctx))
	if err != nil {
		m.log.WarnContext(ctx, "failed to clear persisted token", "error", err)
	}
	if m.cache != nil {
		m.cache.Reset()
	}
	m.nav.Navigate(ctx, navigation.PathLogin)
	if err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// HandleUnauthorized is called by the API client when a request carrying
// token was answered with 401. A token that is no longer current is ignored.
func (m *Manager) HandleUnauthorized(token string) {
	m.mu.Lock()
	if token == "" || token != m.token {
		m.mu.Unlock()
		return
	}
	m.epoch++
	m.resetIdentityLocked()
	m.setStateLocked(domain.SessionAnonymous)
	m.mu.Unlock()

	m.log.Info("session rejected by the API, signing out")
	m.clearStore(context.Background())
	if m.cache != nil {
		m.cache.Reset()
	}
}

// ForgotPassword asks the API to email a reset link.
func (m *Manager) ForgotPassword(ctx context.Context, email string) error {
	if err := m.validate.Var("email", email, "required,email"); err != nil {
		return err
	}
	return m.api.Post(client.WithoutAuth(ctx), "/auth/forgot-password", map[string]string{"email": email}, nil)
}

// ResetPassword sets a new password with the token from the reset link.
func (m *Manager) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := m.validate.Validate(in); err != nil {
		return err
	}
	return m.api.Post(client.WithoutAuth(ctx), "/auth/reset-password", resetPasswordRequest{
		Token:    in.Token,
		Password: in.Password,
	}, nil)
}

func (m *Manager) becomeAnonymous() {
	m.mu.Lock()
	m.resetIdentityLocked()
	m.setStateLocked(domain.SessionAnonymous)
	m.mu.Unlock()
}

func (m *Manager) resetIdentityLocked() {
	m.token = ""
	m.user = nil
	m.plan = nil
}

func (m *Manager) setStateLocked(to domain.SessionState) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.log.Debug("session transition", "from", from.String(), "to", to.String())
	if m.onTransition != nil {
		m.onTransition(from, to)
	}
}

func (m *Manager) clearStore(ctx context.Context) {
	if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
		m.log.WarnContext(ctx, "failed to clear persisted token", "error", err)
	}
}

// expired reports whether token is a JWT whose exp has passed. Opaque
// tokens are left for the API to judge.
func (m *Manager) expired(token string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.After(m.now())
}
