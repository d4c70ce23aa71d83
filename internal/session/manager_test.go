package session

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postraft-facade/internal/client"
	"postraft-facade/internal/domain"
	"postraft-facade/internal/navigation"
	"postraft-facade/internal/tokenstore"
)

const (
	validToken = "token-alice"
	userJSON   = `{"id":7,"user_name":"alice","email":"alice@example.com","plan_id":2}`
	planJSON   = `{"id":2,"name":"Pro","max_products":100,"max_templates":20,"monthly_generations":500,"features":{"bulk_upload":true}}`
)

// fakeAPI is a minimal Postraft auth backend.
type fakeAPI struct {
	meCalls   atomic.Int32
	loginGate chan struct{}

	mu     sync.Mutex
	bodies map[string][]byte
	auth   map[string]string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	f := &fakeAPI{bodies: map[string][]byte{}, auth: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.bodies[r.URL.Path] = body
	f.auth[r.URL.Path] = r.Header.Get("Authorization")
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/auth/login":
		if f.loginGate != nil {
			<-f.loginGate
		}
		var in map[string]string
		_ = json.Unmarshal(body, &in)
		if in["password"] != "correct-horse" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":"Invalid email or password"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"token":"` + validToken + `","user":` + userJSON + `}}`))
	case "/auth/register":
		_, _ = w.Write([]byte(`{"success":true,"data":{"token":"` + validToken + `","user":` + userJSON + `}}`))
	case "/auth/me":
		f.meCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+validToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":"Invalid token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"user":` + userJSON + `,"plan":` + planJSON + `}}`))
	case "/auth/forgot-password", "/auth/reset-password":
		_, _ = w.Write([]byte(`{"success":true,"message":"ok"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAPI) body(path string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out map[string]string
	_ = json.Unmarshal(f.bodies[path], &out)
	return out
}

func (f *fakeAPI) authHeader(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth[path]
}

type resetCounter struct {
	n       atomic.Int32
	refetch atomic.Int32
}

func (r *resetCounter) Reset() { r.n.Add(1) }

func (r *resetCounter) RefetchObserved() int {
	r.refetch.Add(1)
	return 0
}

type harness struct {
	api    *fakeAPI
	mgr    *Manager
	store  *tokenstore.Memory
	nav    *navigation.Recorder
	resets *resetCounter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	api, srv := newFakeAPI(t)
	c := client.New(client.Options{BaseURL: srv.URL, RequestTimeout: 2 * time.Second})
	h := &harness{
		api:    api,
		store:  tokenstore.NewMemory(),
		nav:    &navigation.Recorder{},
		resets: &resetCounter{},
	}
	h.mgr = NewManager(Options{
		API:       c,
		Store:     h.store,
		Cache:     h.resets,
		Navigator: h.nav,
	})
	c.SetTokenSource(h.mgr)
	c.OnUnauthorized(h.mgr.HandleUnauthorized)
	return h
}

func (h *harness) persisted(t *testing.T) string {
	t.Helper()
	tok, err := h.store.Load(context.Background())
	require.NoError(t, err)
	return tok
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestManager_StartsUnknownAndLoading(t *testing.T) {
	h := newHarness(t)

	s := h.mgr.Snapshot()

	assert.Equal(t, domain.SessionUnknown, s.State)
	assert.True(t, s.Loading)
	select {
	case <-h.mgr.Ready():
		t.Fatal("ready before hydration")
	default:
	}
}

func TestManager_HydrateWithoutToken(t *testing.T) {
	h := newHarness(t)

	s := h.mgr.Hydrate(context.Background())

	assert.Equal(t, domain.SessionAnonymous, s.State)
	assert.False(t, s.Loading)
	assert.Nil(t, s.User)
	assert.Equal(t, int32(0), h.api.meCalls.Load())
	_, err := h.mgr.WaitReady(context.Background())
	assert.NoError(t, err)
}

func TestManager_HydrateWithValidToken(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Save(context.Background(), validToken))

	s := h.mgr.Hydrate(context.Background())

	assert.Equal(t, domain.SessionAuthenticated, s.State)
	require.NotNil(t, s.User)
	assert.Equal(t, "alice", s.User.UserName)
	require.NotNil(t, s.Plan)
	assert.True(t, s.Plan.HasFeature("bulk_upload"))
	assert.Equal(t, validToken, h.mgr.Token())
	assert.Empty(t, h.nav.Paths(), "hydration never navigates")
}

func TestManager_HydrateWithRejectedToken(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Save(context.Background(), "revoked"))

	s := h.mgr.Hydrate(context.Background())

	assert.Equal(t, domain.SessionAnonymous, s.State)
	assert.Empty(t, s.Token)
	assert.Nil(t, s.User)
	assert.Empty(t, h.persisted(t))
}

func TestManager_HydrateDiscardsExpiredJWTWithoutNetwork(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Save(context.Background(), signedToken(t, time.Now().Add(-time.Hour))))

	s := h.mgr.Hydrate(context.Background())

	assert.Equal(t, domain.SessionAnonymous, s.State)
	assert.Equal(t, int32(0), h.api.meCalls.Load())
	assert.Empty(t, h.persisted(t))
}

func TestManager_ExpiredChecksOnlyJWTs(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.mgr.expired("opaque-token"))
	assert.False(t, h.mgr.expired(signedToken(t, time.Now().Add(time.Hour))))
	assert.True(t, h.mgr.expired(signedToken(t, time.Now().Add(-time.Minute))))
}

func TestManager_LoginSuccess(t *testing.T) {
	h := newHarness(t)
	h.mgr.Hydrate(context.Background())

	s, err := h.mgr.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "correct-horse"})

	require.NoError(t, err)
	assert.Equal(t, domain.SessionAuthenticated, s.State)
	assert.Equal(t, validToken, h.persisted(t))
	require.NotNil(t, s.Plan, "plan comes from the profile refresh")
	assert.Equal(t, "Pro", s.Plan.Name)
	assert.Equal(t, int32(1), h.api.meCalls.Load())
	assert.Equal(t, []string{navigation.PathDashboard}, h.nav.Paths())
	assert.Empty(t, h.api.authHeader("/auth/login"))
	assert.Equal(t, "Bearer "+validToken, h.api.authHeader("/auth/me"))
	assert.False(t, s.Loading)
}

func TestManager_LoginInvalidCredentials(t *testing.T) {
	h := newHarness(t)
	h.mgr.Hydrate(context.Background())

	s, err := h.mgr.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "wrong"})

	require.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, domain.SessionAnonymous, s.State)
	assert.Empty(t, h.persisted(t))
	assert.Empty(t, h.nav.Paths())
	assert.Equal(t, int32(0), h.api.meCalls.Load())
}

func TestManager_FailedReloginKeepsSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Save(context.Background(), validToken))
	h.mgr.Hydrate(context.Background())

	_, err := h.mgr.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "wrong"})

	require.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, domain.SessionAuthenticated, h.mgr.State())
	assert.Equal(t, validToken, h.persisted(t))
}

func TestManager_LoginValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.mgr.Login(context.Background(), LoginInput{Email: "not-an-email"})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "password")
	assert.Nil(t, h.api.body("/auth/login"))
}

func TestManager_DuplicateLoginRejected(t *testing.T) {
	h := newHarness(t)
	h.mgr.Hydrate(context.Background())
	h.api.loginGate = make(chan struct{})

	errc := make(chan error, 1)
	go func() {
		_, err := h.mgr.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "correct-horse"})
		errc <- err
	}()
	require.Eventually(t, func() bool { return h.mgr.Snapshot().Loading }, time.Second, time.Millisecond)

	_, err := h.mgr.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrSubmissionInProgress)

	close(h.api.loginGate)
	require.NoError(t, <-errc)
	assert.Equal(t, []string{navigation.PathDashboard}, h.nav.Paths())
}

func TestManager_RegisterValidatesBeforeNetwork(t *testing.T) {
	h := newHarness(t)

	_, err := h.mgr.Register(context.Background(), RegisterInput{
		UserName:        "a",
		Email:           "alice@example.com",
		Password:        "short",
		ConfirmPassword: "different",
	})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "user_name must be at least 2 characters long", verr.Fields["user_name"])
	assert.Equal(t, "password must be at least 8 characters long", verr.Fields["password"])
	assert.Equal(t, "passwords do not match", verr.Fields["confirm_password"])
	assert.Nil(t, h.api.body("/auth/register"))
}

func TestManager_RegisterSuccess(t *testing.T) {
	h := newHarness(t)
	h.mgr.Hydrate(context.Background())

	s, err := h.mgr.Register(context.Background(), RegisterInput{
		UserName:        "alice",
		Email:           "alice@example.com",
		Password:        "correct-horse",
		ConfirmPassword: "correct-horse",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.SessionAuthenticated, s.State)
	body := h.api.body("/auth/register")
	assert.Equal(t, "alice", body["user_name"])
	assert.NotContains(t, body, "confirm_password")
	assert.Equal(t, []string{navigation.PathDashboard}, h.nav.Paths())
}

func TestManager_LogoutIsIdempotent(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Save(context.Background(), validToken))
	h.mgr.Hydrate(context.Background())

	require.NoError(t, h.mgr.Logout(context.Background()))
	s := h.mgr.Snapshot()
	assert.Equal(t, domain.SessionAnonymous, s.State)
	assert.Nil(t, s.User)
	assert.Nil(t, s.Plan)
	assert.Empty(t, h.persisted(t))
	assert.Equal(t, int32(1), h.resets.n.Load())

	require.NoError(t, h.mgr.Logout(context.Background()))
	assert.Equal(t, domain.SessionAnonymous, h.mgr.State())
	assert.Equal(t, []string{navigation.PathLogin, navigation.PathLogin}, h.nav.Paths())
}

func TestManager_LogoutWithCancelledContextClearsPersistedToken(t *testing.T) {
	h := newHarness(t)
	store := tokenstore.NewFile(filepath.Join(t.TempDir(), "token"))
	h.mgr.store = store
	h.mgr.Hydrate(context.Background())
	_, err := h.mgr.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.mgr.Logout(ctx))

	tok, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tok)

	restarted := NewManager(Options{API: client.New(client.Options{BaseURL: "http://127.0.0.1:1"}), Store: store})
	assert.Equal(t, domain.SessionAnonymous, restarted.Hydrate(context.Background()).State)
}

func TestManager_SignInRefetchesMountedViews(t *testing.T) {
	h := newHarness(t)
	h.mgr.Hydrate(context.Background())

	_, err := h.mgr.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), h.resets.refetch.Load())
}

func TestManager_RefreshClearsSessionOn401(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Save(context.Background(), validToken))
	h.mgr.Hydrate(context.Background())

	h.mgr.mu.Lock()
	h.mgr.token = "rotated-elsewhere"
	h.mgr.mu.Unlock()

	_, err := h.mgr.Refresh(context.Background())

	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, domain.SessionAnonymous, h.mgr.State())
	assert.Empty(t, h.mgr.Token())
	assert.Empty(t, h.nav.Paths(), "refresh never navigates")
	assert.Equal(t, int32(1), h.resets.n.Load())
}

func TestManager_RefreshWithoutToken(t *testing.T) {
	h := newHarness(t)
	h.mgr.Hydrate(context.Background())

	_, err := h.mgr.Refresh(context.Background())

	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestManager_HandleUnauthorizedIgnoresStaleToken(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Save(context.Background(), validToken))
	h.mgr.Hydrate(context.Background())

	h.mgr.HandleUnauthorized("some-older-token")
	assert.Equal(t, domain.SessionAuthenticated, h.mgr.State())

	h.mgr.HandleUnauthorized(validToken)
	assert.Equal(t, domain.SessionAnonymous, h.mgr.State())
	assert.Empty(t, h.persisted(t))
}

func TestManager_OnTransition(t *testing.T) {
	_, srv := newFakeAPI(t)
	c := client.New(client.Options{BaseURL: srv.URL})
	var got []string
	mgr := NewManager(Options{
		API:       c,
		Store:     tokenstore.NewMemory(),
		Navigator: &navigation.Recorder{},
		OnTransition: func(from, to domain.SessionState) {
			got = append(got, from.String()+"->"+to.String())
		},
	})
	c.SetTokenSource(mgr)

	mgr.Hydrate(context.Background())
	_, err := mgr.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	require.NoError(t, mgr.Logout(context.Background()))

	assert.Equal(t, []string{
		"unknown->anonymous",
		"anonymous->authenticated",
		"authenticated->anonymous",
	}, got)
}

func TestManager_PasswordReset(t *testing.T) {
	h := newHarness(t)
	h.mgr.Hydrate(context.Background())

	require.NoError(t, h.mgr.ForgotPassword(context.Background(), "alice@example.com"))
	assert.Equal(t, "alice@example.com", h.api.body("/auth/forgot-password")["email"])

	err := h.mgr.ForgotPassword(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = h.mgr.ResetPassword(context.Background(), ResetPasswordInput{Token: "abc", Password: "new-password", ConfirmPassword: "other"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, h.mgr.ResetPassword(context.Background(), ResetPasswordInput{
		Token:           "abc",
		Password:        "new-password",
		ConfirmPassword: "new-password",
	}))
	body := h.api.body("/auth/reset-password")
	assert.Equal(t, "abc", body["token"])
	assert.Equal(t, "new-password", body["password"])
	assert.Equal(t, domain.SessionAnonymous, h.mgr.State(), "password reset never signs in")
}
