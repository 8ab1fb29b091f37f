package client_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/inmapper/authkit/pkg/api"
	"github.com/inmapper/authkit/pkg/authtest"
	"github.com/inmapper/authkit/pkg/client"
)

// countingHandler tracks request counts per path, so tests can assert
// how many validation round trips an operation cost.
type countingHandler struct {
	next http.Handler

	mu     sync.Mutex
	counts map[string]int
}

func newCountingHandler(next http.Handler) *countingHandler {
	return &countingHandler{next: next, counts: make(map[string]int)}
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.counts[r.URL.Path]++
	h.mu.Unlock()
	h.next.ServeHTTP(w, r)
}

func (h *countingHandler) count(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[path]
}

type env struct {
	auth    *authtest.Server
	counter *countingHandler
	server  *httptest.Server
}

func setupEnv(t *testing.T) *env {
	t.Helper()

	auth, err := authtest.New()
	if err != nil {
		t.Fatalf("failed to start auth server: %v", err)
	}
	counter := newCountingHandler(auth.Router())
	server := httptest.NewServer(counter)

	t.Cleanup(func() {
		server.Close()
		_ = auth.Close()
	})
	return &env{auth: auth, counter: counter, server: server}
}

func (e *env) seed(t *testing.T, user api.User) string {
	t.Helper()
	if _, err := e.auth.Seed(user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	token, err := e.auth.IssueToken(user.Email)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func alice() api.User {
	return api.User{
		Email:      "alice@example.com",
		Name:       "Alice",
		IsVerified: true,
		Permissions: []api.Permission{
			{Resource: "billing", CanAccess: true},
			{Resource: "reports", CanAccess: false},
		},
	}
}

func TestCallbackTokenInterception(t *testing.T) {
	t.Parallel()
	e := setupEnv(t)
	token := e.seed(t, alice())

	nav := client.NewMemoryNavigator(
		fmt.Sprintf("https://app.example.com/map?foo=1&token=%s&bar=2", token))
	store := client.NewMemoryStore()

	c := client.New(client.Config{
		APIURL: e.server.URL,
		Store:  store,
		Nav:    nav,
	})

	// any public operation runs the one-shot interception
	if got := c.Token(); got != token {
		t.Fatalf("Token() = %q, want adopted %q", got, token)
	}

	stored, _ := store.Get(client.DefaultTokenKey)
	if stored != token {
		t.Errorf("store token = %q, want %q", stored, token)
	}

	want := "https://app.example.com/map?foo=1&bar=2"
	if got := nav.CurrentURL(); got != want {
		t.Errorf("visible url = %q, want %q", got, want)
	}
}

func TestGetUser_InvalidTokenClearsSession(t *testing.T) {
	t.Parallel()
	e := setupEnv(t)

	store := client.NewMemoryStore()
	c := client.New(client.Config{APIURL: e.server.URL, Store: store})
	c.SetToken("bogus")

	user, err := c.GetUser(context.Background())
	if err != nil {
		t.Fatalf("GetUser returned error for invalid token: %v", err)
	}
	if user != nil {
		t.Fatalf("GetUser = %+v, want nil for invalid token", user)
	}

	if got := c.Token(); got != "" {
		t.Errorf("token not cleared after invalid verdict: %q", got)
	}
	if stored, _ := store.Get(client.DefaultTokenKey); stored != "" {
		t.Errorf("store token not cleared: %q", stored)
	}
}

func TestGetUser_NoToken(t *testing.T) {
	t.Parallel()
	e := setupEnv(t)

	c := client.New(client.Config{APIURL: e.server.URL})
	user, err := c.GetUser(context.Background())
	if err != nil || user != nil {
		t.Fatalf("GetUser with no token = (%+v, %v), want (nil, nil)", user, err)
	}
	if e.counter.count("/auth/validate") != 0 {
		t.Error("GetUser with no token should not hit the network")
	}
}

func TestProtect_IdempotentValidation(t *testing.T) {
	t.Parallel()
	e := setupEnv(t)
	token := e.seed(t, alice())

	c := client.New(client.Config{
		APIURL:              e.server.URL,
		DisableAutoRedirect: true,
	})
	c.SetToken(token)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		user, err := c.Protect(ctx)
		if err != nil || user == nil {
			t.Fatalf("Protect #%d = (%+v, %v), want user", i+1, user, err)
		}
	}

	if got := e.counter.count("/auth/validate"); got != 1 {
		t.Errorf("two Protect calls issued %d validations, want 1", got)
	}
}

func TestHasPermission_NeverCached(t *testing.T) {
	t.Parallel()
	e := setupEnv(t)
	token := e.seed(t, alice())

	c := client.New(client.Config{APIURL: e.server.URL})
	c.SetToken(token)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		granted, err := c.HasPermission(ctx, "billing")
		if err != nil {
			t.Fatalf("HasPermission failed: %v", err)
		}
		if !granted {
			t.Fatalf("HasPermission(billing) = false, want true")
		}
	}

	if got := e.counter.count("/auth/validate"); got != 2 {
		t.Errorf("two HasPermission calls issued %d validations, want 2", got)
	}
}

func TestHasPermission_DeniedEntry(t *testing.T) {
	t.Parallel()
	e := setupEnv(t)
	token := e.seed(t, alice())

	c := client.New(client.Config{APIURL: e.server.URL})
	c.SetToken(token)

	granted, err := c.HasPermission(context.Background(), "reports")
	if err != nil {
		t.Fatalf("HasPermission failed: %v", err)
	}
	if granted {
		t.Error("HasPermission(reports) = true, want false for canAccess=false entry")
	}
}

func TestAdminImplicitAccess(t *testing.T) {
	t.Parallel()
	e := setupEnv(t)
	token := e.seed(t, api.User{
		Email:      "root@example.com",
		Name:       "Root",
		IsVerified: true,
		IsAdmin:    true,
	})

	c := client.New(client.Config{APIURL: e.server.URL})
	c.SetToken(token)

	granted, err := c.HasPermission(context.Background(), "anything-at-all")
	if err != nil || !granted {
		t.Fatalf("admin HasPermission = (%t, %v), want true", granted, err)
	}
}

func TestProtect_AccessDeniedDoesNotRedirect(t *testing.T) {
	t.Parallel()
	e := setupEnv(t)
	token := e.seed(t, alice())

	nav := client.NewMemoryNavigator("https://app.example.com/admin")
	var deniedResource string
	c := client.New(client.Config{
		APIURL:   e.server.URL,
		LoginURL: "https://login.example.com",
		Nav:      nav,
		OnAccessDenied: func(resource string, user *api.User) {
			deniedResource = resource
		},
	})
	c.SetToken(token)

	// authenticated, but no 'admin' permission entry
	user, err := c.Protect(context.Background(), "admin")
	if !errors.Is(err, client.ErrAccessDenied) {
		t.Fatalf("Protect err = %v, want ErrAccessDenied", err)
	}
	if user != nil {
		t.Errorf("Protect = %+v, want nil", user)
	}
	if deniedResource != "admin" {
		t.Errorf("OnAccessDenied resource = %q, want admin", deniedResource)
	}
	if history := nav.History(); len(history) != 0 {
		t.Errorf("denial must not redirect, but navigated: %v", history)
	}
}

func TestProtect_UnauthenticatedRedirectsToLogin(t *testing.T) {
	t.Parallel()
	e := setupEnv(t)

	nav := client.NewMemoryNavigator("https://app.example.com/map?floor=2")
	hookRan := false
	c := client.New(client.Config{
		APIURL:         e.server.URL,
		LoginURL:       "https://login.example.com",
		Nav:            nav,
		OnAuthRequired: func() { hookRan = true },
	})

	_, err := c.Protect(context.Background())
	if !errors.Is(err, client.ErrAuthRequired) {
		t.Fatalf("Protect err = %v, want ErrAuthRequired", err)
	}
	if !hookRan {
		t.Error("OnAuthRequired hook did not run")
	}

	want := client.BuildLoginURL("https://login.example.com", "https://app.example.com/map?floor=2")
	if got := nav.CurrentURL(); got != want {
		t.Errorf("redirected to %q, want %q", got, want)
	}
}

func TestProtect_AutoRedirectDisabled(t *testing.T) {
	t.Parallel()
	e := setupEnv(t)

	nav := client.NewMemoryNavigator("https://app.example.com/map")
	c := client.New(client.Config{
		APIURL:              e.server.URL,
		LoginURL:            "https://login.example.com",
		Nav:                 nav,
		DisableAutoRedirect: true,
	})

	_, err := c.Protect(context.Background())
	if !errors.Is(err, client.ErrAuthRequired) {
		t.Fatalf("Protect err = %v, want ErrAuthRequired", err)
	}
	if got := nav.CurrentURL(); got != "https://app.example.com/map" {
		t.Errorf("navigated to %q with auto-redirect disabled", got)
	}
}

func TestProtect_DefaultResourceFromConfig(t *testing.T) {
	t.Parallel()
	e := setupEnv(t)
	token := e.seed(t, alice())

	c := client.New(client.Config{
		APIURL:              e.server.URL,
		ResourceID:          "billing",
		DisableAutoRedirect: true,
	})
	c.SetToken(token)

	user, err := c.Protect(context.Background())
	if err != nil || user == nil {
		t.Fatalf("Protect with configured resource = (%+v, %v), want user", user, err)
	}
}

func TestTransportFailureKeepsSession(t *testing.T) {
	t.Parallel()

	var hookErr error
	// a closed port: every call fails at the transport
	c := client.New(client.Config{
		APIURL:      "http://127.0.0.1:1",
		OnAuthError: func(err error) { hookErr = err },
	})
	c.SetToken("still-maybe-valid")

	user, err := c.GetUser(context.Background())
	if user != nil {
		t.Fatalf("GetUser = %+v, want nil on transport failure", user)
	}
	if !errors.Is(err, client.ErrTransport) {
		t.Fatalf("GetUser err = %v, want ErrTransport", err)
	}
	if !errors.Is(hookErr, client.ErrTransport) {
		t.Errorf("OnAuthError got %v, want ErrTransport", hookErr)
	}

	// fail-safe: the session survives a network hiccup
	if got := c.Token(); got != "still-maybe-valid" {
		t.Errorf("token destroyed by transport failure: %q", got)
	}
}

func TestLogout_AlwaysClearsLocally(t *testing.T) {
	t.Parallel()

	store := client.NewMemoryStore()
	c := client.New(client.Config{
		APIURL: "http://127.0.0.1:1", // revocation call will fail
		Store:  store,
	})
	c.SetToken("doomed")

	if err := c.Logout(context.Background(), false); err != nil {
		t.Fatalf("Logout must succeed locally, got: %v", err)
	}
	if got := c.Token(); got != "" {
		t.Errorf("token survived logout: %q", got)
	}
	if stored, _ := store.Get(client.DefaultTokenKey); stored != "" {
		t.Errorf("store token survived logout: %q", stored)
	}
}

func TestLogout_RedirectsToLogin(t *testing.T) {
	t.Parallel()
	e := setupEnv(t)
	token := e.seed(t, alice())

	nav := client.NewMemoryNavigator("https://app.example.com/map")
	c := client.New(client.Config{
		APIURL:   e.server.URL,
		LoginURL: "https://login.example.com",
		Nav:      nav,
	})
	c.SetToken(token)

	if err := c.Logout(context.Background(), true); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if got := nav.CurrentURL(); got != "https://login.example.com" {
		t.Errorf("after logout at %q, want login origin", got)
	}

	// the revoked token is dead server-side
	result, err := api.New(e.server.URL, nil).Validate(context.Background(), token, "")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if result.Valid {
		t.Error("token still valid after logout")
	}
}

func TestRedirectTo(t *testing.T) {
	t.Parallel()
	e := setupEnv(t)

	t.Run("with token", func(t *testing.T) {
		nav := client.NewMemoryNavigator("https://a.example.com/")
		c := client.New(client.Config{APIURL: e.server.URL, Nav: nav})
		c.SetToken("tok")

		if err := c.RedirectTo("https://b.example.com/map?floor=1"); err != nil {
			t.Fatalf("RedirectTo failed: %v", err)
		}
		want := "https://b.example.com/map?floor=1&token=tok"
		if got := nav.CurrentURL(); got != want {
			t.Errorf("navigated to %q, want %q", got, want)
		}
	})

	t.Run("without token", func(t *testing.T) {
		nav := client.NewMemoryNavigator("https://a.example.com/")
		c := client.New(client.Config{APIURL: e.server.URL, Nav: nav})

		if err := c.RedirectTo("https://b.example.com/map"); err != nil {
			t.Fatalf("RedirectTo failed: %v", err)
		}
		if got := nav.CurrentURL(); got != "https://b.example.com/map" {
			t.Errorf("navigated to %q, want unmodified target", got)
		}
	})
}

func TestDo_MergesAuthorizationHeader(t *testing.T) {
	t.Parallel()

	var gotAuth, gotCustom string
	echo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCustom = r.Header.Get("X-Custom")
	}))
	t.Cleanup(echo.Close)

	c := client.New(client.Config{APIURL: echo.URL})
	c.SetToken("tok")

	req, err := http.NewRequest(http.MethodGet, echo.URL+"/data", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Custom", "kept")

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q, want Bearer tok", gotAuth)
	}
	if gotCustom != "kept" {
		t.Errorf("caller header lost: X-Custom = %q", gotCustom)
	}
}

func TestSessionSharedThroughStore(t *testing.T) {
	t.Parallel()
	e := setupEnv(t)
	token := e.seed(t, alice())

	store := client.NewMemoryStore()

	first := client.New(client.Config{APIURL: e.server.URL, Store: store})
	first.SetToken(token)
	if user, err := first.GetUser(context.Background()); err != nil || user == nil {
		t.Fatalf("first GetUser = (%+v, %v), want user", user, err)
	}
	validations := e.counter.count("/auth/validate")

	// a second client over the same store picks up token and cached user
	second := client.New(client.Config{APIURL: e.server.URL, Store: store})
	user, err := second.GetUser(context.Background())
	if err != nil || user == nil {
		t.Fatalf("second GetUser = (%+v, %v), want user", user, err)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("second client user = %q", user.Email)
	}
	if got := e.counter.count("/auth/validate"); got != validations {
		t.Errorf("second client revalidated (%d -> %d) despite cached user", validations, got)
	}
}

// errorStore fails every operation, simulating private-browsing or
// quota restrictions.
type errorStore struct{}

func (errorStore) Get(string) (string, error)  { return "", errors.New("storage unavailable") }
func (errorStore) Set(string, string) error    { return errors.New("storage unavailable") }
func (errorStore) Remove(string) error         { return errors.New("storage unavailable") }

func TestStorageDegradation(t *testing.T) {
	t.Parallel()
	e := setupEnv(t)
	token := e.seed(t, alice())

	var storageErrs int
	c := client.New(client.Config{
		APIURL:   e.server.URL,
		Store:    errorStore{},
		LogLevel: client.LogLevelNone,
		OnAuthError: func(err error) {
			if errors.Is(err, client.ErrStorage) {
				storageErrs++
			}
		},
	})
	c.SetToken(token)

	// the in-memory session stays fully functional
	user, err := c.GetUser(context.Background())
	if err != nil || user == nil {
		t.Fatalf("GetUser with degraded storage = (%+v, %v), want user", user, err)
	}
	if c.Token() != token {
		t.Error("in-memory token lost under storage degradation")
	}
	if storageErrs == 0 {
		t.Error("storage degradation was not reported")
	}
}

func TestInstanceMemoized(t *testing.T) {
	client.ResetInstances()
	t.Cleanup(client.ResetInstances)

	a := client.Instance("main", client.Config{APIURL: "http://127.0.0.1:1"})
	b := client.Instance("main", client.Config{APIURL: "http://127.0.0.1:2"})
	if a != b {
		t.Error("Instance with same key returned distinct clients")
	}

	c := client.Instance("other", client.Config{APIURL: "http://127.0.0.1:1"})
	if a == c {
		t.Error("Instance with distinct keys returned the same client")
	}
}
