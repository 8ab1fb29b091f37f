package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/inmapper/authkit/pkg/api"
)

// AccessResult carries the outcome of a resource-scoped validation:
// the authenticated user together with the access flag for the named
// resource. Callers that need the flag must ask for it explicitly.
type AccessResult struct {
	User    *api.User
	Granted bool
}

// Client is the session manager. It owns the token lifecycle: capture
// from a callback URL, persistence, revalidation against the Auth API,
// permission-scoped checks, and cross-origin handoff.
//
// The zero Client is not usable; construct with New. A Client is safe
// for concurrent use.
type Client struct {
	cfg Config
	api *api.Client

	// one-shot startup: callback interception + store load. Memoized
	// so concurrent first callers share a single initialization.
	initOnce sync.Once
	initErr  error

	mu    sync.Mutex
	token string
	user  *api.User
}

// New builds a session client from cfg. Unset config fields take their
// documented defaults. Initialization (callback-token interception and
// the store load) is deferred to the first public operation and runs
// exactly once.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg: cfg,
		api: api.New(cfg.APIURL, cfg.HTTPClient),
	}
}

// API exposes the underlying Auth API protocol client.
func (c *Client) API() *api.Client { return c.api }

func (c *Client) logf(level LogLevel, format string, v ...any) {
	if level > LogLevelNone && c.cfg.LogLevel >= level {
		log.Printf(format, v...)
	}
}

// ensureInit runs the one-time startup sequence: consume a token from
// the current URL if one is present, otherwise load the persisted
// session. Subsequent calls return the memoized result.
func (c *Client) ensureInit() error {
	c.initOnce.Do(func() {
		c.initErr = c.initialize()
	})
	return c.initErr
}

func (c *Client) initialize() error {
	if adopted := c.consumeCallbackToken(); adopted {
		return nil
	}
	c.loadFromStore()
	return nil
}

// consumeCallbackToken is the terminal step of the redirect protocol:
// a token arriving as a URL parameter becomes the active session
// token, and the visible URL is rewritten without it.
func (c *Client) consumeCallbackToken() bool {
	rawurl := c.cfg.Nav.CurrentURL()
	if rawurl == "" {
		return false
	}
	token, stripped, found := extractTokenParam(rawurl)
	if !found || token == "" {
		return false
	}

	c.logf(LogLevelDebug, "adopted token from callback url\n")
	c.mu.Lock()
	c.token = token
	c.user = nil
	c.mu.Unlock()

	c.persistToken(token)
	c.removeStored(c.cfg.UserKey)

	if err := c.cfg.Nav.ReplaceURL(stripped); err != nil {
		c.logf(LogLevelError, "couldn't rewrite url after token capture: %v\n", err)
	}
	return true
}

func (c *Client) loadFromStore() {
	token, err := c.cfg.Store.Get(c.cfg.TokenKey)
	if err != nil {
		c.storageError(err)
		return
	}
	if token == "" {
		return
	}

	var user *api.User
	if serialized, err := c.cfg.Store.Get(c.cfg.UserKey); err != nil {
		c.storageError(err)
	} else if serialized != "" {
		user = &api.User{}
		if err := json.Unmarshal([]byte(serialized), user); err != nil {
			c.logf(LogLevelError, "couldn't parse stored user, discarding: %v\n", err)
			user = nil
		}
	}

	c.mu.Lock()
	c.token = token
	c.user = user
	c.mu.Unlock()
}

// Token returns the active session token, or "" when there is none.
func (c *Client) Token() string {
	if err := c.ensureInit(); err != nil {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetToken adopts token as the active session, persisting it and
// invalidating any cached user. An empty token clears the session.
func (c *Client) SetToken(token string) {
	if err := c.ensureInit(); err != nil {
		return
	}
	if token == "" {
		c.clearAuth()
		return
	}

	c.mu.Lock()
	c.token = token
	c.user = nil
	c.mu.Unlock()

	c.persistToken(token)
	c.removeStored(c.cfg.UserKey)
}

// SetSession installs a freshly issued token and user, as returned by
// OTP verification.
func (c *Client) SetSession(token string, user *api.User) {
	if err := c.ensureInit(); err != nil {
		return
	}

	c.mu.Lock()
	c.token = token
	c.user = user
	c.mu.Unlock()

	c.persistToken(token)
	c.persistUser(user)
}

// GetUser returns the session's user. With no token it returns
// (nil, nil). A cached user is returned without a network call; an
// uncached one is fetched by validating the token against the Auth
// API. An explicit invalid verdict clears the session and yields
// (nil, nil); a transport failure leaves the session intact and
// returns the error.
func (c *Client) GetUser(ctx context.Context) (*api.User, error) {
	if err := c.ensureInit(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	token, user := c.token, c.user
	c.mu.Unlock()

	if token == "" {
		return nil, nil
	}
	if user != nil {
		return user, nil
	}
	return c.revalidate(ctx)
}

// RefreshUser forces a server-side validation, bypassing any cached
// user.
func (c *Client) RefreshUser(ctx context.Context) (*api.User, error) {
	if err := c.ensureInit(); err != nil {
		return nil, err
	}
	return c.revalidate(ctx)
}

func (c *Client) revalidate(ctx context.Context) (*api.User, error) {
	result, err := c.validate(ctx, "")
	if err != nil || result == nil {
		return nil, err
	}
	return result.User, nil
}

// validate performs one round trip against the Auth API and applies
// the session consequences: a valid verdict refreshes and persists the
// cached user, an invalid verdict destroys the session, and a
// transport failure changes nothing. A nil result with nil error means
// the token was absent or explicitly invalid.
func (c *Client) validate(ctx context.Context, resource string) (*api.ValidationResult, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		return nil, nil
	}

	result, err := c.api.Validate(ctx, token, resource)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrTransport, err)
		c.logf(LogLevelError, "validate failed: %v\n", err)
		if c.cfg.OnAuthError != nil {
			c.cfg.OnAuthError(wrapped)
		}
		return nil, wrapped
	}

	if !result.Valid {
		c.logf(LogLevelInfo, "token rejected by auth api, clearing session\n")
		c.clearAuth()
		return nil, nil
	}

	c.mu.Lock()
	// a token swap during the round trip invalidates this result
	stale := c.token != token
	if !stale {
		c.user = result.User
	}
	c.mu.Unlock()
	if stale {
		return nil, nil
	}

	c.persistUser(result.User)
	if c.cfg.OnAuthSuccess != nil {
		c.cfg.OnAuthSuccess(result.User)
	}
	return result, nil
}

// IsAuthenticated reports whether the session resolves to a user.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	user, err := c.GetUser(ctx)
	return err == nil && user != nil
}

// CheckAccess validates the session scoped to resource in a single
// round trip, returning the user together with the access flag. It
// never serves from the cache.
func (c *Client) CheckAccess(ctx context.Context, resource string) (*AccessResult, error) {
	if err := c.ensureInit(); err != nil {
		return nil, err
	}

	result, err := c.validate(ctx, resource)
	if err != nil || result == nil {
		return nil, err
	}

	granted := result.HasResourceAccess != nil && *result.HasResourceAccess
	return &AccessResult{User: result.User, Granted: granted}, nil
}

// HasPermission reports whether the session may access resource.
// Permission state can change server-side between calls, so this
// always issues a fresh validation.
func (c *Client) HasPermission(ctx context.Context, resource string) (bool, error) {
	access, err := c.CheckAccess(ctx, resource)
	if err != nil || access == nil {
		return false, err
	}
	return access.Granted, nil
}

// Protect is the gating primitive for a page-level resource. The
// effective resource is the argument when given, else the configured
// default, else plain authentication.
//
// Unauthenticated: the OnAuthRequired hook runs, then the client
// redirects to the login origin (unless DisableAutoRedirect) and
// ErrAuthRequired is returned. Authenticated but not authorized: the
// denial path runs (OnAccessDenied if set, else RenderDenied) and
// ErrAccessDenied is returned, never a login redirect; the two
// failure modes must not collapse into one.
func (c *Client) Protect(ctx context.Context, resource ...string) (*api.User, error) {
	if err := c.ensureInit(); err != nil {
		return nil, err
	}

	effective := c.cfg.ResourceID
	if len(resource) > 0 && resource[0] != "" {
		effective = resource[0]
	}

	if effective == "" {
		user, err := c.GetUser(ctx)
		if err != nil || user == nil {
			return nil, c.authRequired()
		}
		return user, nil
	}

	access, err := c.CheckAccess(ctx, effective)
	if err != nil || access == nil {
		return nil, c.authRequired()
	}
	if !access.Granted {
		if c.cfg.OnAccessDenied != nil {
			c.cfg.OnAccessDenied(effective, access.User)
		} else {
			c.cfg.RenderDenied(effective, access.User)
		}
		return nil, ErrAccessDenied
	}
	return access.User, nil
}

func (c *Client) authRequired() error {
	if c.cfg.OnAuthRequired != nil {
		c.cfg.OnAuthRequired()
	}
	if !c.cfg.DisableAutoRedirect {
		if err := c.Login(); err != nil {
			c.logf(LogLevelError, "login redirect failed: %v\n", err)
		}
	}
	return ErrAuthRequired
}

// Login navigates to the login origin, passing the URL to return to as
// the callback parameter. With no argument the current URL is used.
func (c *Client) Login(callbackURL ...string) error {
	if err := c.ensureInit(); err != nil {
		return err
	}
	if c.cfg.LoginURL == "" {
		return ErrNoLoginURL
	}

	callback := c.cfg.Nav.CurrentURL()
	if len(callbackURL) > 0 && callbackURL[0] != "" {
		callback = callbackURL[0]
	}
	return c.cfg.Nav.Navigate(BuildLoginURL(c.cfg.LoginURL, callback))
}

// Logout revokes the token server-side on a best-effort basis, then
// unconditionally clears the local session. Revocation failures are
// logged, never fatal: logout always succeeds locally. With redirect
// set, the client then navigates to the login origin.
func (c *Client) Logout(ctx context.Context, redirect bool) error {
	if err := c.ensureInit(); err != nil {
		return err
	}

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token != "" {
		if err := c.api.Logout(ctx, token); err != nil {
			c.logf(LogLevelError, "server-side logout failed: %v\n", err)
		}
	}
	c.clearAuth()

	if redirect {
		if c.cfg.LoginURL == "" {
			return ErrNoLoginURL
		}
		return c.cfg.Nav.Navigate(c.cfg.LoginURL)
	}
	return nil
}

// Do performs an authenticated request: the session token is merged
// into the caller's headers as a bearer Authorization header, leaving
// every other header untouched.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.ensureInit(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpClient := c.cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return httpClient.Do(req)
}

// RedirectTo hands the session off to another origin: the token rides
// along as a `token` query parameter. With no active token the
// navigation happens unmodified.
func (c *Client) RedirectTo(rawurl string) error {
	if err := c.ensureInit(); err != nil {
		return err
	}

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token == "" {
		return c.cfg.Nav.Navigate(rawurl)
	}
	return c.cfg.Nav.Navigate(AppendToken(rawurl, token))
}

// clearAuth destroys the session in memory and in the store.
func (c *Client) clearAuth() {
	c.mu.Lock()
	c.token = ""
	c.user = nil
	c.mu.Unlock()

	c.removeStored(c.cfg.TokenKey)
	c.removeStored(c.cfg.UserKey)
}

func (c *Client) persistToken(token string) {
	if err := c.cfg.Store.Set(c.cfg.TokenKey, token); err != nil {
		c.storageError(err)
	}
}

func (c *Client) persistUser(user *api.User) {
	if user == nil {
		c.removeStored(c.cfg.UserKey)
		return
	}
	serialized, err := json.Marshal(user)
	if err != nil {
		c.storageError(err)
		return
	}
	if err := c.cfg.Store.Set(c.cfg.UserKey, string(serialized)); err != nil {
		c.storageError(err)
	}
}

func (c *Client) removeStored(key string) {
	if err := c.cfg.Store.Remove(key); err != nil {
		c.storageError(err)
	}
}

// storageError reports store degradation. The in-memory session stays
// authoritative for the rest of the client's lifetime.
func (c *Client) storageError(err error) {
	wrapped := fmt.Errorf("%w: %v", ErrStorage, err)
	c.logf(LogLevelError, "%v\n", wrapped)
	if c.cfg.OnAuthError != nil {
		c.cfg.OnAuthError(wrapped)
	}
}
