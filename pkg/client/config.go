package client

import (
	"log"
	"net/http"

	"github.com/inmapper/authkit/pkg/api"
)

type LogLevel int

const (
	// LogLevelDefault (the zero value) resolves to LogLevelError.
	LogLevelDefault LogLevel = iota
	LogLevelNone
	LogLevelError
	LogLevelInfo
	LogLevelDebug
)

// Default persisted-store keys for the token and the serialized user.
const (
	DefaultTokenKey = "inmapper_auth_token"
	DefaultUserKey  = "inmapper_auth_user"
)

// Config enumerates every recognized option of the session client.
// Zero values select the documented defaults; a supplied hook fully
// replaces the corresponding built-in behavior.
type Config struct {
	// APIURL is the base URL of the Auth API. Required.
	APIURL string

	// LoginURL is the shared login origin that runs the OTP flow.
	// Required for Login, Logout(redirect) and the Protect redirect.
	LoginURL string

	// TokenKey and UserKey name the two persisted store slots.
	// Defaults: DefaultTokenKey, DefaultUserKey.
	TokenKey string
	UserKey  string

	// DisableAutoRedirect stops Protect from redirecting to the login
	// origin when unauthenticated. Redirect is on by default.
	DisableAutoRedirect bool

	// ResourceID is the default resource Protect checks when its
	// caller names none. Empty means plain authentication gating.
	ResourceID string

	// OnAuthRequired runs when Protect finds no authenticated session,
	// before any redirect.
	OnAuthRequired func()

	// OnAuthSuccess runs after every successful server-side validation.
	OnAuthSuccess func(user *api.User)

	// OnAuthError runs on transport and storage failures. The session
	// is left intact when it fires.
	OnAuthError func(err error)

	// OnAccessDenied replaces RenderDenied for the
	// authenticated-but-unauthorized case.
	OnAccessDenied func(resource string, user *api.User)

	// RenderDenied is the pluggable denial view. The default logs the
	// denial; web consumers substitute their own rendering.
	RenderDenied func(resource string, user *api.User)

	// Store persists the session across runs. Default: MemoryStore.
	Store Store

	// Nav is the navigation capability of the embedding context.
	// Default: a MemoryNavigator with no location.
	Nav Navigator

	// HTTPClient underlies all Auth API calls and authenticated
	// fetches. Default: http.DefaultClient.
	HTTPClient *http.Client

	// LogLevel controls client logging. Default: LogLevelError.
	LogLevel LogLevel
}

// withDefaults returns cfg with every unset field replaced by its
// documented default. Shallow merge; cfg itself is not modified.
func (cfg Config) withDefaults() Config {
	if cfg.TokenKey == "" {
		cfg.TokenKey = DefaultTokenKey
	}
	if cfg.UserKey == "" {
		cfg.UserKey = DefaultUserKey
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Nav == nil {
		cfg.Nav = NewMemoryNavigator("")
	}
	if cfg.LogLevel == LogLevelDefault {
		cfg.LogLevel = LogLevelError
	}
	if cfg.RenderDenied == nil {
		cfg.RenderDenied = func(resource string, user *api.User) {
			log.Printf("access denied: resource %q\n", resource)
		}
	}
	return cfg
}
