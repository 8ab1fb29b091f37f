package client

import (
	"context"
	"net/http"

	"github.com/inmapper/authkit/pkg/api"
)

// Session is the public contract of the session manager. Consuming
// projects should depend on this interface rather than *Client to
// enable testing with mock implementations.
type Session interface {
	GetUser(ctx context.Context) (*api.User, error)
	RefreshUser(ctx context.Context) (*api.User, error)
	IsAuthenticated(ctx context.Context) bool
	CheckAccess(ctx context.Context, resource string) (*AccessResult, error)
	HasPermission(ctx context.Context, resource string) (bool, error)
	Protect(ctx context.Context, resource ...string) (*api.User, error)
	Login(callbackURL ...string) error
	Logout(ctx context.Context, redirect bool) error
	RedirectTo(rawurl string) error
	Do(req *http.Request) (*http.Response, error)
	Token() string
	SetToken(token string)
	SetSession(token string, user *api.User)
}

// Compile-time check that *Client implements Session.
var _ Session = (*Client)(nil)
