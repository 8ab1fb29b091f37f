package client

import "errors"

var (
	// ErrAuthRequired means no authenticated session exists. Protect
	// returns it after running the auth-required path (hook + redirect).
	ErrAuthRequired = errors.New("authentication required")

	// ErrAccessDenied means the session is authenticated but not
	// authorized for the requested resource. It never causes a
	// redirect to login.
	ErrAccessDenied = errors.New("access denied")

	// ErrTransport wraps a network or parse failure talking to the
	// Auth API. It means "cannot confirm validity" and never destroys
	// the session.
	ErrTransport = errors.New("auth api unreachable")

	// ErrStorage wraps a persisted-store failure. Storage degradation
	// is never fatal; the in-memory session stays authoritative.
	ErrStorage = errors.New("session storage unavailable")

	// ErrNoLoginURL is returned by operations that need to redirect to
	// the login origin when Config.LoginURL is empty.
	ErrNoLoginURL = errors.New("no login url configured")
)
