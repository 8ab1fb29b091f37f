// Package testutil provides test environment setup and utilities for
// package tests.
package testutil

import (
	"net/http/httptest"
	"testing"

	"github.com/inmapper/authkit/pkg/api"
	"github.com/inmapper/authkit/pkg/authtest"
)

// TestEnv provides a running Auth API and a protocol client for it.
type TestEnv struct {
	Auth *authtest.Server
	HTTP *httptest.Server
	API  *api.Client
}

// SetupAuthEnv starts an isolated in-memory Auth API over a real HTTP
// listener and registers cleanup with t.Cleanup.
func SetupAuthEnv(
	t *testing.T,
) *TestEnv {
	t.Helper()

	auth, err := authtest.New()
	if err != nil {
		t.Fatalf("failed to start auth server: %v", err)
	}

	server := httptest.NewServer(auth.Router())

	t.Cleanup(func() {
		server.Close()
		_ = auth.Close()
	})

	return &TestEnv{
		Auth: auth,
		HTTP: server,
		API:  api.New(server.URL, nil),
	}
}

// SeedUser creates a verified account in the Auth API.
func (env *TestEnv) SeedUser(
	t *testing.T,
	user api.User,
) {
	t.Helper()
	if _, err := env.Auth.Seed(user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
}

// IssueToken mints a session token for a seeded account.
func (env *TestEnv) IssueToken(
	t *testing.T,
	email string,
) string {
	t.Helper()
	token, err := env.Auth.IssueToken(email)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}
