// Package api implements the wire protocol of the inMapper Auth API:
// request/response types and a stateless HTTP client for every endpoint.
// It holds no session state; the session lifecycle lives in pkg/client.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// APIError is an error response from the Auth API.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth api error %d: %s", e.Status, e.Message)
}

// Client is a stateless request wrapper around the Auth API. All
// methods perform exactly one network round trip. A transport or parse
// failure is returned as a plain error; a non-2xx response decodes into
// an *APIError.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client for the Auth API at baseURL. A nil httpClient
// falls back to http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// BaseURL returns the configured Auth API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

type registerRequest struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

// Register starts an OTP registration for a new account. The Auth API
// delivers a code to the address out of band.
func (c *Client) Register(ctx context.Context, email, name, callbackURL string) error {
	return c.post(ctx, "/auth/register", "", &registerRequest{
		Email:       email,
		Name:        name,
		CallbackURL: callbackURL,
	}, nil)
}

type loginRequest struct {
	Email       string `json:"email"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

// Login starts an OTP login for an existing account.
func (c *Client) Login(ctx context.Context, email, callbackURL string) error {
	return c.post(ctx, "/auth/login", "", &loginRequest{
		Email:       email,
		CallbackURL: callbackURL,
	}, nil)
}

type verifyRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

// Verify exchanges an email and OTP code for a session token.
func (c *Client) Verify(ctx context.Context, email, code, callbackURL string) (*VerifyResult, error) {
	result := &VerifyResult{}
	err := c.post(ctx, "/auth/verify", "", &verifyRequest{
		Email:       email,
		Code:        code,
		CallbackURL: callbackURL,
	}, result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

type resendRequest struct {
	Email string `json:"email"`
}

// Resend asks the Auth API to deliver a fresh code for a pending login.
func (c *Client) Resend(ctx context.Context, email string) error {
	return c.post(ctx, "/auth/resend", "", &resendRequest{Email: email}, nil)
}

type validateRequest struct {
	Token string `json:"token"`
	// Resource must be omitted entirely when unset; its presence
	// changes the response shape.
	Resource string `json:"resource,omitempty"`
}

// Validate asks whether token is currently valid and, when resource is
// non-empty, whether it grants access to that resource. An error means
// "cannot confirm validity", not "invalid": only a decoded response
// with Valid=false means the token is dead.
func (c *Client) Validate(ctx context.Context, token, resource string) (*ValidationResult, error) {
	result := &ValidationResult{}
	err := c.post(ctx, "/auth/validate", "", &validateRequest{
		Token:    token,
		Resource: resource,
	}, result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

type logoutRequest struct {
	Token string `json:"token"`
}

// Logout revokes token server-side.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.post(ctx, "/auth/logout", "", &logoutRequest{Token: token}, nil)
}

type meResponse struct {
	User *User `json:"user"`
}

// Me fetches the account record for the bearer token.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	response := &meResponse{}
	if err := c.request(ctx, http.MethodGet, "/auth/me", token, nil, response); err != nil {
		return nil, err
	}
	return response.User, nil
}

func (c *Client) post(ctx context.Context, path, token string, body, response any) error {
	return c.request(ctx, http.MethodPost, path, token, body, response)
}

func (c *Client) request(ctx context.Context, method, path, token string, body, response any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("couldn't encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, respBody)
	}

	if response != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, response); err != nil {
			return fmt.Errorf("couldn't decode response: %w", err)
		}
	}
	return nil
}

func decodeError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
