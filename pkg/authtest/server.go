// Package authtest provides an in-process implementation of the
// inMapper Auth API surface for tests and local development. It speaks
// the exact wire protocol of pkg/api: OTP issue/verify, token
// validation with optional resource scoping, revocation, and the
// callback-origin allow-list enforced at the login origin.
//
// Codes are stored bcrypt-hashed with a short TTL; delivery is out of
// scope, so tests read the last issued code back with LastCode.
package authtest

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/inmapper/authkit/pkg/api"
)

// CodeTTL is how long an issued OTP code stays redeemable.
const CodeTTL = 5 * time.Minute

// Server implements the Auth API over a Store.
type Server struct {
	store     *Store
	allowlist *Allowlist
	now       func() time.Time

	mu       sync.Mutex
	codes    map[string]string
	logCodes bool
}

// New builds a test server over an isolated in-memory store.
func New() (*Server, error) {
	store, err := NewStore(":memory:")
	if err != nil {
		return nil, err
	}
	return NewWithStore(store), nil
}

// NewWithStore builds a server over an existing store, for deployments
// that persist across restarts (cmd/auth-testserver).
func NewWithStore(store *Store) *Server {
	return &Server{
		store: store,
		now:   time.Now,
		codes: make(map[string]string),
	}
}

// SetAllowlist installs a callback-origin allow-list. With none set,
// every callback origin is accepted.
func (s *Server) SetAllowlist(allowlist *Allowlist) {
	s.allowlist = allowlist
}

// LogCodes makes the server log each issued code, standing in for
// email delivery when run as a local development server.
func (s *Server) LogCodes(enabled bool) {
	s.logCodes = enabled
}

// SetClock substitutes the code-expiry clock. Intended for tests.
func (s *Server) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Server) Close() error {
	return s.store.Close()
}

// Router returns the Auth API endpoints mounted at /auth.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	a := r.PathPrefix("/auth/").
		Methods("POST").
		Subrouter()
	a.HandleFunc("/register", s.register)
	a.HandleFunc("/login", s.login)
	a.HandleFunc("/verify", s.verify)
	a.HandleFunc("/resend", s.resend)
	a.HandleFunc("/validate", s.validate)
	a.HandleFunc("/logout", s.logout)

	r.HandleFunc("/auth/me", s.me).Methods("GET")

	return r
}

// Seed inserts a verified account with permissions, bypassing the OTP
// flow. Test setup only.
func (s *Server) Seed(user api.User) (string, error) {
	id, err := s.store.insertAccount(user.Email, user.Name)
	if err != nil {
		return "", err
	}
	if err := s.store.setVerified(user.Email); err != nil {
		return "", err
	}
	if user.IsAdmin {
		if _, err := s.store.db.Exec(
			`UPDATE account SET admin=1 WHERE id=?;`, id,
		); err != nil {
			return "", fmt.Errorf("couldn't mark account admin: %w", err)
		}
	}
	for _, p := range user.Permissions {
		if err := s.store.setPermission(id, p.Resource, p.CanAccess); err != nil {
			return "", err
		}
	}
	return id, nil
}

// IssueToken mints a session token for a seeded account.
func (s *Server) IssueToken(email string) (string, error) {
	return s.store.insertToken(email)
}

// LastCode returns the most recently issued plaintext code for email.
// The store only keeps the hash; this stands in for code delivery.
func (s *Server) LastCode(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[email]
}

func (s *Server) issueCode(email string) error {
	code, err := generateCode()
	if err != nil {
		return err
	}
	if err := s.store.storeCode(email, code, s.now().Add(CodeTTL)); err != nil {
		return err
	}
	s.mu.Lock()
	s.codes[email] = code
	s.mu.Unlock()
	if s.logCodes {
		log.Printf("code for %s: %s\n", email, code)
	}
	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("couldn't generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// ---- handlers ----

type registerRequest struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	CallbackURL string `json:"callbackUrl"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if ok := decodeRequest(&req, w, r); !ok {
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email required")
		return
	}
	if !s.callbackAllowed(req.CallbackURL) {
		writeError(w, http.StatusForbidden, "callback origin not allowed")
		return
	}

	if _, err := s.store.insertAccount(req.Email, req.Name); err != nil {
		writeError(w, http.StatusConflict, "account already exists")
		return
	}
	if err := s.issueCode(req.Email); err != nil {
		serverError(w, r, err)
		return
	}
	returnJson(map[string]string{"status": "code sent"}, w)
}

type loginStartRequest struct {
	Email       string `json:"email"`
	CallbackURL string `json:"callbackUrl"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginStartRequest
	if ok := decodeRequest(&req, w, r); !ok {
		return
	}
	if !s.callbackAllowed(req.CallbackURL) {
		writeError(w, http.StatusForbidden, "callback origin not allowed")
		return
	}

	user, err := s.store.getUserByEmail(req.Email)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err := s.issueCode(req.Email); err != nil {
		serverError(w, r, err)
		return
	}
	returnJson(map[string]string{"status": "code sent"}, w)
}

type verifyCodeRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	CallbackURL string `json:"callbackUrl"`
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if ok := decodeRequest(&req, w, r); !ok {
		return
	}
	if !s.callbackAllowed(req.CallbackURL) {
		writeError(w, http.StatusForbidden, "callback origin not allowed")
		return
	}

	ok, err := s.store.checkCode(req.Email, req.Code, s.now())
	if err != nil {
		serverError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or expired code")
		return
	}

	if err := s.store.setVerified(req.Email); err != nil {
		serverError(w, r, err)
		return
	}
	token, err := s.store.insertToken(req.Email)
	if err != nil {
		serverError(w, r, err)
		return
	}
	user, err := s.store.getUserByEmail(req.Email)
	if err != nil {
		serverError(w, r, err)
		return
	}

	returnJson(&api.VerifyResult{Token: token, User: user}, w)
}

type resendCodeRequest struct {
	Email string `json:"email"`
}

func (s *Server) resend(w http.ResponseWriter, r *http.Request) {
	var req resendCodeRequest
	if ok := decodeRequest(&req, w, r); !ok {
		return
	}

	pending, err := s.store.hasPendingCode(req.Email)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if !pending {
		writeError(w, http.StatusNotFound, "no pending login")
		return
	}
	if err := s.issueCode(req.Email); err != nil {
		serverError(w, r, err)
		return
	}
	returnJson(map[string]string{"status": "code sent"}, w)
}

type validateTokenRequest struct {
	Token    string  `json:"token"`
	Resource *string `json:"resource"`
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	var req validateTokenRequest
	if ok := decodeRequest(&req, w, r); !ok {
		return
	}

	user, err := s.store.getUserByToken(req.Token)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if user == nil {
		returnJson(&api.ValidationResult{Valid: false}, w)
		return
	}

	result := &api.ValidationResult{Valid: true, User: user}
	// the response carries hasResourceAccess only when the request
	// named a resource
	if req.Resource != nil {
		granted := user.Can(*req.Resource)
		result.HasResourceAccess = &granted
	}
	returnJson(result, w)
}

type logoutTokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var req logoutTokenRequest
	if ok := decodeRequest(&req, w, r); !ok {
		return
	}

	if _, err := s.store.deleteToken(req.Token); err != nil {
		serverError(w, r, err)
		return
	}
	returnJson(map[string]string{"status": "logged out"}, w)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	user, err := s.store.getUserByToken(header[len(prefix):])
	if err != nil {
		serverError(w, r, err)
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	returnJson(map[string]*api.User{"user": user}, w)
}

func (s *Server) callbackAllowed(callbackURL string) bool {
	if callbackURL == "" || s.allowlist == nil {
		return true
	}
	return s.allowlist.Allowed(callbackURL)
}

// ---- response helpers ----

func decodeRequest[T any](req *T, w http.ResponseWriter, r *http.Request) bool {
	err := json.NewDecoder(r.Body).Decode(req)
	if err != nil {
		logApiErr(r, "bad json request")
		writeError(w, http.StatusBadRequest, "bad request")
		return false
	}
	return true
}

func returnJson(data any, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func serverError(w http.ResponseWriter, r *http.Request, err error) {
	logApiErr(r, fmt.Sprintf("%v", err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func logApiErr(r *http.Request, msg string) {
	log.Printf("%s %s: %s\n", r.Method, r.RequestURI, msg)
}
