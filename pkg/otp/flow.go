// Package otp drives the interactive one-time-passcode flow at the
// login origin: email entry, digit-by-digit code entry, verification
// against the Auth API, and the resend cooldown. A successful flow
// installs the issued token and user into the session client and, when
// a callback URL is present, fires the cross-origin redirect
// immediately.
package otp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/inmapper/authkit/pkg/api"
	"github.com/inmapper/authkit/pkg/client"
)

// CodeLength is the number of digits in an OTP code.
const CodeLength = 6

// ResendCooldown is how long after a code is sent before another may
// be requested.
const ResendCooldown = 60 * time.Second

// ErrCodeInvalid means the Auth API rejected the entered code (wrong
// or expired). The session is unaffected; the flow returns to code
// entry with cleared slots.
var ErrCodeInvalid = errors.New("invalid code")

// State identifies where the flow is.
type State int

const (
	// StateEmailEntry collects the email (plus optional name for
	// registration).
	StateEmailEntry State = iota
	// StateCodeSent means a code is on its way; digits are being
	// collected.
	StateCodeSent
	// StateVerifying means a verification call is in flight.
	StateVerifying
	// StateVerifiedSuccess is terminal: the session is installed.
	StateVerifiedSuccess
	// StateVerifyFailed means the last verification was rejected; the
	// slots are cleared and the next interaction returns the flow to
	// StateCodeSent.
	StateVerifyFailed
)

func (s State) String() string {
	switch s {
	case StateEmailEntry:
		return "email-entry"
	case StateCodeSent:
		return "code-sent"
	case StateVerifying:
		return "verifying"
	case StateVerifiedSuccess:
		return "verified"
	case StateVerifyFailed:
		return "verify-failed"
	default:
		return "unknown"
	}
}

// Flow is the OTP state machine. It is ephemeral: nothing here is
// persisted, and ChangeEmail discards all of it. Safe for concurrent
// use, though the intended driver is a single interactive loop.
type Flow struct {
	api     *api.Client
	session client.Session
	now     func() time.Time

	mu          sync.Mutex
	state       State
	email       string
	callbackURL string
	digits      [CodeLength]rune
	cursor      int
	resendAt    time.Time
	err         error
	user        *api.User
}

// New builds a flow that verifies against apiClient and installs the
// resulting session into session. callbackURL may be empty; when set,
// verification success redirects there directly with the token
// appended, bypassing any local success view.
func New(apiClient *api.Client, session client.Session, callbackURL string) *Flow {
	return &Flow{
		api:         apiClient,
		session:     session,
		callbackURL: callbackURL,
		now:         time.Now,
		state:       StateEmailEntry,
	}
}

// WithClock substitutes the cooldown clock. Intended for tests.
func (f *Flow) WithClock(now func() time.Time) *Flow {
	f.now = now
	return f
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

// Err returns the most recent surfaced error, if any.
func (f *Flow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// User returns the verified user after StateVerifiedSuccess.
func (f *Flow) User() *api.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user
}

// Digits returns the six entry slots; empty slots are zero runes.
func (f *Flow) Digits() [CodeLength]rune {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.digits
}

// Cursor returns the slot index awaiting input, CodeLength when full.
func (f *Flow) Cursor() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor
}

// Code assembles the entered digits.
func (f *Flow) Code() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codeLocked()
}

func (f *Flow) codeLocked() string {
	var b strings.Builder
	for _, d := range f.digits {
		if d == 0 {
			break
		}
		b.WriteRune(d)
	}
	return b.String()
}

// CodeComplete reports whether all six slots are filled.
func (f *Flow) CodeComplete() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor == CodeLength
}

// SubmitEmail starts the code delivery: the login endpoint for a bare
// email, the register endpoint when a name is supplied. On success the
// flow moves to StateCodeSent and the resend cooldown starts; on
// failure it stays in StateEmailEntry with the error surfaced.
func (f *Flow) SubmitEmail(ctx context.Context, email, name string) error {
	f.mu.Lock()
	if f.state != StateEmailEntry {
		f.mu.Unlock()
		return fmt.Errorf("submit email in state %s", f.state)
	}
	callback := f.callbackURL
	f.mu.Unlock()

	var err error
	if name != "" {
		err = f.api.Register(ctx, email, name, callback)
	} else {
		err = f.api.Login(ctx, email, callback)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.err = err
		return err
	}
	f.email = email
	f.err = nil
	f.clearDigitsLocked()
	f.state = StateCodeSent
	f.resendAt = f.now().Add(ResendCooldown)
	return nil
}

// Input enters one digit into the current slot, auto-advancing. It
// reports true exactly when this entry completed the code, which is
// the signal to trigger verification. Non-digit input and input outside code
// entry are ignored.
func (f *Flow) Input(r rune) (ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.enteringLocked() || !unicode.IsDigit(r) || f.cursor >= CodeLength {
		return false
	}
	f.state = StateCodeSent
	f.err = nil
	f.digits[f.cursor] = r
	f.cursor++
	return f.cursor == CodeLength
}

// Backspace clears the previous slot and moves back to it.
func (f *Flow) Backspace() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.enteringLocked() || f.cursor == 0 {
		return
	}
	f.state = StateCodeSent
	f.cursor--
	f.digits[f.cursor] = 0
}

// Paste fills all six slots from a pasted code. It reports true when
// the paste completed the code; anything but a six-digit string is
// ignored.
func (f *Flow) Paste(s string) (ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.enteringLocked() {
		return false
	}
	s = strings.TrimSpace(s)
	if len(s) != CodeLength {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}

	f.state = StateCodeSent
	f.err = nil
	for i, r := range []rune(s) {
		f.digits[i] = r
	}
	f.cursor = CodeLength
	return true
}

func (f *Flow) enteringLocked() bool {
	return f.state == StateCodeSent || f.state == StateVerifyFailed
}

// Verify exchanges the entered code for a token. Duplicate triggers
// while a verification is in flight are no-ops, so completing the code
// by typing or paste causes exactly one call. Success installs the
// session and, with a callback URL present, fires the redirect
// immediately. Failure clears all slots, returns focus to the first,
// and moves to StateVerifyFailed.
func (f *Flow) Verify(ctx context.Context) error {
	f.mu.Lock()
	if f.state == StateVerifying || f.state == StateVerifiedSuccess {
		f.mu.Unlock()
		return nil
	}
	if !f.enteringLocked() || f.cursor != CodeLength {
		f.mu.Unlock()
		return fmt.Errorf("verify without a complete code")
	}
	email, code, callback := f.email, f.codeLocked(), f.callbackURL
	f.state = StateVerifying
	f.mu.Unlock()

	result, err := f.api.Verify(ctx, email, code, callback)

	f.mu.Lock()
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			err = fmt.Errorf("%w: %s", ErrCodeInvalid, apiErr.Message)
		} else {
			err = fmt.Errorf("%w: %v", client.ErrTransport, err)
		}
		f.err = err
		f.clearDigitsLocked()
		f.state = StateVerifyFailed
		f.mu.Unlock()
		return err
	}
	f.err = nil
	f.user = result.User
	f.state = StateVerifiedSuccess
	f.mu.Unlock()

	f.session.SetSession(result.Token, result.User)
	if callback != "" {
		return f.session.RedirectTo(callback)
	}
	return nil
}

// ResendAvailable reports whether the cooldown has elapsed.
func (f *Flow) ResendAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enteringLocked() && !f.now().Before(f.resendAt)
}

// ResendRemaining returns how much cooldown is left, zero when resend
// is available.
func (f *Flow) ResendRemaining() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	remaining := f.resendAt.Sub(f.now())
	if remaining < 0 || !f.enteringLocked() {
		return 0
	}
	return remaining
}

// Resend requests a fresh code and restarts the cooldown, keeping any
// entered digits. Before the cooldown elapses it is a no-op.
func (f *Flow) Resend(ctx context.Context) error {
	if !f.ResendAvailable() {
		return nil
	}

	f.mu.Lock()
	email := f.email
	f.mu.Unlock()

	err := f.api.Resend(ctx, email)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.err = err
		return err
	}
	f.err = nil
	f.state = StateCodeSent
	f.resendAt = f.now().Add(ResendCooldown)
	return nil
}

// ChangeEmail returns to email entry, discarding all OTP state.
func (f *Flow) ChangeEmail() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateEmailEntry
	f.email = ""
	f.err = nil
	f.user = nil
	f.resendAt = time.Time{}
	f.clearDigitsLocked()
}

func (f *Flow) clearDigitsLocked() {
	f.digits = [CodeLength]rune{}
	f.cursor = 0
}
