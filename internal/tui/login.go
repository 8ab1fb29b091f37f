// Package tui implements the interactive OTP login experience: email
// entry, six-slot code entry with auto-advance and paste, the resend
// countdown, and the success/failure views. All protocol behavior
// lives in pkg/otp; this package only renders and routes input.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/inmapper/authkit/pkg/otp"
)

// ViewType represents the current view being displayed
type ViewType int

const (
	// ViewEmail collects the email (and optional name) to start the flow
	ViewEmail ViewType = iota
	// ViewCode collects the six-digit code
	ViewCode
	// ViewDone is the local success view (no callback URL present)
	ViewDone
)

type codeSentMsg struct{ err error }
type verifyDoneMsg struct{ err error }
type resendDoneMsg struct{ err error }
type tickMsg time.Time

// Model drives the OTP flow as a Bubble Tea program.
type Model struct {
	flow *otp.Flow

	email textinput.Model
	name  textinput.Model

	currentView ViewType
	submitting  bool
	errMsg      string
	quitting    bool

	styles Styles
}

// NewModel creates a login model around a prepared flow.
func NewModel(flow *otp.Flow) Model {
	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.CharLimit = 254
	email.Focus()

	name := textinput.New()
	name.Placeholder = "name (only for new accounts)"
	name.CharLimit = 100

	return Model{
		flow:        flow,
		email:       email,
		name:        name,
		currentView: ViewEmail,
		styles:      DefaultStyles(),
	}
}

// Run executes the login flow and blocks until it finishes.
func Run(flow *otp.Flow) error {
	_, err := tea.NewProgram(NewModel(flow)).Run()
	return err
}

// Init initializes the model (required by Bubble Tea)
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages and updates the model state (required by Bubble Tea)
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case codeSentMsg:
		m.submitting = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.errMsg = ""
		m.currentView = ViewCode
		return m, tick()

	case verifyDoneMsg:
		m.submitting = false
		if msg.err != nil {
			// flow already cleared the slots and reset focus
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.errMsg = ""
		m.currentView = ViewDone
		m.quitting = true
		return m, tea.Quit

	case resendDoneMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		} else {
			m.errMsg = ""
		}
		return m, nil

	case tickMsg:
		if m.currentView == ViewCode {
			return m, tick()
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyEsc:
		if m.currentView == ViewCode {
			// change email: discard all OTP state
			m.flow.ChangeEmail()
			m.currentView = ViewEmail
			m.errMsg = ""
			m.email.Focus()
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit
	}

	switch m.currentView {
	case ViewEmail:
		return m.handleEmailKey(msg)
	case ViewCode:
		return m.handleCodeKey(msg)
	}
	return m, nil
}

func (m Model) handleEmailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab, tea.KeyShiftTab:
		if m.email.Focused() {
			m.email.Blur()
			m.name.Focus()
		} else {
			m.name.Blur()
			m.email.Focus()
		}
		return m, nil

	case tea.KeyEnter:
		address := strings.TrimSpace(m.email.Value())
		if address == "" || m.submitting {
			return m, nil
		}
		m.submitting = true
		return m, m.submitEmail(address, strings.TrimSpace(m.name.Value()))
	}

	var cmd tea.Cmd
	if m.email.Focused() {
		m.email, cmd = m.email.Update(msg)
	} else {
		m.name, cmd = m.name.Update(msg)
	}
	return m, cmd
}

func (m Model) handleCodeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyBackspace:
		m.flow.Backspace()
		return m, nil

	case tea.KeyEnter:
		if m.flow.CodeComplete() {
			return m, m.verify()
		}
		return m, nil

	case tea.KeyRunes:
		runes := msg.Runes
		// a multi-rune key event is a paste
		if len(runes) > 1 {
			if m.flow.Paste(string(runes)) {
				return m, m.verify()
			}
			return m, nil
		}
		if len(runes) == 1 {
			switch runes[0] {
			case 'r':
				if m.flow.ResendAvailable() {
					return m, m.resend()
				}
				return m, nil
			default:
				if m.flow.Input(runes[0]) {
					return m, m.verify()
				}
				return m, nil
			}
		}
	}
	return m, nil
}

func (m Model) submitEmail(email, name string) tea.Cmd {
	return func() tea.Msg {
		return codeSentMsg{err: m.flow.SubmitEmail(context.Background(), email, name)}
	}
}

func (m Model) verify() tea.Cmd {
	return func() tea.Msg {
		return verifyDoneMsg{err: m.flow.Verify(context.Background())}
	}
}

func (m Model) resend() tea.Cmd {
	return func() tea.Msg {
		return resendDoneMsg{err: m.flow.Resend(context.Background())}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// View renders the model (required by Bubble Tea)
func (m Model) View() string {
	if m.quitting && m.currentView != ViewDone {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render("inMapper sign in"))
	b.WriteString("\n")

	switch m.currentView {
	case ViewEmail:
		b.WriteString(m.styles.Subtitle.Render("Enter your email to receive a sign-in code"))
		b.WriteString("\n")
		b.WriteString(m.email.View())
		b.WriteString("\n")
		b.WriteString(m.name.View())
		b.WriteString("\n")
		if m.submitting {
			b.WriteString(m.styles.Muted.Render("sending code..."))
			b.WriteString("\n")
		}
		b.WriteString(m.styles.Help.Render("enter: send code • tab: name field • esc: quit"))

	case ViewCode:
		b.WriteString(m.styles.Subtitle.Render("We sent a 6-digit code to " + m.flow.Email()))
		b.WriteString("\n")
		b.WriteString(m.renderSlots())
		b.WriteString("\n")
		if m.flow.State() == otp.StateVerifying {
			b.WriteString(m.styles.Muted.Render("verifying..."))
			b.WriteString("\n")
		}
		b.WriteString(m.renderResend())
		b.WriteString("\n")
		b.WriteString(m.styles.Help.Render("type or paste the code • backspace: fix • esc: change email"))

	case ViewDone:
		user := m.flow.User()
		greeting := "You're signed in."
		if user != nil && user.Name != "" {
			greeting = fmt.Sprintf("You're signed in, %s.", user.Name)
		}
		b.WriteString(m.styles.Success.Render(greeting))
	}

	if m.errMsg != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render(m.errMsg))
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderSlots() string {
	digits := m.flow.Digits()
	cursor := m.flow.Cursor()

	slots := make([]string, otp.CodeLength)
	for i, d := range digits {
		content := " "
		if d != 0 {
			content = string(d)
		}
		style := m.styles.Slot
		if i == cursor {
			style = m.styles.SlotActive
		}
		slots[i] = style.Render(content)
	}
	return strings.Join(slots, " ")
}

func (m Model) renderResend() string {
	if m.flow.ResendAvailable() {
		return m.styles.Muted.Render("press r to resend the code")
	}
	remaining := int(m.flow.ResendRemaining().Round(time.Second).Seconds())
	return m.styles.Muted.Render(fmt.Sprintf("resend available in %ds", remaining))
}
