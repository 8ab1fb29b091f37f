package client

import "sync"

// Navigator abstracts the browsing context: the current location and
// the ability to move it. In a browser build this is window.location
// and history; in CLIs, tests, and server-side consumers it is a
// MemoryNavigator or an application-supplied implementation.
type Navigator interface {
	// CurrentURL returns the location the client is "at", or "" when
	// there is no meaningful location (headless use).
	CurrentURL() string

	// Navigate moves to rawurl, recording a history entry.
	Navigate(rawurl string) error

	// ReplaceURL rewrites the visible location without a history
	// entry. Used to strip consumed protocol parameters.
	ReplaceURL(rawurl string) error
}

// MemoryNavigator is a Navigator that tracks location in memory. Tests
// and headless consumers read back where the protocol would have sent
// the browser.
type MemoryNavigator struct {
	mu      sync.Mutex
	url     string
	history []string
}

func NewMemoryNavigator(rawurl string) *MemoryNavigator {
	return &MemoryNavigator{url: rawurl}
}

func (n *MemoryNavigator) CurrentURL() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.url
}

func (n *MemoryNavigator) Navigate(rawurl string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.history = append(n.history, n.url)
	n.url = rawurl
	return nil
}

func (n *MemoryNavigator) ReplaceURL(rawurl string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.url = rawurl
	return nil
}

// History returns the locations left by Navigate calls, oldest first.
func (n *MemoryNavigator) History() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.history))
	copy(out, n.history)
	return out
}
