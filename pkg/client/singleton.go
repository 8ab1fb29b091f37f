package client

import "sync"

var (
	instancesMu sync.Mutex
	instances   = make(map[string]*Client)
)

// Instance lazily constructs and memoizes one client per key. Callers
// that want singleton convenience share a client by agreeing on a key;
// the config is only consulted the first time a key is seen.
//
// Explicitly constructed clients (New) remain the primary API; prefer
// passing a *Client or Session to consumers.
func Instance(key string, cfg Config) *Client {
	instancesMu.Lock()
	defer instancesMu.Unlock()

	if c, ok := instances[key]; ok {
		return c
	}
	c := New(cfg)
	instances[key] = c
	return c
}

// ResetInstances drops all memoized clients. Intended for tests.
func ResetInstances() {
	instancesMu.Lock()
	defer instancesMu.Unlock()
	clear(instances)
}
