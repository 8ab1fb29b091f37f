package authtest

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Allowlist is the operator-configured set of callback origins the
// login origin will hand tokens to. It reloads itself when the backing
// file changes, so an operator can adjust it without a restart.
type Allowlist struct {
	path string

	mu      sync.RWMutex
	origins map[string]struct{}
}

// LoadAllowlist reads a JSON array of origins (scheme://host[:port])
// from path and starts watching it for changes.
func LoadAllowlist(path string) (*Allowlist, error) {
	a := &Allowlist{path: path}
	if err := a.reload(); err != nil {
		return nil, err
	}
	if err := watchFile(path, func() {
		if err := a.reload(); err != nil {
			log.Printf("allowlist: reload failed: %v\n", err)
		}
	}); err != nil {
		return nil, err
	}
	return a, nil
}

// Allowed reports whether rawurl's origin is on the list.
func (a *Allowlist) Allowed(rawurl string) bool {
	u, err := url.Parse(rawurl)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	origin := u.Scheme + "://" + u.Host

	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.origins[origin]
	return ok
}

func (a *Allowlist) reload() error {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return fmt.Errorf("couldn't read allowlist: %w", err)
	}

	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("couldn't parse allowlist: %w", err)
	}

	origins := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		origins[entry] = struct{}{}
	}

	a.mu.Lock()
	a.origins = origins
	a.mu.Unlock()

	log.Printf("allowlist: loaded %d origins from %s\n", len(origins), a.path)
	return nil
}

// watchFile watches the file's directory and invokes callback after
// changes settle. Events are debounced because editors produce bursts
// of writes.
func watchFile(path string, callback func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	err = watcher.Add(filepath.Dir(path))
	if err != nil {
		return err
	}

	reload := make(chan struct{})
	go scheduleReload(reload, callback)
	go handleWatcher(watcher, filepath.Base(path), reload)
	return nil
}

func handleWatcher(watcher *fsnotify.Watcher, name string, reload chan<- struct{}) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write | fsnotify.Remove | fsnotify.Create) {
				reload <- struct{}{}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("allowlist watcher error: %v\n", err)
		}
	}
}

func scheduleReload(reload <-chan struct{}, callback func()) {
	var timer *time.Timer = nil
	var c <-chan time.Time = nil
	duration := time.Millisecond * 500
	for {
		select {
		case <-reload:
			if timer != nil {
				timer.Reset(duration)
			} else {
				timer = time.NewTimer(duration)
				c = timer.C
			}

		case <-c:
			c = nil
			timer = nil
			callback()
		}
	}
}
