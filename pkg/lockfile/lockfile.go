// Package lockfile serializes maintenance runs. Prune and compact are
// destructive, so two runs must never overlap on the same registry; the
// lock file next to the registry is the mutual exclusion the scheduler
// cannot be trusted to provide on its own.
//
// The holder refreshes the lock periodically; a lock whose timestamp has
// not moved for several intervals is considered abandoned and may be
// taken over.
package lockfile

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/marcus0x62/backuptools/pkg/plog"
	"github.com/marcus0x62/backuptools/pkg/util"
)

// Content is the JSON body of the lock file, identifying the holder.
type Content struct {
	PID        int64     `json:"pid"`
	Hostname   string    `json:"hostname"`
	App        string    `json:"app"`
	LastUpdate time.Time `json:"lastUpdate"`
	// Nonce disambiguates concurrent takeover attempts.
	Nonce string `json:"nonce,omitempty"`
}

// ErrActive reports a lock held by a live process.
type ErrActive struct {
	PID       int64
	Hostname  string
	TimeSince time.Duration
}

func (e *ErrActive) Error() string {
	return fmt.Sprintf("maintenance already running: PID %d on '%s', last heartbeat %s ago",
		e.PID, e.Hostname, e.TimeSince.Truncate(time.Second))
}

// ErrLostRace is returned when another process wins a stale-lock takeover.
var ErrLostRace = errors.New("lost stale lock takeover race")

// Vars so tests can shrink the timing.
var (
	refreshInterval = 30 * time.Second
	staleAfter      = 3 * refreshInterval
)

// Lock is a held lock. Release it exactly once; further calls are no-ops.
type Lock struct {
	path    string
	content Content
	cancel  context.CancelFunc
	mu      sync.Mutex
	held    bool
}

// Acquire takes the lock at path, creating it atomically. A lock held by
// a live process yields (nil, *ErrActive). An abandoned or unreadable
// lock is taken over. On success a background refresher keeps the lock
// fresh until Release.
func Acquire(ctx context.Context, path string, app string) (*Lock, error) {
	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		l, err := create(path, app)
		if err == nil {
			l.startRefresher()
			return l, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		// Someone holds it. Decide live vs abandoned from the content.
		content, readErr := read(path)
		if readErr == nil {
			elapsed := time.Since(content.LastUpdate)
			if elapsed < staleAfter {
				return nil, &ErrActive{
					PID:       content.PID,
					Hostname:  content.Hostname,
					TimeSince: elapsed,
				}
			}
			plog.Warn("Found abandoned lock, taking over", "pid", content.PID, "age", elapsed)
		} else if os.IsNotExist(readErr) {
			// Holder released between our create and read; retry.
			continue
		} else {
			plog.Warn("Found unreadable lock, treating as abandoned", "path", path, "error", readErr)
		}

		l, err = takeover(path, app)
		if err == nil {
			l.startRefresher()
			return l, nil
		}
		if !errors.Is(err, ErrLostRace) {
			plog.Warn("Lock takeover failed, retrying", "error", err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	return nil, fmt.Errorf("failed to acquire lock after %d attempts", maxAttempts)
}

// Release stops the refresher and removes the lock file.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return
	}
	l.cancel()
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
	}
	l.held = false
}

// create acquires via O_CREATE|O_EXCL, which succeeds only when no lock
// file exists.
func create(path string, app string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := ownContent(app)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(data); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock content: %w", err)
	}
	return newLock(path, content), nil
}

// takeover replaces an abandoned lock via atomic rename, then reads the
// file back: finding our own nonce proves we won against any concurrent
// takeover.
func takeover(path string, app string) (*Lock, error) {
	content, err := ownContent(app)
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(path, content); err != nil {
		return nil, err
	}

	onDisk, err := read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to verify lock takeover: %w", err)
	}
	if onDisk.PID != content.PID || onDisk.Nonce != content.Nonce {
		return nil, ErrLostRace
	}
	return newLock(path, content), nil
}

func ownContent(app string) (Content, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return Content{}, err
	}
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return Content{}, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return Content{
		PID:        int64(os.Getpid()),
		Hostname:   hostname,
		App:        app,
		LastUpdate: time.Now().UTC(),
		Nonce:      fmt.Sprintf("%x", nonce),
	}, nil
}

func newLock(path string, content Content) *Lock {
	return &Lock{path: path, content: content, held: true}
}

func (l *Lock) startRefresher() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.content.LastUpdate = time.Now().UTC()
				// A failed refresh is retried next tick; the stale margin
				// is three intervals wide.
				if err := writeAtomic(l.path, l.content); err != nil {
					plog.Warn("Failed to refresh lock file", "error", err)
				}
			}
		}
	}()
}

// writeAtomic writes content to a sibling temp file and renames it over
// path, so readers never observe a partially written lock.
func writeAtomic(path string, content Content) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp lock file: %w", err)
	}
	defer os.Remove(tmp.Name())

	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp lock file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// read loads and parses the lock file, retrying briefly around transient
// empty or partial states.
func read(path string) (Content, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		data, err := os.ReadFile(path)
		if err != nil {
			return Content{}, err
		}
		var content Content
		if err := json.Unmarshal(data, &content); err != nil {
			lastErr = err
			time.Sleep(50 * time.Millisecond)
			continue
		}
		return content, nil
	}
	return Content{}, fmt.Errorf("lock file unreadable: %w", lastErr)
}
