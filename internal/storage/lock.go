package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// WriterLock is an O_EXCL lock file giving one batch writer at a time across
// processes. A lock older than its TTL is treated as abandoned and taken over.
type WriterLock struct {
	Path string
	TTL  time.Duration
	now  func() time.Time
}

type lockInfo struct {
	PID      int       `json:"pid"`
	Owner    string    `json:"owner"`
	Acquired time.Time `json:"acquired"`
}

// NewWriterLock creates a lock at path
func NewWriterLock(path string, ttl time.Duration) *WriterLock {
	return &WriterLock{Path: path, TTL: ttl, now: time.Now}
}

// Acquire takes the lock for owner, returning ErrLocked while another live writer holds it
func (l *WriterLock) Acquire(owner string) (release func() error, err error) {
	for attempt := 0; attempt < 2; attempt++ {
		release, err := l.create(owner)
		if !errors.Is(err, os.ErrExist) {
			return release, err
		}
		if !l.stale() {
			return nil, ErrLocked
		}
		if err := l.clearStale(); err != nil {
			return nil, err
		}
	}
	return nil, ErrLocked
}

func (l *WriterLock) create(owner string) (func() error, error) {
	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, os.ErrExist) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("creating lock file: %w", err)
	}
	info := lockInfo{PID: os.Getpid(), Owner: owner, Acquired: l.now().UTC()}
	encErr := json.NewEncoder(f).Encode(info)
	closeErr := f.Close()
	if err := errors.Join(encErr, closeErr); err != nil {
		_ = os.Remove(l.Path)
		return nil, fmt.Errorf("writing lock file: %w", err)
	}
	return func() error {
		if err := os.Remove(l.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}, nil
}

// clearStale removes an abandoned lock. The stale check is repeated while
// holding an O_EXCL takeover guard, so a contender that judged the old lock
// stale can never remove the fresh lock of whoever took over first.
func (l *WriterLock) clearStale() error {
	guard := l.Path + ".takeover"
	g, err := os.OpenFile(guard, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, os.ErrExist) {
		// a guard left by a crashed takeover is cleared for the next attempt
		if st, statErr := os.Stat(guard); statErr == nil && time.Since(st.ModTime()) > l.TTL {
			_ = os.Remove(guard)
		}
		return ErrLocked
	}
	if err != nil {
		return fmt.Errorf("creating takeover guard: %w", err)
	}
	g.Close()
	defer os.Remove(guard)

	if !l.stale() {
		return ErrLocked
	}
	if err := os.Remove(l.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale lock: %w", err)
	}
	return nil
}

func (l *WriterLock) stale() bool {
	if l.TTL <= 0 {
		return false
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return false
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		// unreadable lock: fall back to the file's age
		st, statErr := os.Stat(l.Path)
		return statErr == nil && time.Since(st.ModTime()) > l.TTL
	}
	return l.now().Sub(info.Acquired) > l.TTL
}
