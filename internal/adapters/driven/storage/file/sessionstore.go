// Package file provides the on-disk session store.
//
// Each session is one JSON document at <sessions_dir>/<id>/session.json.
// Writes go to a temporary file that is synced and renamed into place, so a
// reader sees either the old or the new document, never a partial one.
//
// Writers are serialised twice: an in-process mutex per session, and an
// exclusive .lock file next to the document so separate processes sharing the
// data directory do not interleave. Lock files older than the stale threshold
// are treated as abandoned and removed.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/logger"
)

const (
	sessionFile = "session.json"
	lockFile    = ".lock"

	defaultLockTimeout = 5 * time.Second
	defaultStaleAfter  = 30 * time.Second
	lockRetry          = 25 * time.Millisecond
)

// Ensure SessionStore implements the interface.
var _ driven.SessionStore = (*SessionStore)(nil)

// SessionStore is a directory-per-session implementation of driven.SessionStore.
type SessionStore struct {
	dir         string
	lockTimeout time.Duration
	staleAfter  time.Duration
	now         func() time.Time

	// locks maps lock path to *sync.Mutex.
	locks sync.Map
}

// Option configures a SessionStore.
type Option func(*SessionStore)

// WithLockTimeout sets how long a writer waits for a held lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *SessionStore) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithStaleAfter sets the age after which a lock file is considered abandoned.
func WithStaleAfter(d time.Duration) Option {
	return func(s *SessionStore) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithClock overrides the clock used for lock timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSessionStore creates a store rooted at dir, creating it if needed.
func NewSessionStore(dir string, opts ...Option) (*SessionStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty sessions directory", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create sessions directory: %w", err)
	}

	s := &SessionStore{
		dir:         dir,
		lockTimeout: defaultLockTimeout,
		staleAfter:  defaultStaleAfter,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewSessionStoreFromSettings creates a store from the storage settings.
func NewSessionStoreFromSettings(cfg domain.StorageSettings) (*SessionStore, error) {
	return NewSessionStore(cfg.SessionsDir(),
		WithLockTimeout(cfg.LockTimeout),
		WithStaleAfter(cfg.StaleLockAfter),
	)
}

// Dir returns the root directory.
func (s *SessionStore) Dir() string {
	return s.dir
}

// Create writes a new session.
func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	if session == nil {
		return fmt.Errorf("%w: nil session", domain.ErrInvalidInput)
	}
	if err := validateID(session.ID); err != nil {
		return err
	}

	dir := s.sessionDir(session.ID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	return s.withLock(ctx, session.ID, func() error {
		if _, err := os.Stat(s.sessionPath(session.ID)); err == nil {
			return fmt.Errorf("session %s: %w", session.ID, domain.ErrAlreadyExists)
		}
		return s.write(session)
	})
}

// Load reads a session without taking the lock. Renames are atomic so the
// document is always complete.
func (s *SessionStore) Load(_ context.Context, id string) (*domain.Session, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return s.read(id)
}

// Update loads the session under its lock, applies fn and writes the result.
func (s *SessionStore) Update(ctx context.Context, id string, fn func(*domain.Session) error) (*domain.Session, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.sessionDir(id)); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("update %s: %w", id, domain.ErrSessionNotFound)
	}

	var updated *domain.Session
	err := s.withLock(ctx, id, func() error {
		session, err := s.read(id)
		if err != nil {
			return err
		}
		if err := fn(session); err != nil {
			return err
		}
		if err := s.write(session); err != nil {
			return err
		}
		updated = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the session directory, lock included.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if _, err := os.Stat(s.sessionPath(id)); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", id, domain.ErrSessionNotFound)
	}

	err := s.withLock(ctx, id, func() error {
		if err := os.Remove(s.sessionPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove session %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := os.RemoveAll(s.sessionDir(id)); err != nil {
		return fmt.Errorf("remove session directory %s: %w", id, err)
	}
	s.locks.Delete(s.lockPath(id))
	return nil
}

// IDs lists every directory holding a session document, in lexical order.
func (s *SessionStore) IDs(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if _, err := os.Stat(s.sessionPath(entry.Name())); err != nil {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *SessionStore) sessionDir(id string) string {
	return filepath.Join(s.dir, id)
}

func (s *SessionStore) sessionPath(id string) string {
	return filepath.Join(s.dir, id, sessionFile)
}

func (s *SessionStore) lockPath(id string) string {
	return filepath.Join(s.dir, id, lockFile)
}

func (s *SessionStore) read(id string) (*domain.Session, error) {
	data, err := os.ReadFile(s.sessionPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", id, domain.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &session, nil
}

// write replaces the session document atomically.
func (s *SessionStore) write(session *domain.Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	dir := s.sessionDir(session.ID)
	tmp, err := os.CreateTemp(dir, sessionFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if err := os.Rename(tmpName, s.sessionPath(session.ID)); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}

type lockMetadata struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
}

// withLock runs fn while holding both the in-process and the on-disk lock.
func (s *SessionStore) withLock(ctx context.Context, id string, fn func() error) error {
	lockPath := s.lockPath(id)

	processLock := s.processLock(lockPath)
	processLock.Lock()
	defer processLock.Unlock()

	start := time.Now()
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			encoded, _ := json.Marshal(lockMetadata{
				PID:       os.Getpid(),
				CreatedAt: s.now().UTC().Format(time.RFC3339Nano),
			})
			_, _ = f.Write(append(encoded, '\n'))
			_ = f.Close()
			defer func() { _ = os.Remove(lockPath) }()
			return fn()
		}

		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("acquire session lock: %w", err)
		}
		if s.isStale(lockPath) {
			logger.Warn("removing stale session lock %s", lockPath)
			_ = os.Remove(lockPath)
			continue
		}
		if time.Since(start) >= s.lockTimeout {
			return &domain.SessionLockContentionError{SessionID: id, LockPath: lockPath}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetry):
		}
	}
}

func (s *SessionStore) processLock(lockPath string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(lockPath, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// isStale reports whether the lock file's recorded creation time is older
// than the stale threshold. Unreadable lock files fall back to their mtime.
func (s *SessionStore) isStale(lockPath string) bool {
	var createdAt time.Time

	content, err := os.ReadFile(lockPath)
	if err != nil {
		return false
	}
	var meta lockMetadata
	if json.Unmarshal(content, &meta) == nil {
		createdAt, _ = time.Parse(time.RFC3339Nano, strings.TrimSpace(meta.CreatedAt))
	}
	if createdAt.IsZero() {
		info, err := os.Stat(lockPath)
		if err != nil {
			return false
		}
		createdAt = info.ModTime()
	}
	return s.now().Sub(createdAt) > s.staleAfter
}

// validateID rejects ids that would escape the sessions directory.
func validateID(id string) error {
	switch {
	case id == "", id == ".", id == "..":
		return fmt.Errorf("%w: invalid session id %q", domain.ErrInvalidInput, id)
	case strings.ContainsAny(id, `/\`), strings.HasPrefix(id, "."):
		return fmt.Errorf("%w: invalid session id %q", domain.ErrInvalidInput, id)
	}
	return nil
}
