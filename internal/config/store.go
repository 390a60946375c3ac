package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Store owns the single RootConfig document on disk: every mutation is
// validated, persisted, and broadcast to subscribers before it returns.
// Either the full document is valid and applied, or the previous one is
// left completely unchanged.
type Store struct {
	mu   sync.RWMutex
	path string
	root *RootConfig
	log  zerolog.Logger

	subMu sync.Mutex
	subs  []chan Snapshot
}

// Snapshot is handed to subscribers on every committed change: the prior
// document, so a subscriber can diff what it cares about.
type Snapshot struct {
	Old *RootConfig
	New *RootConfig
}

// Open loads path (creating it with defaults if absent) and returns a
// ready Store. A corrupt file is renamed aside to "<path>.backup" and
// replaced with defaults rather than failing startup outright.
func Open(path string, log zerolog.Logger) (*Store, error) {
	s := &Store{path: path, log: log.With().Str("component", "config.store").Logger()}

	root, loadErr := loadFile(path)
	if loadErr != nil {
		if errors.Is(loadErr, fs.ErrNotExist) {
			root = Default()
		} else {
			s.log.Warn().Err(loadErr).Str("path", path).Msg("config file unreadable or invalid, quarantining and resetting to defaults")
			if backupErr := quarantine(path); backupErr != nil {
				s.log.Warn().Err(backupErr).Msg("failed to quarantine corrupt config file")
			}
			root = Default()
		}
	}

	warnings, err := normalizeAndValidate(root)
	if err != nil && loadErr == nil {
		s.log.Warn().Err(err).Str("path", path).Msg("config file unreadable or invalid, quarantining and resetting to defaults")
		if backupErr := quarantine(path); backupErr != nil {
			s.log.Warn().Err(backupErr).Msg("failed to quarantine corrupt config file")
		}
		root = Default()
		warnings, err = normalizeAndValidate(root)
	}
	for _, w := range warnings {
		s.log.Warn().Msg(w)
	}
	if err != nil {
		return nil, fmt.Errorf("config: default document failed validation: %w", err)
	}

	s.root = root
	if err := s.persist(); err != nil {
		return nil, fmt.Errorf("config: writing initial document: %w", err)
	}
	return s, nil
}

// retryBackoff bounds how long persist/loadFile retry a permission error
// before giving up: transient permission denials (e.g. a concurrent backup
// tool briefly holding the file, or a slow-to-settle network mount) recover
// on their own within a couple seconds; anything else is not worth
// retrying and is returned immediately.
func retryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 3 * time.Second
	return b
}

// withPermissionRetry runs op, retrying with backoff only when it fails
// with a permission error. Any other error (including file-not-found,
// which callers treat as "create defaults") is returned on the first try.
func withPermissionRetry(op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, fs.ErrPermission) {
			return err
		}
		return backoff.Permanent(err)
	}, retryBackoff())
}

func loadFile(path string) (*RootConfig, error) {
	var data []byte
	err := withPermissionRetry(func() error {
		d, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		data = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	var root RootConfig
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &root, nil
}

func quarantine(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return os.Rename(path, path+".backup")
}

// Current returns a deep copy of the live document, safe to read without
// holding any lock afterward.
func (s *Store) Current() *RootConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root.Clone()
}

// GetTrackerByUUID returns a copy of the tracker with the given uuid.
func (s *Store) GetTrackerByUUID(id string) (*TrackerConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.root.Trackers {
		if t.UUID == id {
			cp := t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// Update applies fn to a clone of the current document; if the result
// validates, it is committed, persisted, and broadcast. fn must not retain
// the pointer it receives beyond the call.
func (s *Store) Update(fn func(*RootConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.root.Clone()
	fn(next)

	if err := validate(next); err != nil {
		return err
	}

	old := s.root
	s.root = next
	if err := s.persist(); err != nil {
		s.root = old
		return fmt.Errorf("config: persisting update: %w", err)
	}
	s.notify(old, next)
	return nil
}

// UpdateTracker merges a partial patch into the tracker identified by id.
// patch is applied via fn, which receives a pointer into the cloned tree.
func (s *Store) UpdateTracker(id string, fn func(*TrackerConfig)) error {
	found := false
	err := s.Update(func(r *RootConfig) {
		for i := range r.Trackers {
			if r.Trackers[i].UUID == id {
				found = true
				fn(&r.Trackers[i])
				return
			}
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// CreateTracker appends a new, disabled tracker with a freshly generated
// uuid and returns it.
func (s *Store) CreateTracker(name string) (*TrackerConfig, error) {
	var created TrackerConfig
	err := s.Update(func(r *RootConfig) {
		created = newTrackerConfig(name, PositionUndefined)
		r.Trackers = append(r.Trackers, created)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteTracker removes the tracker with the given uuid.
func (s *Store) DeleteTracker(id string) error {
	found := false
	err := s.Update(func(r *RootConfig) {
		out := r.Trackers[:0]
		for _, t := range r.Trackers {
			if t.UUID == id {
				found = true
				continue
			}
			out = append(out, t)
		}
		r.Trackers = out
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// ResetTracker replaces the tracker's camera and algorithm settings with
// defaults, preserving its uuid, name, and position.
func (s *Store) ResetTracker(id string) error {
	return s.UpdateTracker(id, func(t *TrackerConfig) {
		t.Camera = defaultCameraConfig()
		t.Algorithm = defaultAlgorithmConfig()
		t.Enabled = false
	})
}

// Reset replaces the entire document with defaults.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.root
	next := Default()
	s.root = next
	if err := s.persist(); err != nil {
		s.root = old
		return fmt.Errorf("config: persisting reset: %w", err)
	}
	s.notify(old, next)
	return nil
}

// Subscribe returns a channel that receives a Snapshot after every
// committed mutation. The channel is buffered; a slow subscriber misses
// intermediate snapshots rather than blocking the store.
func (s *Store) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 4)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

func (s *Store) notify(old, next *RootConfig) {
	snap := Snapshot{Old: old, New: next.Clone()}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// persist writes the document to disk atomically: write to a temp file in
// the same directory, then rename over the target, so a crash mid-write
// never leaves a truncated config file behind. Permission errors at any
// step are retried with backoff rather than surfacing immediately, so a
// transient denial doesn't lose the update.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.root, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)

	return withPermissionRetry(func() error {
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating config directory: %w", err)
			}
		}

		tmp, err := os.CreateTemp(dir, ".config-*.tmp")
		if err != nil {
			return fmt.Errorf("creating temp file: %w", err)
		}
		tmpPath := tmp.Name()
		defer os.Remove(tmpPath)

		if _, err := bytes.NewReader(data).WriteTo(tmp); err != nil {
			tmp.Close()
			return fmt.Errorf("writing temp file: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("closing temp file: %w", err)
		}
		if err := os.Rename(tmpPath, s.path); err != nil {
			return fmt.Errorf("renaming into place: %w", err)
		}
		return nil
	})
}
