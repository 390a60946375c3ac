package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow collapses bursts of filesystem events (editors frequently
// write-rename-write on save) into a single reload.
const debounceWindow = time.Second

// Watch starts watching the store's backing file for external edits and
// reloads the document on change, debounced to debounceWindow. It runs
// until ctx is canceled. A reload that fails validation is logged and
// ignored; the in-memory document is left untouched.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if dir == "" {
		dir = "."
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: watching %s: %w", dir, err)
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounceWindow)
			}

		case <-timerC:
			s.reloadFromDisk()
			timer = nil
			timerC = nil

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

// reloadFromDisk re-reads the backing file and, if it validates, swaps it
// in and notifies subscribers. A read or parse failure is logged; it does
// not quarantine the file, since the write that triggered this event may
// simply not be finished yet.
func (s *Store) reloadFromDisk() {
	next, err := loadFile(s.path)
	if err != nil {
		s.log.Warn().Err(err).Msg("config reload: failed to read or parse, keeping current document")
		return
	}

	warnings, err := normalizeAndValidate(next)
	for _, w := range warnings {
		s.log.Warn().Msg(w)
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("config reload: new document failed validation, keeping current document")
		return
	}

	s.mu.Lock()
	old := s.root
	s.root = next
	s.mu.Unlock()

	s.log.Info().Msg("config reloaded from disk")
	s.notify(old, next)
}
