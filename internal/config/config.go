// Package config is the ConfigService: it loads and validates the
// versioned workflow document (config.json), falls back to the built-in
// default when absent, and hot-reloads it when the file changes on disk.
package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/lattice-dev/lattice/internal/model"
	"github.com/lattice-dev/lattice/internal/store"
)

// ValidationError reports a structurally invalid config.json.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "config: invalid config.json: " + e.Reason }

// Service loads config.json once, validates it, and exposes the current
// value under a read-copy lock so concurrent verbs always see a
// consistent Config even while a reload is in flight.
type Service struct {
	path string
	log  zerolog.Logger

	mu      sync.RWMutex
	current *model.Config

	watcher *fsnotify.Watcher
}

// Load reads and validates config.json at st's path, falling back to
// model.Default() if the file does not exist.
func Load(st *store.Store, log zerolog.Logger) (*Service, error) {
	s := &Service{path: st.ConfigPath(), log: log}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns a deep copy of the active config, safe to hold for the
// duration of a single verb.
func (s *Service) Current() *model.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

func (s *Service) reload() error {
	var cfg *model.Config
	if store.Exists(s.path) {
		var loaded model.Config
		if err := store.ReadJSON(s.path, &loaded); err != nil {
			return fmt.Errorf("config: reading config.json: %w", err)
		}
		cfg = &loaded
	} else {
		cfg = model.Default()
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()
	return nil
}

// Validate rejects configs whose transitions reference unknown statuses
// or whose default_status is not itself a configured status.
func Validate(cfg *model.Config) error {
	if len(cfg.Statuses) == 0 {
		return &ValidationError{Reason: "statuses must be non-empty"}
	}
	known := make(map[string]bool, len(cfg.Statuses))
	for _, st := range cfg.Statuses {
		known[st] = true
	}
	if !known[cfg.DefaultStatus] {
		return &ValidationError{Reason: fmt.Sprintf("default_status %q is not in statuses", cfg.DefaultStatus)}
	}
	for from, targets := range cfg.Transitions {
		if !known[from] {
			return &ValidationError{Reason: fmt.Sprintf("transitions reference unknown source status %q", from)}
		}
		for _, to := range targets {
			if !known[to] {
				return &ValidationError{Reason: fmt.Sprintf("transitions[%q] references unknown target status %q", from, to)}
			}
		}
	}
	for target := range cfg.CompletionPolicies {
		if !known[target] {
			return &ValidationError{Reason: fmt.Sprintf("completion_policies references unknown status %q", target)}
		}
	}
	for _, u := range cfg.UniversalTargets {
		if !known[u] {
			return &ValidationError{Reason: fmt.Sprintf("universal_targets references unknown status %q", u)}
		}
	}
	return nil
}

// WatchForChanges starts an fsnotify watcher on config.json and reloads
// the in-memory Config whenever it changes. Reload failures are logged
// and the previous valid config is kept in place — a config.json that is
// briefly invalid mid-edit (e.g. an editor doing write+rename) never
// takes down already-running verbs.
func (s *Service) WatchForChanges() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	if err := w.Add(s.path); err != nil {
		w.Close()
		if !store.Exists(s.path) {
			return nil
		}
		return fmt.Errorf("config: watching config.json: %w", err)
	}
	s.watcher = w
	go s.watchLoop()
	return nil
}

func (s *Service) watchLoop() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := s.reload(); err != nil {
				s.log.Warn().Err(err).Msg("config reload rejected, keeping previous config")
			} else {
				s.log.Info().Msg("config.json reloaded")
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

// Close stops the filesystem watcher, if any is running.
func (s *Service) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

// Save validates and atomically writes cfg to config.json.
func Save(st *store.Store, cfg *model.Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	return store.WriteJSONAtomic(st.ConfigPath(), cfg)
}
