// Package whitelist persists the operator-maintained set of process names
// that are exempt from healing. Names are compared case-insensitively and
// without surrounding whitespace.
package whitelist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/KarmveerSingh18/prototype-4/internal/atomicfile"
)

// Normalize returns the canonical form of a process name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Store caches the whitelist file in memory. Load refreshes the cache; a
// failed load keeps the last known set.
type Store struct {
	path   string
	logger *zap.Logger

	mu    sync.RWMutex
	names map[string]struct{}
}

// New creates a store backed by the JSON file at path. Nothing is read
// until Load is called.
func New(path string, logger *zap.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger,
		names:  make(map[string]struct{}),
	}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load re-reads the file and returns the resulting names, sorted. A missing
// file is an empty whitelist. Any other failure is logged and the previous
// in-memory set (empty if none) is kept.
func (s *Store) Load() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.read()
	if err != nil {
		s.logger.Warn("Failed to load whitelist, keeping last known set",
			zap.String("file", s.path),
			zap.Int("entries", len(s.names)),
			zap.Error(err))
		return sortedNames(s.names)
	}
	s.names = names
	return sortedNames(s.names)
}

// Refresh re-reads the file like Load but returns the failure instead of
// keeping the last known set.
func (s *Store) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.read()
	if err != nil {
		return fmt.Errorf("reading whitelist: %w", err)
	}
	s.names = names
	return nil
}

// IsWhitelisted reports whether name is in the cached set.
func (s *Store) IsWhitelisted(name string) bool {
	key := Normalize(name)
	if key == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.names[key]
	return ok
}

// List returns the cached names, sorted.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedNames(s.names)
}

// Add inserts name and persists the set. The file is re-read first so that
// concurrent edits made by other writers are not lost.
func (s *Store) Add(name string) error {
	key := Normalize(name)
	if key == "" {
		return errors.New("empty process name")
	}
	return s.mutate(func(names map[string]struct{}) {
		names[key] = struct{}{}
	})
}

// Remove deletes name and persists the set. removed is false if the file
// did not list name; that is not an error.
func (s *Store) Remove(name string) (removed bool, err error) {
	key := Normalize(name)
	err = s.mutate(func(names map[string]struct{}) {
		_, removed = names[key]
		delete(names, key)
	})
	return removed, err
}

func (s *Store) mutate(fn func(map[string]struct{})) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.read()
	if err != nil {
		return fmt.Errorf("reading whitelist: %w", err)
	}
	fn(names)

	data, err := json.MarshalIndent(sortedNames(names), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding whitelist: %w", err)
	}
	if err := atomicfile.WriteFile(s.path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing whitelist: %w", err)
	}
	s.names = names
	return nil
}

// read parses the file into a normalized set. Must be called with s.mu held.
func (s *Store) read() (map[string]struct{}, error) {
	names := make(map[string]struct{})
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return names, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return names, nil
	}

	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	for _, n := range raw {
		if key := Normalize(n); key != "" {
			names[key] = struct{}{}
		}
	}
	return names, nil
}

func sortedNames(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
