// Package notify keeps the set of prayer notifications already sent,
// persisted to a JSON file so a restart does not notify twice.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultPath is where the notified keys are stored unless configured otherwise.
const DefaultPath = "./data/notified-prayers.json"

// Store is a set of notification keys backed by a file.
// The in-memory set is authoritative; write failures are logged and ignored.
type Store struct {
	mu   sync.Mutex
	path string
	keys map[string]struct{}
	log  *slog.Logger
}

// NewStore creates an empty Store persisting to path. Call Load to read
// previously saved keys.
func NewStore(path string, log *slog.Logger) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{
		path: path,
		keys: make(map[string]struct{}),
		log:  log,
	}
}

// Key builds the notification key for a prayer of an entity on a date.
func Key(entityID int64, prayerKey string, date time.Time) string {
	return fmt.Sprintf("%d_%s_%s", entityID, prayerKey, date.Format(time.DateOnly))
}

// ReminderKey builds the key for the reminder sent before a prayer.
func ReminderKey(entityID int64, prayerKey string, date time.Time) string {
	return fmt.Sprintf("%d_%s_before_%s", entityID, prayerKey, date.Format(time.DateOnly))
}

// Path returns the file the store persists to.
func (s *Store) Path() string {
	return s.path
}

// Load reads the saved keys into the set. A missing file is not an error.
// A malformed file leaves the set untouched and returns an error.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info("no notifications file, starting fresh", "path", s.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read notifications file: %w", err)
	}

	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("decode notifications file %s: %w", s.path, err)
	}

	s.mu.Lock()
	for _, k := range keys {
		s.keys[k] = struct{}{}
	}
	n := len(s.keys)
	s.mu.Unlock()

	s.log.Info("loaded notification records", "path", s.path, "count", n)
	return nil
}

// WasNotified reports whether key has been marked.
func (s *Store) WasNotified(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// MarkAsNotified adds key to the set and rewrites the file.
func (s *Store) MarkAsNotified(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = struct{}{}
	s.saveLocked()
}

// Clear empties the set and rewrites the file.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.keys)
	s.saveLocked()
	s.log.Info("cleared prayer notifications")
}

// PruneBefore removes keys dated before date (YYYY-MM-DD) and keys with no
// readable date, rewrites the file and returns how many were removed.
func (s *Store) PruneBefore(date string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k := range s.keys {
		d, ok := keyDate(k)
		if ok && d >= date {
			continue
		}
		delete(s.keys, k)
		removed++
	}
	s.saveLocked()
	s.log.Info("pruned prayer notifications", "before", date, "removed", removed, "kept", len(s.keys))
	return removed
}

// keyDate returns the date suffix of a key.
func keyDate(key string) (string, bool) {
	i := strings.LastIndexByte(key, '_')
	if i < 0 {
		return "", false
	}
	d := key[i+1:]
	if _, err := time.Parse(time.DateOnly, d); err != nil {
		return "", false
	}
	return d, true
}

// Count returns the number of keys in the set.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Save rewrites the file with the current set.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked()
}

func (s *Store) saveLocked() {
	if err := s.writeLocked(); err != nil {
		s.log.Error("save notified prayers", "path", s.path, "error", err)
	}
}

func (s *Store) writeLocked() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}

	keys := make([]string, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return fmt.Errorf("encode notifications: %w", err)
	}

	// Replace atomically through a sibling temp file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write notifications file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace notifications file: %w", err)
	}
	return nil
}
