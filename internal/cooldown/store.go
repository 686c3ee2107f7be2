// Package cooldown keeps named millisecond values in a flat TOML file so
// several bot processes, or a person with a text editor, can share timers.
package cooldown

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

const header = "# Cooldown timestamps (ms since epoch)\n"

// PersistenceError reports a failed rewrite of the backing file. The
// in-memory value that triggered it stays authoritative.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist cooldowns to %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Entry is one named value, as listed by All.
type Entry struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// Store is safe for concurrent use. Writers from other processes are not
// coordinated: the last full rewrite wins.
type Store struct {
	path string

	mu      sync.RWMutex
	values  map[string]int64
	lastErr error

	writeMu sync.Mutex
}

// Open loads path best-effort. A missing or unreadable file yields an empty
// store. Lines that do not parse and entries that are not integers are
// skipped.
func Open(path string) *Store {
	s := &Store{path: path, values: make(map[string]int64)}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("cooldown: failed to read %s: %v", s.path, err)
		}
		return
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		log.Printf("cooldown: %s is not valid TOML, reading it line by line: %v", s.path, err)
		raw = parseLines(data)
	}
	for name, v := range raw {
		n, ok := v.(int64)
		if !ok {
			log.Printf("cooldown: skipping %q: not an integer", name)
			continue
		}
		s.values[normalize(name)] = n
	}
}

// parseLines decodes each line on its own so one bad entry does not hide the
// others. Unparsable lines are skipped.
func parseLines(data []byte) map[string]any {
	raw := make(map[string]any)
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var entry map[string]any
		if err := toml.Unmarshal([]byte(line), &entry); err != nil {
			log.Printf("cooldown: skipping line %d: %v", i+1, err)
			continue
		}
		for name, v := range entry {
			raw[name] = v
		}
	}
	return raw
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Get returns the value stored under name, matched case-insensitively.
func (s *Store) Get(name string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[normalize(name)]
	return v, ok
}

// Put stores value under name and rewrites the whole file. A failed write is
// logged and kept for LastError; the new value is still visible to Get.
func (s *Store) Put(name string, value int64) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.values[normalize(name)] = value
	snapshot := make(map[string]int64, len(s.values))
	for k, v := range s.values {
		snapshot[k] = v
	}
	s.mu.Unlock()

	err := s.persist(snapshot)
	if err != nil {
		log.Printf("cooldown: %v", err)
	}

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// LastError returns the error from the most recent Put, if it failed.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// All lists every entry sorted by name.
func (s *Store) All() []Entry {
	s.mu.RLock()
	entries := make([]Entry, 0, len(s.values))
	for k, v := range s.values {
		entries = append(entries, Entry{Name: k, Value: v})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

func (s *Store) persist(values map[string]int64) error {
	body, err := toml.Marshal(values)
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}

	var buf bytes.Buffer
	buf.WriteString(header)
	buf.Write(body)

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".cooldowns-*.tmp")
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return &PersistenceError{Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	return nil
}
