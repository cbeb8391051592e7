// Package memo implements dialogkit.memo, a translation memo that maps the
// MD5 of an encoded source line to the translator's answer, per language
// pair. Game dialogue repeats a lot (system messages, battle callouts), so
// remembering answers saves translator calls and keeps repeated lines
// consistent.
//
// Keys are computed on the placeholder-encoded text, so the cached
// translation still contains placeholders and is decoded by the caller
// with the restoration table of the current line.
package memo

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileName is the default memo file name.
const FileName = "dialogkit.memo"

// Version is the memo file format version.
const Version = 1

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Memo represents the dialogkit.memo file structure.
type Memo struct {
	Version int                          `yaml:"version"`
	Entries map[string]map[string]string `yaml:"entries"` // pair -> md5 -> translation

	mu    sync.Mutex `yaml:"-"`
	path  string     `yaml:"-"`
	dirty bool       `yaml:"-"`
}

// New returns an empty in-memory memo that saves to dir.
func New(dir string) *Memo {
	return &Memo{
		Version: Version,
		Entries: make(map[string]map[string]string),
		path:    filepath.Join(dir, FileName),
	}
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads a memo file from the given directory.
// Returns an empty memo if the file doesn't exist.
func Load(dir string) (*Memo, error) {
	m := New(dir)

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("reading %s: %w", m.path, err)
	}

	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", m.path, err)
	}
	if m.Version > Version {
		return nil, fmt.Errorf("%s: unsupported memo version %d", m.path, m.Version)
	}
	if m.Entries == nil {
		m.Entries = make(map[string]map[string]string)
	}

	return m, nil
}

// Save writes the memo to disk if it changed since the last save.
func (m *Memo) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.path == "" {
		return fmt.Errorf("memo file path not set")
	}
	if !m.dirty {
		return nil
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling memo: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("creating memo directory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", m.path, err)
	}
	m.dirty = false

	return nil
}

// Path returns the memo file path.
func (m *Memo) Path() string {
	return m.path
}

// ---------------------------------------------------------------------------
// Lookup and store
// ---------------------------------------------------------------------------

// Hash computes the MD5 hex digest of a string.
func Hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// PairKey builds the section key for a language pair, e.g. "ja>zh-TW".
func PairKey(from, to string) string {
	return from + ">" + to
}

// Lookup returns the remembered translation of text.
func (m *Memo) Lookup(from, to, text string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, ok := m.Entries[PairKey(from, to)]
	if !ok {
		return "", false
	}
	translated, ok := entries[Hash(text)]
	return translated, ok
}

// Store remembers the translation of text.
func (m *Memo) Store(from, to, text, translated string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pair := PairKey(from, to)
	if m.Entries[pair] == nil {
		m.Entries[pair] = make(map[string]string)
	}
	m.Entries[pair][Hash(text)] = translated
	m.dirty = true
}

// RemovePair forgets every translation of a language pair.
func (m *Memo) RemovePair(from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Entries[PairKey(from, to)]; ok {
		delete(m.Entries, PairKey(from, to))
		m.dirty = true
	}
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats returns the number of language pairs and total entries.
func (m *Memo) Stats() (pairs, entries int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pairs = len(m.Entries)
	for _, e := range m.Entries {
		entries += len(e)
	}
	return
}

// Pairs returns the sorted list of language pair keys.
func (m *Memo) Pairs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	pairs := make([]string, 0, len(m.Entries))
	for p := range m.Entries {
		pairs = append(pairs, p)
	}
	sort.Strings(pairs)
	return pairs
}

// Summary returns a human-readable summary string.
func (m *Memo) Summary() string {
	pairs, entries := m.Stats()
	if pairs == 0 {
		return "empty"
	}

	var parts []string
	for _, p := range m.Pairs() {
		m.mu.Lock()
		n := len(m.Entries[p])
		m.mu.Unlock()
		parts = append(parts, fmt.Sprintf("%s: %d", p, n))
	}
	return fmt.Sprintf("%d pairs, %d entries (%s)", pairs, entries, strings.Join(parts, ", "))
}
