// Package envstore persists provider credentials as a flat KEY=VALUE text file.
//
// The file is parsed into an ordered slice of [Line] values, mutated, and serialized back in full.
// Lines that are not KEY=VALUE pairs (including blank lines) are kept verbatim.
// Every mutating operation holds the store mutex across the whole read → modify → write cycle and
// persists before returning, so concurrent editors within the process cannot lose updates.
package envstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/desertthunder/skyroll/internal/shared"
)

// Line is one line of the credential file.
type Line struct {
	Text string
}

// KV builds a KEY=VALUE line.
func KV(key, value string) Line {
	return Line{Text: key + "=" + value}
}

// Key returns the key of a KEY=VALUE line, or false for foreign lines.
func (l Line) Key() (string, bool) {
	trimmed := strings.TrimSpace(l.Text)
	idx := strings.Index(trimmed, "=")
	if idx <= 0 {
		return "", false
	}
	return trimmed[:idx], true
}

// Value returns everything after the first "=" of the trimmed line.
func (l Line) Value() string {
	trimmed := strings.TrimSpace(l.Text)
	idx := strings.Index(trimmed, "=")
	if idx < 0 {
		return ""
	}
	return trimmed[idx+1:]
}

// Edit describes one regex-targeted line edit for [Store.EditLines].
type Edit struct {
	Pattern           string
	NewValue          string
	ReplaceEntireLine bool
}

// Store is a file-backed credential store.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a Store bound to path. The file does not need to exist yet.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Read returns the full text of the store. A missing file reads as empty content.
func (s *Store) Read() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Write atomically replaces the store content with text, normalizing the trailing newline.
func (s *Store) Write(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(parse(text))
}

// WriteLines appends lines to the store, or replaces its content when appendMode is false.
func (s *Store) WriteLines(lines []string, appendMode bool) error {
	return s.Rewrite(func(current []Line) ([]Line, error) {
		if !appendMode {
			current = nil
		}
		for _, l := range lines {
			current = append(current, Line{Text: l})
		}
		return current, nil
	})
}

// EditLines applies each edit to every line its pattern matches and returns the number of lines changed.
//
// Edits are applied independently and in order. Without ReplaceEntireLine only the text after the first
// "=" is replaced, keeping the key intact.
func (s *Store) EditLines(edits []Edit) (int, error) {
	compiled := make([]*regexp.Regexp, len(edits))
	for i, e := range edits {
		re, err := regexp.Compile(e.Pattern)
		if err != nil {
			return 0, fmt.Errorf("%w: bad pattern %q: %v", shared.ErrInvalidInput, e.Pattern, err)
		}
		compiled[i] = re
	}

	changed := 0
	err := s.Rewrite(func(lines []Line) ([]Line, error) {
		for i, e := range edits {
			for j, l := range lines {
				if !compiled[i].MatchString(l.Text) {
					continue
				}
				if e.ReplaceEntireLine {
					lines[j] = Line{Text: e.NewValue}
				} else {
					idx := strings.Index(l.Text, "=")
					if idx < 0 {
						continue
					}
					lines[j] = Line{Text: l.Text[:idx+1] + e.NewValue}
				}
				changed++
			}
		}
		return lines, nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// RemoveLines deletes every line matching pattern and returns how many were removed.
func (s *Store) RemoveLines(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("%w: bad pattern %q: %v", shared.ErrInvalidInput, pattern, err)
	}

	removed := 0
	err = s.Rewrite(func(lines []Line) ([]Line, error) {
		kept := lines[:0]
		for _, l := range lines {
			if re.MatchString(l.Text) {
				removed++
				continue
			}
			kept = append(kept, l)
		}
		return kept, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// GetValue returns the value of the first line whose trimmed content starts with "key=".
// An unreadable store is treated as empty.
func (s *Store) GetValue(key string) (string, bool) {
	lines, err := s.Lines()
	if err != nil {
		return "", false
	}
	prefix := key + "="
	for _, l := range lines {
		trimmed := strings.TrimSpace(l.Text)
		if strings.HasPrefix(trimmed, prefix) {
			return trimmed[len(prefix):], true
		}
	}
	return "", false
}

// HasKey reports whether any line defines key.
func (s *Store) HasKey(key string) bool {
	_, ok := s.GetValue(key)
	return ok
}

// Lines returns a parsed snapshot of the store.
func (s *Store) Lines() ([]Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Keys returns every key defined in the store, in file order.
func (s *Store) Keys() ([]string, error) {
	lines, err := s.Lines()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(lines))
	for _, l := range lines {
		if k, ok := l.Key(); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Set upserts values. Existing keys are edited in place; new keys are appended in sorted order.
func (s *Store) Set(values map[string]string) error {
	return s.Rewrite(func(lines []Line) ([]Line, error) {
		seen := make(map[string]bool, len(values))
		for i, l := range lines {
			k, ok := l.Key()
			if !ok || seen[k] {
				continue
			}
			if v, found := values[k]; found {
				lines[i] = KV(k, v)
				seen[k] = true
			}
		}

		missing := make([]string, 0, len(values))
		for k := range values {
			if !seen[k] {
				missing = append(missing, k)
			}
		}
		sort.Strings(missing)
		for _, k := range missing {
			lines = append(lines, KV(k, values[k]))
		}
		return lines, nil
	})
}

// Delete removes every line defining one of keys and returns how many lines were removed.
func (s *Store) Delete(keys ...string) (int, error) {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}

	removed := 0
	err := s.Rewrite(func(lines []Line) ([]Line, error) {
		kept := lines[:0]
		for _, l := range lines {
			if k, ok := l.Key(); ok && drop[k] {
				removed++
				continue
			}
			kept = append(kept, l)
		}
		return kept, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Rewrite runs fn over the current lines and persists the result as one critical section.
// Nothing is written when fn returns an error.
func (s *Store) Rewrite(fn func([]Line) ([]Line, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.load()
	if err != nil {
		return err
	}

	updated, err := fn(lines)
	if err != nil {
		return err
	}

	return s.write(updated)
}

func (s *Store) read() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credential store: %w", err)
	}
	return string(data), nil
}

func (s *Store) load() ([]Line, error) {
	text, err := s.read()
	if err != nil {
		return nil, err
	}
	return parse(text), nil
}

// write serializes lines into a temp file beside the store and renames it into place.
func (s *Store) write(lines []Line) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credential store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(serialize(lines)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credential store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync credential store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential store: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to set credential store permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace credential store: %w", err)
	}
	return nil
}

func parse(text string) []Line {
	text = strings.TrimRight(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if text == "" {
		return nil
	}
	raw := strings.Split(text, "\n")
	lines := make([]Line, len(raw))
	for i, r := range raw {
		lines[i] = Line{Text: r}
	}
	return lines
}

func serialize(lines []Line) string {
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.Text)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
