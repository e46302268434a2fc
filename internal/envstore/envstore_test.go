package envstore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/skyroll/internal/shared"
)

func newStore(t *testing.T, content string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to seed store: %v", err)
		}
	}
	return New(path)
}

func TestStore(t *testing.T) {
	t.Run("Read missing file is empty", func(t *testing.T) {
		s := newStore(t, "")
		text, err := s.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if text != "" {
			t.Errorf("expected empty content, got %q", text)
		}
		if _, ok := s.GetValue("ANY"); ok {
			t.Error("expected no value in missing store")
		}
	})

	t.Run("Write normalizes trailing newline", func(t *testing.T) {
		s := newStore(t, "")
		if err := s.Write("A=1\nB=2\n\n\n"); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		text, _ := s.Read()
		if text != "A=1\nB=2\n" {
			t.Errorf("unexpected content %q", text)
		}

		info, err := os.Stat(s.Path())
		if err != nil {
			t.Fatalf("stat failed: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
		}
	})

	t.Run("GetValue", func(t *testing.T) {
		s := newStore(t, "# comment\n  DROPBOX_APP_KEY_0=abc\nDROPBOX_APP_KEY_0=second\nURL=http://x?a=b\n")

		tests := []struct {
			key   string
			want  string
			found bool
		}{
			{"DROPBOX_APP_KEY_0", "abc", true},
			{"URL", "http://x?a=b", true},
			{"DROPBOX_APP_KEY", "", false},
			{"MISSING", "", false},
		}

		for _, tt := range tests {
			got, ok := s.GetValue(tt.key)
			if ok != tt.found || got != tt.want {
				t.Errorf("GetValue(%q) = (%q, %v), want (%q, %v)", tt.key, got, ok, tt.want, tt.found)
			}
		}

		if !s.HasKey("URL") || s.HasKey("comment") {
			t.Error("HasKey mismatch")
		}
	})

	t.Run("EditLines keeps key and line count", func(t *testing.T) {
		s := newStore(t, "# header\nA=1\nDROPBOX_ACCESS_TOKEN_0=old\nB=2\n")
		before, _ := s.Lines()

		n, err := s.EditLines([]Edit{{Pattern: `^DROPBOX_ACCESS_TOKEN_0=`, NewValue: "new"}})
		if err != nil {
			t.Fatalf("EditLines() error = %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 edited line, got %d", n)
		}

		if v, _ := s.GetValue("DROPBOX_ACCESS_TOKEN_0"); v != "new" {
			t.Errorf("expected new, got %q", v)
		}

		after, _ := s.Lines()
		if len(after) != len(before) {
			t.Errorf("line count changed from %d to %d", len(before), len(after))
		}
		if after[0].Text != "# header" {
			t.Errorf("foreign line not preserved: %q", after[0].Text)
		}
	})

	t.Run("EditLines replaces entire line", func(t *testing.T) {
		s := newStore(t, "DROPBOX_APP_KEY_1=k\n")
		if _, err := s.EditLines([]Edit{{Pattern: `^DROPBOX_APP_KEY_1=`, NewValue: "DROPBOX_APP_KEY_0=k", ReplaceEntireLine: true}}); err != nil {
			t.Fatalf("EditLines() error = %v", err)
		}
		if v, ok := s.GetValue("DROPBOX_APP_KEY_0"); !ok || v != "k" {
			t.Errorf("expected renamed key, got (%q, %v)", v, ok)
		}
		if s.HasKey("DROPBOX_APP_KEY_1") {
			t.Error("old key should be gone")
		}
	})

	t.Run("EditLines rejects bad pattern", func(t *testing.T) {
		s := newStore(t, "A=1\n")
		if _, err := s.EditLines([]Edit{{Pattern: "("}}); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("RemoveLines", func(t *testing.T) {
		s := newStore(t, "DROPBOX_APP_KEY_0=a\nDROPBOX_APP_SECRET_0=b\nOTHER=c\n")
		n, err := s.RemoveLines(`^DROPBOX_.*_0=`)
		if err != nil {
			t.Fatalf("RemoveLines() error = %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 removed, got %d", n)
		}
		text, _ := s.Read()
		if text != "OTHER=c\n" {
			t.Errorf("unexpected content %q", text)
		}
	})

	t.Run("WriteLines appends and replaces", func(t *testing.T) {
		s := newStore(t, "A=1\n")
		if err := s.WriteLines([]string{"B=2"}, true); err != nil {
			t.Fatalf("WriteLines() error = %v", err)
		}
		if text, _ := s.Read(); text != "A=1\nB=2\n" {
			t.Errorf("unexpected content after append %q", text)
		}

		if err := s.WriteLines([]string{"C=3"}, false); err != nil {
			t.Fatalf("WriteLines() error = %v", err)
		}
		if text, _ := s.Read(); text != "C=3\n" {
			t.Errorf("unexpected content after replace %q", text)
		}
	})

	t.Run("Set upserts", func(t *testing.T) {
		s := newStore(t, "# keep\nA=1\n")
		if err := s.Set(map[string]string{"A": "9", "C": "3", "B": "2"}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		text, _ := s.Read()
		if text != "# keep\nA=9\nB=2\nC=3\n" {
			t.Errorf("unexpected content %q", text)
		}

		keys, err := s.Keys()
		if err != nil {
			t.Fatalf("Keys() error = %v", err)
		}
		if strings.Join(keys, ",") != "A,B,C" {
			t.Errorf("unexpected keys %v", keys)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t, "A=1\nB=2\nC=3\n")
		n, err := s.Delete("A", "C", "Z")
		if err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 removed, got %d", n)
		}
		if text, _ := s.Read(); text != "B=2\n" {
			t.Errorf("unexpected content %q", text)
		}
	})

	t.Run("Rewrite aborts on error", func(t *testing.T) {
		s := newStore(t, "A=1\n")
		boom := errors.New("boom")
		err := s.Rewrite(func(lines []Line) ([]Line, error) {
			return nil, boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
		if text, _ := s.Read(); text != "A=1\n" {
			t.Errorf("store should be unchanged, got %q", text)
		}
	})

	t.Run("concurrent Set loses no updates", func(t *testing.T) {
		s := newStore(t, "")
		var wg sync.WaitGroup
		keys := []string{"K0", "K1", "K2", "K3", "K4", "K5", "K6", "K7"}
		for _, k := range keys {
			wg.Add(1)
			go func(k string) {
				defer wg.Done()
				if err := s.Set(map[string]string{k: "v"}); err != nil {
					t.Errorf("Set(%s) error = %v", k, err)
				}
			}(k)
		}
		wg.Wait()

		for _, k := range keys {
			if !s.HasKey(k) {
				t.Errorf("lost update for %s", k)
			}
		}
	})
}

func TestLine(t *testing.T) {
	tests := []struct {
		text  string
		key   string
		isKV  bool
		value string
	}{
		{"A=1", "A", true, "1"},
		{"  A=1  ", "A", true, "1"},
		{"A=", "A", true, ""},
		{"=1", "", false, "1"},
		{"# comment", "", false, ""},
		{"", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			l := Line{Text: tt.text}
			k, ok := l.Key()
			if k != tt.key || ok != tt.isKV {
				t.Errorf("Key() = (%q, %v), want (%q, %v)", k, ok, tt.key, tt.isKV)
			}
			if v := l.Value(); v != tt.value {
				t.Errorf("Value() = %q, want %q", v, tt.value)
			}
		})
	}
}
