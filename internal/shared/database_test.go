package shared

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewDatabase(t *testing.T) {
	t.Run("creates parent directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data", "skyroll.db")
		db, err := NewDatabase(path)
		if err != nil {
			t.Fatalf("NewDatabase() error = %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(path); err != nil {
			t.Errorf("database file not created: %v", err)
		}
	})

	t.Run("dsn", func(t *testing.T) {
		tests := map[string]string{
			":memory:":           ":memory:",
			"skyroll.db":         "skyroll.db?_busy_timeout=5000&_journal_mode=WAL",
			"file.db?cache=true": "file.db?cache=true",
		}
		for in, want := range tests {
			if got := sqliteDSN(in); got != want {
				t.Errorf("sqliteDSN(%q) = %q, want %q", in, got, want)
			}
		}
	})
}
