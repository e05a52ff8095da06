package sqlite

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesParentAndEnablesWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
	var mode string
	if err := db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("read journal mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("journal mode -> %q", mode)
	}
}

func TestOpenMemorySharesByName(t *testing.T) {
	a, err := OpenMemory(t.Name())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	if _, err := a.Exec(`CREATE TABLE notes (body TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}

	b, err := OpenMemory(t.Name())
	if err != nil {
		t.Fatalf("open second handle: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	var n int
	if err := b.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'notes'`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("shared table not visible: n=%d err=%v", n, err)
	}

	other, err := OpenMemory(t.Name() + "_other")
	if err != nil {
		t.Fatalf("open other: %v", err)
	}
	t.Cleanup(func() { _ = other.Close() })
	if err := other.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'notes'`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("differently named database shares state: n=%d err=%v", n, err)
	}
}

func TestDSNEncodesPragmas(t *testing.T) {
	got := dsn("/tmp/h.db", nil, []string{"busy_timeout(5000)"})
	if got != "file:/tmp/h.db?_pragma=busy_timeout%285000%29" {
		t.Fatalf("dsn -> %q", got)
	}
}
