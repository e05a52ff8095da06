package storage

import (
	"path/filepath"
	"testing"
)

func TestResolveDataDirOverride(t *testing.T) {
	t.Setenv(DataDirEnv, "/tmp/obb")
	got, err := resolveDataDir("linux")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "/tmp/obb" {
		t.Fatalf("override -> %q", got)
	}
}

func TestResolveDataDirXDG(t *testing.T) {
	t.Setenv(DataDirEnv, "")
	t.Setenv("XDG_DATA_HOME", "/xdg")
	got, err := resolveDataDir("linux")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if want := filepath.Join("/xdg", "openbbox"); got != want {
		t.Fatalf("xdg -> %q want %q", got, want)
	}
}

func TestDataDirCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "home")
	t.Setenv(DataDirEnv, dir)
	got, err := DataDir()
	if err != nil {
		t.Fatalf("data dir: %v", err)
	}
	if got != dir {
		t.Fatalf("data dir -> %q", got)
	}
	if DatabasePath(dir) != filepath.Join(dir, "history.db") || LogPath(dir) != filepath.Join(dir, "openbbox.log") {
		t.Fatalf("unexpected derived paths")
	}
}
