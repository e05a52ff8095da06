package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Chiody/openbbox/internal/exchange"
)

func TestIsIgnored(t *testing.T) {
	w := New("/repo", nil, Options{Ignore: []string{"vendor"}})
	cases := []struct {
		p    string
		want bool
	}{
		{"/repo/.git/config", true},
		{"/repo/src/.git", true},
		{"/repo/node_modules/pkg/index.js", true},
		{"/repo/.codex/sessions/log.jsonl", true},
		{"/repo/dist/app.js", true},
		{"/repo/build/app", true},
		{"/repo/.cache/tmp", true},
		{"/repo/pkg/__pycache__/x.cpython.pyc", true},
		{"/repo/main.pyc", true},
		{"/repo/vendor/lib.go", true},
		{"/repo/src/main.go", false},
		{"/repo/src/builder.go", false},
	}
	for _, tc := range cases {
		if got := w.isIgnored(tc.p); got != tc.want {
			t.Fatalf("isIgnored(%q)=%v want %v", tc.p, got, tc.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		op   fsnotify.Op
		want exchange.ChangeKind
		ok   bool
	}{
		{fsnotify.Create, exchange.ChangeCreated, true},
		{fsnotify.Write, exchange.ChangeModified, true},
		{fsnotify.Remove, exchange.ChangeDeleted, true},
		{fsnotify.Rename, exchange.ChangeDeleted, true},
		{fsnotify.Chmod, "", false},
	}
	for _, tc := range cases {
		got, ok := kindOf(tc.op)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("kindOf(%v)=%q,%v want %q,%v", tc.op, got, ok, tc.want, tc.ok)
		}
	}
}

func TestWatcherReportsRelativeChanges(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	events := make(chan exchange.FileChangeEvent, 16)
	w := New(root, func(ev exchange.FileChangeEvent) { events <- ev }, Options{Debounce: 20 * time.Millisecond})
	if err := w.Start(); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	t.Cleanup(w.Stop)

	if err := os.WriteFile(filepath.Join(root, "src", "auth.js"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "auth.js"), []byte("xy"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-events:
		if ev.Path != "src/auth.js" {
			t.Fatalf("path -> %q", ev.Path)
		}
		if ev.Kind != exchange.ChangeCreated {
			t.Fatalf("burst starting with create should stay created, got %s", ev.Kind)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no change reported")
	}
}

func TestWatcherStartRejectsMissingRoot(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), nil, Options{})
	if err := w.Start(); err == nil {
		t.Fatalf("expected error for missing root")
	}
	w.Stop()
}
