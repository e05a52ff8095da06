package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Chiody/openbbox/internal/correlate"
	"github.com/Chiody/openbbox/internal/exchange"
)

type memoryStore struct {
	mu   sync.Mutex
	recs []exchange.CorrelatedExchange
	fail bool
}

func (s *memoryStore) Save(_ context.Context, rec exchange.CorrelatedExchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("disk full")
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memoryStore) saved() []exchange.CorrelatedExchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]exchange.CorrelatedExchange(nil), s.recs...)
}

type fakeWatcher struct {
	started, stopped bool
	err              error
}

func (w *fakeWatcher) Start() error { w.started = true; return w.err }
func (w *fakeWatcher) Stop()        { w.stopped = true }

func prompt(at time.Time) exchange.RawExchange {
	return exchange.RawExchange{
		Timestamp: at,
		Prompt:    "fix the login bug",
		Response:  "I updated auth.js to fix the null check.",
	}
}

func TestCloseFlushesAndPersists(t *testing.T) {
	now := time.Now()
	store := &memoryStore{}
	watcher := &fakeWatcher{}
	var seen []string
	r := New(Options{
		Store:    store,
		Watcher:  watcher,
		Origin:   correlate.Origin{Source: exchange.SourceClaudeCode, ProjectID: "/src/api", ProjectName: "api"},
		OnRecord: func(rec exchange.CorrelatedExchange) { seen = append(seen, rec.ID) },
	})
	r.Start(context.Background())
	r.HandleExchange(prompt(now))
	r.HandleChange(exchange.FileChangeEvent{Path: "src/auth.js", Kind: exchange.ChangeModified, Timestamp: now.Add(2 * time.Second)})

	stats := r.Close(context.Background())
	if !watcher.started || !watcher.stopped {
		t.Fatalf("watcher lifecycle not driven: %+v", watcher)
	}
	if diff := cmp.Diff(Stats{Exchanges: 1, Changes: 1, Saved: 1}, stats); diff != "" {
		t.Fatalf("stats (-want +got):\n%s", diff)
	}
	recs := store.saved()
	if len(recs) != 1 {
		t.Fatalf("expected one saved record, got %d", len(recs))
	}
	rec := recs[0]
	if diff := cmp.Diff([]string{"src/auth.js"}, rec.AffectedFiles); diff != "" {
		t.Fatalf("affected files (-want +got):\n%s", diff)
	}
	if rec.Source.IDE != exchange.SourceClaudeCode || rec.ProjectID != "/src/api" {
		t.Fatalf("origin not applied: %+v", rec)
	}
	if diff := cmp.Diff([]string{rec.ID}, seen); diff != "" {
		t.Fatalf("OnRecord (-want +got):\n%s", diff)
	}
}

func TestPeriodicFlushPersistsSettledExchanges(t *testing.T) {
	store := &memoryStore{}
	r := New(Options{
		Engine:        correlate.New(correlate.Options{Window: 20 * time.Millisecond}),
		Store:         store,
		FlushInterval: 10 * time.Millisecond,
	})
	r.Start(context.Background())
	defer r.Close(context.Background())

	r.HandleExchange(prompt(time.Now().Add(-time.Second)))
	deadline := time.Now().Add(5 * time.Second)
	for len(store.saved()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("settled exchange was never flushed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPeriodicFlushWaitsForWindow(t *testing.T) {
	store := &memoryStore{}
	r := New(Options{
		Engine:        correlate.New(correlate.Options{Window: time.Hour}),
		Store:         store,
		FlushInterval: 5 * time.Millisecond,
	})
	r.Start(context.Background())
	r.HandleExchange(prompt(time.Now()))
	time.Sleep(50 * time.Millisecond)
	if n := len(store.saved()); n != 0 {
		t.Fatalf("young exchange flushed early: %d", n)
	}
	if stats := r.Close(context.Background()); stats.Saved != 1 {
		t.Fatalf("close should flush the young exchange, stats %+v", stats)
	}
}

func TestStoreFailureIsCounted(t *testing.T) {
	store := &memoryStore{fail: true}
	r := New(Options{Store: store, Watcher: &fakeWatcher{err: errors.New("no inotify")}})
	r.Start(context.Background())
	r.HandleExchange(prompt(time.Now()))
	stats := r.Close(context.Background())
	if stats.Failed != 1 || stats.Saved != 0 {
		t.Fatalf("stats -> %+v", stats)
	}
}

func TestFlushWithoutStart(t *testing.T) {
	r := New(Options{})
	r.HandleExchange(prompt(time.Now()))
	if n := r.Flush(context.Background()); n != 1 {
		t.Fatalf("flush -> %d", n)
	}
	if stats := r.Close(context.Background()); stats.Saved != 1 {
		t.Fatalf("stats -> %+v", stats)
	}
}

func TestSlowReplyKeepsItsChanges(t *testing.T) {
	store := &memoryStore{}
	r := New(Options{
		Engine:        correlate.New(correlate.Options{Window: 100 * time.Millisecond}),
		Store:         store,
		FlushInterval: 20 * time.Millisecond,
	})
	r.Start(context.Background())

	promptAt := time.Now()
	r.HandlePrompt(promptAt)
	r.HandleChange(exchange.FileChangeEvent{Path: "src/auth.js", Kind: exchange.ChangeModified, Timestamp: promptAt.Add(10 * time.Millisecond)})
	time.Sleep(350 * time.Millisecond)
	r.HandleExchange(prompt(promptAt))
	r.HandlePrompt(time.Now())

	stats := r.Close(context.Background())
	if stats.Saved != 1 {
		t.Fatalf("stats -> %+v", stats)
	}
	rec := store.saved()[0]
	if diff := cmp.Diff([]string{"src/auth.js"}, rec.AffectedFiles); diff != "" {
		t.Fatalf("affected files (-want +got):\n%s", diff)
	}
	if rec.Score == 0 {
		t.Fatalf("slow reply scored zero")
	}
}

func TestIncompleteExchangeIsCountedAsDropped(t *testing.T) {
	r := New(Options{})
	r.HandleExchange(exchange.RawExchange{Prompt: "fix it"})
	r.HandleExchange(exchange.RawExchange{
		Prompt:   "<system_reminder>ctx</system_reminder>",
		Response: "I refactored the handler for you.",
	})
	stats := r.Close(context.Background())
	if diff := cmp.Diff(Stats{Exchanges: 1, Dropped: 1, Saved: 1}, stats); diff != "" {
		t.Fatalf("stats (-want +got):\n%s", diff)
	}
}
