// Package recorder wires capture sources to the correlation engine and persists its output.
package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/Chiody/openbbox/internal/correlate"
	"github.com/Chiody/openbbox/internal/exchange"
	"github.com/Chiody/openbbox/internal/logging"
)

// DefaultFlushInterval is how often settled exchanges are flushed.
const DefaultFlushInterval = 30 * time.Second

// Store persists correlated records.
type Store interface {
	Save(ctx context.Context, rec exchange.CorrelatedExchange) error
}

// ChangeSource is a background producer of file changes, such as a watcher.
type ChangeSource interface {
	Start() error
	Stop()
}

type Options struct {
	Engine        *correlate.Engine
	Diffs         correlate.DiffSource
	Store         Store
	Watcher       ChangeSource
	Origin        correlate.Origin
	FlushInterval time.Duration
	Logger        logging.Logger
	// OnRecord is called after each record has been handed to the store.
	OnRecord func(exchange.CorrelatedExchange)
}

// Recorder owns a correlation session. Exchanges and file changes may arrive from
// any goroutine; flushing and storage run on the recorder's own goroutine.
type Recorder struct {
	engine   *correlate.Engine
	diffs    correlate.DiffSource
	store    Store
	watcher  ChangeSource
	origin   correlate.Origin
	interval time.Duration
	logger   logging.Logger
	onRecord func(exchange.CorrelatedExchange)

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// Stats summarizes a session.
type Stats struct {
	Exchanges int
	Dropped   int
	Changes   int
	Saved     int
	Failed    int
}

func New(opts Options) *Recorder {
	r := &Recorder{
		engine:   opts.Engine,
		diffs:    opts.Diffs,
		store:    opts.Store,
		watcher:  opts.Watcher,
		origin:   opts.Origin,
		interval: DefaultFlushInterval,
		logger:   logging.Nop(),
		onRecord: opts.OnRecord,
	}
	if r.engine == nil {
		r.engine = correlate.New(correlate.Options{Logger: opts.Logger})
	}
	if opts.FlushInterval > 0 {
		r.interval = opts.FlushInterval
	}
	if opts.Logger != nil {
		r.logger = opts.Logger.With("component", "recorder")
	}
	return r
}

// HandleExchange queues a captured exchange. It never blocks on git or storage.
func (r *Recorder) HandleExchange(raw exchange.RawExchange) {
	if !r.engine.AddExchange(raw, r.origin) {
		r.count(func(s *Stats) { s.Dropped++ })
		r.logger.Warn("exchange dropped", "prompt_chars", len(raw.Prompt), "response_chars", len(raw.Response))
		return
	}
	r.count(func(s *Stats) { s.Exchanges++ })
	r.logger.Debug("exchange captured", "prompt_chars", len(raw.Prompt), "response_chars", len(raw.Response))
}

// HandlePrompt notes that a prompt was submitted at at and its reply is still
// streaming, so file changes from then on survive until the exchange arrives.
func (r *Recorder) HandlePrompt(at time.Time) {
	r.engine.OpenPrompt(at)
}

// HandleChange records a file change.
func (r *Recorder) HandleChange(ev exchange.FileChangeEvent) {
	r.engine.AddFileChange(ev)
	r.count(func(s *Stats) { s.Changes++ })
}

// Start launches the watcher, if any, and the periodic flush loop.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	if r.watcher != nil {
		if err := r.watcher.Start(); err != nil {
			r.logger.Warn("file watcher unavailable", "error", err)
		}
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(ctx, r.stop, r.done)
}

func (r *Recorder) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.persist(ctx, r.engine.FlushSettled(ctx, r.diffs))
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Close stops background work and flushes everything still queued.
func (r *Recorder) Close(ctx context.Context) Stats {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	if r.watcher != nil {
		r.watcher.Stop()
	}
	r.persist(ctx, r.engine.Flush(ctx, r.diffs))
	return r.Stats()
}

// Flush flushes every queued exchange immediately.
func (r *Recorder) Flush(ctx context.Context) int {
	recs := r.engine.Flush(ctx, r.diffs)
	r.persist(ctx, recs)
	return len(recs)
}

func (r *Recorder) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

func (r *Recorder) persist(ctx context.Context, recs []exchange.CorrelatedExchange) {
	for _, rec := range recs {
		if r.store != nil {
			if err := r.store.Save(ctx, rec); err != nil {
				r.logger.Warn("save exchange failed", "id", rec.ID, "error", err)
				r.count(func(s *Stats) { s.Failed++ })
				continue
			}
		}
		r.count(func(s *Stats) { s.Saved++ })
		r.logger.Info("exchange recorded",
			"id", rec.ID,
			"title", rec.Title,
			"files", len(rec.AffectedFiles),
			"score", rec.Score,
		)
		if r.onRecord != nil {
			r.onRecord(rec)
		}
	}
}

func (r *Recorder) count(fn func(*Stats)) {
	r.statsMu.Lock()
	fn(&r.stats)
	r.statsMu.Unlock()
}
