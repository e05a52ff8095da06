// Package correlate attributes code changes to the AI exchanges that most likely caused them.
package correlate

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Chiody/openbbox/internal/exchange"
	"github.com/Chiody/openbbox/internal/git/diffparse"
	"github.com/Chiody/openbbox/internal/logging"
)

const (
	// DefaultWindow is how long after an exchange file changes are attributed to it.
	DefaultWindow = 90 * time.Second
	// DefaultMaxHistory caps buffered file changes between flushes.
	DefaultMaxHistory = 10000
)

// DiffSource yields the repository's pending changes.
type DiffSource interface {
	CombinedDiff(ctx context.Context, paths ...string) []exchange.FileDiff
	UnstagedDiff(ctx context.Context) []exchange.FileDiff
}

// Origin tags an exchange with where it came from.
type Origin struct {
	Source      exchange.SourceIDE
	ProjectID   string
	ProjectName string
}

// Options configure an Engine.
type Options struct {
	Window     time.Duration
	MaxHistory int
	Now        func() time.Time
	Logger     logging.Logger
}

type pendingExchange struct {
	raw    exchange.RawExchange
	origin Origin
}

// Engine buffers exchanges and file changes and turns them into correlated records on Flush.
// All methods are safe for concurrent use.
type Engine struct {
	window     time.Duration
	maxHistory int
	now        func() time.Time
	logger     logging.Logger

	flushMu sync.Mutex

	mu      sync.Mutex
	pending []pendingExchange
	history []exchange.FileChangeEvent
	// openAt is when the prompt still being answered was submitted.
	openAt  time.Time
}

func New(opts Options) *Engine {
	e := &Engine{
		window:     DefaultWindow,
		maxHistory: DefaultMaxHistory,
		now:        time.Now,
		logger:     logging.Nop(),
	}
	if opts.Window > 0 {
		e.window = opts.Window
	}
	if opts.MaxHistory > 0 {
		e.maxHistory = opts.MaxHistory
	}
	if opts.Now != nil {
		e.now = opts.Now
	}
	if opts.Logger != nil {
		e.logger = opts.Logger.With("component", "correlate")
	}
	return e
}

// Window returns the attribution window.
func (e *Engine) Window() time.Duration { return e.window }

// AddExchange queues an exchange for the next flush and reports whether it was
// accepted. Exchanges missing a prompt or a response are dropped. A side that
// normalization would empty keeps its raw text.
func (e *Engine) AddExchange(raw exchange.RawExchange, origin Origin) bool {
	if !raw.Complete() {
		e.logger.Debug("dropping incomplete exchange")
		return false
	}
	norm := raw.Normalize()
	if strings.TrimSpace(norm.Prompt) == "" {
		norm.Prompt = strings.TrimSpace(raw.Prompt)
	}
	if strings.TrimSpace(norm.Response) == "" {
		norm.Response = strings.TrimSpace(raw.Response)
	}
	raw = norm
	if raw.Timestamp.IsZero() {
		raw.Timestamp = e.now()
	}
	if origin.Source == "" {
		origin.Source = exchange.SourceUnknown
	}
	e.mu.Lock()
	e.pending = append(e.pending, pendingExchange{raw: raw, origin: origin})
	e.mu.Unlock()
	return true
}

// OpenPrompt marks a prompt submitted at at whose exchange has not arrived yet.
// Pruning keeps every change from at onward. A zero time clears the mark.
func (e *Engine) OpenPrompt(at time.Time) {
	e.mu.Lock()
	e.openAt = at
	e.mu.Unlock()
}

// AddFileChange records a file change, keeping history ordered by time.
func (e *Engine) AddFileChange(ev exchange.FileChangeEvent) {
	if ev.Path == "" {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	i := len(e.history)
	for i > 0 && e.history[i-1].Timestamp.After(ev.Timestamp) {
		i--
	}
	e.history = append(e.history, exchange.FileChangeEvent{})
	copy(e.history[i+1:], e.history[i:])
	e.history[i] = ev
	if over := len(e.history) - e.maxHistory; over > 0 {
		e.history = append(e.history[:0:0], e.history[over:]...)
	}
}

// Pending returns the number of queued exchanges.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// HistoryLen returns the number of buffered file changes.
func (e *Engine) HistoryLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history)
}

// Flush drains queued exchanges, in arrival order, into correlated records and prunes
// file changes older than twice the window. src may be nil. Exchanges queued while a
// flush is running are left for the next one.
func (e *Engine) Flush(ctx context.Context, src DiffSource) []exchange.CorrelatedExchange {
	return e.flush(ctx, src, true, func(pendingExchange) bool { return true })
}

// FlushSettled is Flush restricted to exchanges whose window has fully elapsed.
// Younger exchanges stay queued. History is only pruned when something was drained.
func (e *Engine) FlushSettled(ctx context.Context, src DiffSource) []exchange.CorrelatedExchange {
	cutoff := e.now().Add(-e.window)
	return e.flush(ctx, src, false, func(p pendingExchange) bool { return !p.raw.Timestamp.After(cutoff) })
}

func (e *Engine) flush(ctx context.Context, src DiffSource, pruneIdle bool, ready func(pendingExchange) bool) []exchange.CorrelatedExchange {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	var batch, keep []pendingExchange
	for _, p := range e.pending {
		if ready(p) {
			batch = append(batch, p)
		} else {
			keep = append(keep, p)
		}
	}
	e.pending = keep
	history := append([]exchange.FileChangeEvent(nil), e.history...)
	e.mu.Unlock()

	var out []exchange.CorrelatedExchange
	if len(batch) > 0 {
		repoDiffs := acquireDiffs(ctx, src)
		out = make([]exchange.CorrelatedExchange, 0, len(batch))
		for _, p := range batch {
			out = append(out, e.correlate(p, history, repoDiffs))
		}
		e.logger.Debug("flushed exchanges", "count", len(out), "changes", len(history), "queued", len(keep))
	}

	if len(batch) > 0 || pruneIdle {
		e.prune()
	}
	return out
}

func acquireDiffs(ctx context.Context, src DiffSource) []exchange.FileDiff {
	if src == nil {
		return nil
	}
	if diffs := src.CombinedDiff(ctx); len(diffs) > 0 {
		return diffs
	}
	return src.UnstagedDiff(ctx)
}

func (e *Engine) correlate(p pendingExchange, history []exchange.FileChangeEvent, repoDiffs []exchange.FileDiff) exchange.CorrelatedExchange {
	raw := p.raw
	candidates := e.candidates(history, raw.Timestamp)

	diffs := append([]exchange.FileDiff(nil), repoDiffs...)
	if len(diffs) == 0 && len(candidates) > 0 {
		diffs = diffparse.Synthesize(candidates)
	}

	projectName := raw.ProjectName
	if projectName == "" {
		projectName = p.origin.ProjectName
	}
	projectID := raw.ProjectPath
	if projectID == "" {
		projectID = p.origin.ProjectID
	}
	if projectID == "" {
		projectID = projectName
	}

	return exchange.CorrelatedExchange{
		ID:          uuid.NewString(),
		Timestamp:   raw.Timestamp,
		ProjectID:   projectID,
		ProjectName: projectName,
		Source: exchange.Source{
			IDE:       p.origin.Source,
			ModelName: raw.ModelName,
			SessionID: raw.SessionID,
		},
		Prompt:           raw.Prompt,
		Response:         raw.Response,
		Title:            Title(raw.Prompt),
		ReasoningExcerpt: Reasoning(raw.Response),
		ContextFiles:     append([]string(nil), raw.ContextFiles...),
		Diffs:            diffs,
		AffectedFiles:    affectedFiles(diffs),
		Score:            Score(raw, diffs, candidates).Total(),
		Status:           exchange.StatusCompleted,
	}
}

// candidates returns the changes within [at, at+window].
func (e *Engine) candidates(history []exchange.FileChangeEvent, at time.Time) []exchange.FileChangeEvent {
	end := at.Add(e.window)
	start := sort.Search(len(history), func(i int) bool {
		return !history[i].Timestamp.Before(at)
	})
	var out []exchange.FileChangeEvent
	for _, ev := range history[start:] {
		if ev.Timestamp.After(end) {
			break
		}
		out = append(out, ev)
	}
	return out
}

// prune drops changes not newer than now-2W. Changes at or after the open
// prompt or the oldest queued exchange are always kept.
func (e *Engine) prune() {
	cutoff := e.now().Add(-2 * e.window)
	e.mu.Lock()
	defer e.mu.Unlock()
	hold := e.openAt
	for _, p := range e.pending {
		if hold.IsZero() || p.raw.Timestamp.Before(hold) {
			hold = p.raw.Timestamp
		}
	}
	i := sort.Search(len(e.history), func(i int) bool {
		ts := e.history[i].Timestamp
		return ts.After(cutoff) || (!hold.IsZero() && !ts.Before(hold))
	})
	if i > 0 {
		e.history = append(e.history[:0:0], e.history[i:]...)
	}
}

func affectedFiles(diffs []exchange.FileDiff) []string {
	seen := make(map[string]struct{}, len(diffs))
	var out []string
	for _, d := range diffs {
		if d.Path == "" {
			continue
		}
		if _, ok := seen[d.Path]; ok {
			continue
		}
		seen[d.Path] = struct{}{}
		out = append(out, d.Path)
	}
	return out
}
