package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Chiody/openbbox/internal/exchange"
	"github.com/Chiody/openbbox/internal/logging"
)

// DefaultDebounce coalesces bursts of events on one path.
const DefaultDebounce = 200 * time.Millisecond

// defaultIgnored lists directory and file names never reported.
var defaultIgnored = []string{
	".git", ".codex", ".openbbox", "node_modules", "dist", "build", ".cache",
	"__pycache__", ".next", ".venv", "venv", ".DS_Store",
}

var ignoredSuffixes = []string{".pyc", ".pyo", ".swp", "~"}

// Options tune a Watcher.
type Options struct {
	Debounce time.Duration
	Ignore   []string
	Logger   logging.Logger
}

type pendingChange struct {
	event exchange.FileChangeEvent
	timer *time.Timer
}

// Watcher reports file changes below a repository root, one event per path per burst.
type Watcher struct {
	root     string
	onChange func(exchange.FileChangeEvent)
	logger   logging.Logger
	debounce time.Duration
	ignored  map[string]struct{}
	now      func() time.Time

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	pending map[string]*pendingChange
	done    chan struct{}
}

func New(root string, onChange func(exchange.FileChangeEvent), opts Options) *Watcher {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	w := &Watcher{
		root:     root,
		onChange: onChange,
		logger:   logging.Nop(),
		debounce: DefaultDebounce,
		ignored:  map[string]struct{}{},
		now:      time.Now,
		pending:  map[string]*pendingChange{},
	}
	if opts.Logger != nil {
		w.logger = opts.Logger.With("component", "watcher")
	}
	if opts.Debounce > 0 {
		w.debounce = opts.Debounce
	}
	for _, name := range append(append([]string{}, defaultIgnored...), opts.Ignore...) {
		if name = strings.TrimSpace(name); name != "" {
			w.ignored[name] = struct{}{}
		}
	}
	return w
}

// Start begins watching the root recursively. It is a no-op when already started.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}
	info, err := os.Stat(w.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("watch root is not a directory: " + w.root)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.addRecursive(fsw, w.root)
	w.fsw = fsw
	w.done = make(chan struct{})
	go w.observe(fsw, w.done)
	w.logger.Info("watching repository", "root", w.root)
	return nil
}

// Stop closes the underlying watcher and drops pending, not yet reported events.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fsw, done := w.fsw, w.done
	w.fsw, w.done = nil, nil
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	if fsw != nil {
		_ = fsw.Close()
		<-done
	}
}

func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != w.root && w.isIgnored(path) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			w.logger.Debug("watch directory failed", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) observe(fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if w.isIgnored(ev.Name) {
				continue
			}
			kind, ok := kindOf(ev.Op)
			if !ok {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					w.addRecursive(fsw, ev.Name)
					continue
				}
			}
			w.schedule(ev.Name, kind)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func kindOf(op fsnotify.Op) (exchange.ChangeKind, bool) {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return exchange.ChangeDeleted, true
	case op.Has(fsnotify.Create):
		return exchange.ChangeCreated, true
	case op.Has(fsnotify.Write):
		return exchange.ChangeModified, true
	default:
		return "", false
	}
}

// schedule records a change and reports it once the path has been quiet for the debounce delay.
// Within a burst the first timestamp is kept; a create stays a create unless the file is removed.
func (w *Watcher) schedule(abs string, kind exchange.ChangeKind) {
	rel := w.relative(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return
	}
	if p, ok := w.pending[rel]; ok {
		p.timer.Stop()
		if kind == exchange.ChangeDeleted || p.event.Kind != exchange.ChangeCreated {
			p.event.Kind = kind
		}
		p.timer = w.fireAfter(rel, p)
		return
	}
	p := &pendingChange{event: exchange.FileChangeEvent{Path: rel, Kind: kind, Timestamp: w.now()}}
	p.timer = w.fireAfter(rel, p)
	w.pending[rel] = p
}

func (w *Watcher) fireAfter(rel string, p *pendingChange) *time.Timer {
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		cur, ok := w.pending[rel]
		if !ok || cur != p || cur.timer != t {
			w.mu.Unlock()
			return
		}
		delete(w.pending, rel)
		ev := cur.event
		fn := w.onChange
		w.mu.Unlock()
		if fn != nil {
			fn(ev)
		}
	})
	return t
}

func (w *Watcher) relative(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// isIgnored reports whether any path segment is an ignored name or the file has an ignored suffix.
func (w *Watcher) isIgnored(path string) bool {
	if path == "" {
		return false
	}
	rel := path
	if r, err := filepath.Rel(w.root, path); err == nil && !strings.HasPrefix(r, "..") {
		rel = r
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if _, ok := w.ignored[seg]; ok {
			return true
		}
	}
	for _, suffix := range ignoredSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}
