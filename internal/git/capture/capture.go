// Package capture produces best-effort diffs of a repository's pending changes.
//
// Every method degrades to an empty result when the repository or the git
// binary misbehaves; errors are logged at debug level and never returned.
package capture

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/Chiody/openbbox/internal/exchange"
	"github.com/Chiody/openbbox/internal/git/diffparse"
	"github.com/Chiody/openbbox/internal/git/runner"
	"github.com/Chiody/openbbox/internal/logging"
)

// emptyTreeHash is git's well-known id for the empty tree; diffing against it avoids writing objects.
const emptyTreeHash = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// Capture reads pending changes from the repository containing Root.
type Capture struct {
	root   string
	run    runner.Runner
	logger logging.Logger
}

// Options tune a Capture.
type Options struct {
	GitBin  string
	Timeout time.Duration
	Runner  runner.Runner
	Logger  logging.Logger
}

func New(root string, opts Options) *Capture {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	r := opts.Runner
	if r == nil {
		r = runner.NewExecRunner(opts.GitBin, opts.Timeout)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Capture{root: root, run: r, logger: logger.With("component", "capture")}
}

func (c *Capture) open() (*git.Repository, error) {
	return git.PlainOpenWithOptions(c.root, &git.PlainOpenOptions{DetectDotGit: true})
}

// Root returns the top-level directory of the work tree, or the configured path when it is not a repository.
func (c *Capture) Root() string {
	repo, err := c.open()
	if err != nil {
		return c.root
	}
	wt, err := repo.Worktree()
	if err != nil {
		return c.root
	}
	return wt.Filesystem.Root()
}

// Branch returns the current branch name, or the HEAD hash when detached.
func (c *Capture) Branch() string {
	repo, err := c.open()
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	if head.Name().IsBranch() {
		return head.Name().Short()
	}
	return head.Hash().String()
}

// HasCommits reports whether HEAD resolves to a commit. Unborn branches report false.
func (c *Capture) HasCommits() bool {
	repo, err := c.open()
	if err != nil {
		return false
	}
	head, err := repo.Head()
	if err != nil {
		return false
	}
	_, err = repo.CommitObject(head.Hash())
	return err == nil
}

// CombinedDiff returns staged and unstaged changes, optionally limited to paths.
func (c *Capture) CombinedDiff(ctx context.Context, paths ...string) []exchange.FileDiff {
	if c.HasCommits() {
		raw, err := c.diff(ctx, withPaths([]string{"diff", "HEAD"}, paths)...)
		if err != nil {
			c.logger.Debug("combined diff failed", "error", err)
			return nil
		}
		return diffparse.Parse(raw)
	}
	staged, err := c.diff(ctx, withPaths([]string{"diff", "--cached", emptyTreeHash}, paths)...)
	if err != nil {
		c.logger.Debug("staged diff against empty tree failed", "error", err)
	}
	unstaged, uerr := c.diff(ctx, withPaths([]string{"diff"}, paths)...)
	if uerr != nil {
		c.logger.Debug("unstaged diff failed", "error", uerr)
	}
	return diffparse.Parse(staged + "\n" + unstaged)
}

// UnstagedDiff returns working tree changes relative to the index.
func (c *Capture) UnstagedDiff(ctx context.Context) []exchange.FileDiff {
	raw, err := c.diff(ctx, "diff")
	if err != nil {
		c.logger.Debug("unstaged diff failed", "error", err)
		return nil
	}
	return diffparse.Parse(raw)
}

// StagedDiff returns index changes relative to HEAD, or to the empty tree before the first commit.
func (c *Capture) StagedDiff(ctx context.Context) []exchange.FileDiff {
	args := []string{"diff", "--cached"}
	if !c.HasCommits() {
		args = append(args, emptyTreeHash)
	}
	raw, err := c.diff(ctx, args...)
	if err != nil {
		c.logger.Debug("staged diff failed", "error", err)
		return nil
	}
	return diffparse.Parse(raw)
}

// DirtyFiles returns the sorted union of staged, unstaged and untracked paths relative to the work tree root.
func (c *Capture) DirtyFiles(ctx context.Context) []string {
	dirty := make(map[string]struct{})
	stagedArgs := []string{"diff", "--name-only", "--cached"}
	if !c.HasCommits() {
		stagedArgs = append(stagedArgs, emptyTreeHash)
	}
	for _, args := range [][]string{stagedArgs, {"diff", "--name-only"}} {
		out, err := c.run.Run(ctx, c.root, args...)
		if err != nil {
			c.logger.Debug("list changed files failed", "error", err)
			continue
		}
		for _, line := range strings.Split(out, "\n") {
			if p := strings.TrimSpace(line); p != "" {
				dirty[p] = struct{}{}
			}
		}
	}
	for _, p := range c.untracked() {
		dirty[p] = struct{}{}
	}
	list := make([]string, 0, len(dirty))
	for p := range dirty {
		list = append(list, p)
	}
	sort.Strings(list)
	return list
}

func (c *Capture) untracked() []string {
	repo, err := c.open()
	if err != nil {
		c.logger.Debug("open repository failed", "error", err)
		return nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil
	}
	status, err := wt.Status()
	if err != nil {
		c.logger.Debug("worktree status failed", "error", err)
		return nil
	}
	var out []string
	for path, st := range status {
		if st.Worktree == git.Untracked {
			out = append(out, filepath.ToSlash(path))
		}
	}
	return out
}

// FileStatus is a porcelain-style status code for one path.
type FileStatus struct {
	Path string `json:"path"`
	Code string `json:"code"`
}

// Status lists changed paths with short status codes (M, A, D, R, C, ??), sorted by path.
// The staged code wins over the worktree code.
func (c *Capture) Status() []FileStatus {
	repo, err := c.open()
	if err != nil {
		return nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil
	}
	status, err := wt.Status()
	if err != nil {
		c.logger.Debug("worktree status failed", "error", err)
		return nil
	}
	out := make([]FileStatus, 0, len(status))
	for path, st := range status {
		code := statusCode(st.Staging)
		if code == "" {
			code = statusCode(st.Worktree)
		}
		if code != "" {
			out = append(out, FileStatus{Path: filepath.ToSlash(path), Code: code})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func statusCode(v git.StatusCode) string {
	switch v {
	case git.Modified, git.UpdatedButUnmerged:
		return "M"
	case git.Added:
		return "A"
	case git.Deleted:
		return "D"
	case git.Renamed:
		return "R"
	case git.Copied:
		return "C"
	case git.Untracked:
		return "??"
	default:
		return ""
	}
}

func (c *Capture) diff(ctx context.Context, args ...string) (string, error) {
	// Explicit prefixes keep "diff --git a/X b/Y" headers predictable.
	full := append([]string{args[0], "--no-color", "--no-ext-diff", "--src-prefix=a/", "--dst-prefix=b/"}, args[1:]...)
	out, err := c.run.Run(ctx, c.root, full...)
	if err != nil {
		return "", err
	}
	return out, nil
}

func withPaths(args, paths []string) []string {
	if len(paths) == 0 {
		return args
	}
	return append(append(args, "--"), paths...)
}

// Commit is a short description of a recent commit.
type Commit struct {
	Hash         string    `json:"hash"`
	Message      string    `json:"message"`
	Author       string    `json:"author"`
	When         time.Time `json:"when"`
	FilesChanged int       `json:"filesChanged"`
}

var errStopLog = errors.New("stop")

// RecentCommits returns up to n commits reachable from HEAD, newest first.
func (c *Capture) RecentCommits(n int) []Commit {
	if n <= 0 {
		return nil
	}
	repo, err := c.open()
	if err != nil {
		return nil
	}
	head, err := repo.Head()
	if err != nil {
		return nil
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		c.logger.Debug("read commit log failed", "error", err)
		return nil
	}
	defer iter.Close()
	var out []Commit
	_ = iter.ForEach(func(commit *object.Commit) error {
		entry := Commit{
			Hash:    commit.Hash.String()[:8],
			Message: strings.TrimSpace(commit.Message),
			Author:  commit.Author.Name + " <" + commit.Author.Email + ">",
			When:    commit.Author.When,
		}
		if stats, err := commit.Stats(); err == nil {
			entry.FilesChanged = len(stats)
		}
		out = append(out, entry)
		if len(out) >= n {
			return errStopLog
		}
		return nil
	})
	return out
}
