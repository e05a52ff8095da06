package runner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// Runner executes git subcommands in a repository and returns decoded stdout.
type Runner interface {
	Run(ctx context.Context, root string, args ...string) (string, error)
}

// ExecRunner executes the configured git binary.
// Output that is not valid UTF-8 has the offending bytes replaced with U+FFFD.
type ExecRunner struct {
	GitBin  string
	Timeout time.Duration
}

func NewExecRunner(gitBin string, timeout time.Duration) *ExecRunner {
	if strings.TrimSpace(gitBin) == "" {
		gitBin = "git"
	}
	return &ExecRunner{GitBin: gitBin, Timeout: timeout}
}

func (e *ExecRunner) Run(ctx context.Context, root string, args ...string) (string, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, e.GitBin, args...)
	if strings.TrimSpace(root) != "" {
		cmd.Dir = root
	}
	// Keep pagers, prompts and colour codes out of machine-read output.
	cmd.Env = append(cmd.Environ(), "GIT_PAGER=cat", "GIT_TERMINAL_PROMPT=0", "NO_COLOR=1")
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(errb.String())
		if msg == "" {
			msg = strings.TrimSpace(out.String())
		}
		if ctx.Err() != nil {
			msg = ctx.Err().Error()
		}
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", sanitizeArgs(args), redactTokens(msg))
	}
	return strings.ToValidUTF8(out.String(), "�"), nil
}

var (
	safeWord       = regexp.MustCompile(`^[a-z][a-z-]*$`)
	credentialURL  = regexp.MustCompile(`https?://[^\s@]+@`)
	credentialPair = regexp.MustCompile(`(?i)(token|secret|password|passwd|bearer)=[^\s]+`)
)

// sanitizeArgs keeps at most the first two leading subcommand words so paths and urls never reach logs.
func sanitizeArgs(args []string) string {
	if len(args) == 0 {
		return "<no-args>"
	}
	safe := make([]string, 0, 2)
	for _, a := range args {
		if !safeWord.MatchString(a) {
			break
		}
		safe = append(safe, a)
		if len(safe) == 2 {
			break
		}
	}
	if len(safe) == 0 {
		return "<redacted>"
	}
	return strings.Join(safe, " ")
}

func redactTokens(s string) string {
	s = credentialURL.ReplaceAllString(s, "https://<redacted>@")
	return credentialPair.ReplaceAllString(s, "$1=<redacted>")
}
