package terminal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Chiody/openbbox/internal/exchange"
	"github.com/Chiody/openbbox/internal/logging"
)

// ErrUnsupportedPlatform is returned when the OS has no pseudo-terminal facility.
var ErrUnsupportedPlatform = errors.New("terminal proxy requires a unix-like OS with pseudo-terminal support")

// Proxy relays an interactive child process through a pseudo-terminal and
// reports the prompt/response exchanges it observes.
type Proxy struct {
	// Stdin and Stdout are the real terminal; they default to os.Stdin and os.Stdout.
	Stdin  *os.File
	Stdout *os.File
	// Dir and Env configure the child; Env defaults to the current environment.
	Dir string
	Env []string

	MinResponseChars int
	OnExchange       func(exchange.RawExchange)
	// OnPrompt is called with the submit time of each prompt still awaiting its reply.
	OnPrompt         func(time.Time)
	Logger           logging.Logger
}

func (p *Proxy) stdin() *os.File {
	if p.Stdin != nil {
		return p.Stdin
	}
	return os.Stdin
}

func (p *Proxy) stdout() *os.File {
	if p.Stdout != nil {
		return p.Stdout
	}
	return os.Stdout
}

func (p *Proxy) logger() logging.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return logging.Nop()
}

func (p *Proxy) env() []string {
	env := p.Env
	if env == nil {
		env = os.Environ()
	}
	if !envHasKey(env, "TERM") {
		env = append(env, "TERM=xterm-256color")
	}
	return env
}

func envHasKey(env []string, key string) bool {
	for _, kv := range env {
		if strings.HasPrefix(kv, key+"=") {
			return true
		}
	}
	return false
}

// DefaultCommand returns the command wrapped when none is given.
func DefaultCommand() string { return "claude" }

// DetectShell returns the user's login shell.
func DetectShell() string {
	if s := os.Getenv("SHELL"); s != "" {
		return s
	}
	return "/bin/sh"
}

// ShellArgs returns arguments that make a shell behave as a login shell.
func ShellArgs(shell string) []string {
	switch filepath.Base(shell) {
	case "bash", "zsh", "fish":
		return []string{"-l"}
	default:
		return nil
	}
}
