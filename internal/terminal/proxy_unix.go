//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package terminal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// pollTimeout bounds how long the relay loop blocks in select between signal checks.
const pollTimeout = 50 * time.Millisecond

// hangupGrace is how long a child gets to exit after its terminal is closed.
const hangupGrace = 2 * time.Second

// Start runs command on a pseudo-terminal and relays I/O until the child exits
// or the relay fails. It returns the child's exit status. Only a failure to
// start the command is reported as an error; relay errors end the session.
func (p *Proxy) Start(ctx context.Context, command string, args ...string) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	log := p.logger()
	in, out := p.stdin(), p.stdout()

	cmd := exec.Command(command, args...)
	cmd.Dir = p.Dir
	cmd.Env = p.env()
	inFd := int(in.Fd())
	interactive := term.IsTerminal(inFd)
	// The child starts at the terminal's size so its first layout is right.
	var size *pty.Winsize
	if interactive {
		ws, err := pty.GetsizeFull(in)
		if err != nil {
			log.Debug("read terminal size failed", "error", err)
		} else {
			size = ws
		}
	}
	ptmx, err := pty.StartWithSize(cmd, size)
	if err != nil {
		return -1, fmt.Errorf("start %s: %w", command, err)
	}

	if interactive {
		state, err := term.MakeRaw(inFd)
		if err != nil {
			log.Warn("enter raw mode failed", "error", err)
		} else {
			defer func() { _ = term.Restore(inFd, state) }()
		}
	}

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	defer signal.Stop(stop)

	seg := NewSegmenter(p.MinResponseChars, p.OnExchange)
	seg.OnPrompt = p.OnPrompt
	r := relay{in: in, inFd: inFd, outFd: int(out.Fd()), ptmx: ptmx, seg: seg, winch: winch, stop: stop}
	reason := r.loop(ctx)
	log.Debug("relay ended", "reason", reason)

	_ = ptmx.Close()
	status := waitChild(cmd, hangupGrace)
	seg.Close()
	return status, nil
}

type relay struct {
	in    *os.File
	inFd  int
	outFd int
	ptmx  *os.File
	seg   *Segmenter
	winch <-chan os.Signal
	stop  <-chan os.Signal
}

// loop multiplexes the real terminal and the pty master on a single goroutine.
func (r *relay) loop(ctx context.Context) string {
	ptyFd := int(r.ptmx.Fd())
	nfd := max(r.inFd, ptyFd) + 1
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return "context done"
		case sig := <-r.stop:
			return "signal " + sig.String()
		case <-r.winch:
			if term.IsTerminal(r.inFd) {
				_ = pty.InheritSize(r.in, r.ptmx)
			}
		default:
		}

		var readable unix.FdSet
		readable.Set(r.inFd)
		readable.Set(ptyFd)
		tv := unix.NsecToTimeval(pollTimeout.Nanoseconds())
		if _, err := unix.Select(nfd, &readable, nil, nil, &tv); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return "select: " + err.Error()
		}

		// Drain child output first so a final burst is not lost behind user input.
		if readable.IsSet(ptyFd) {
			n, err := unix.Read(ptyFd, buf)
			if n > 0 {
				if werr := writeAll(r.outFd, buf[:n]); werr != nil {
					return "write terminal: " + werr.Error()
				}
				r.seg.Output(buf[:n])
			}
			if retryable(err) {
				continue
			}
			if err != nil || n == 0 {
				return "child closed"
			}
		}
		if readable.IsSet(r.inFd) {
			n, err := unix.Read(r.inFd, buf)
			if n > 0 {
				if werr := writeAll(ptyFd, buf[:n]); werr != nil {
					return "write child: " + werr.Error()
				}
				r.seg.Input(buf[:n])
			}
			if retryable(err) {
				continue
			}
			if err != nil {
				return "read terminal: " + err.Error()
			}
			if n == 0 {
				return "terminal closed"
			}
		}
	}
}

func retryable(err error) bool {
	return errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN)
}

func writeAll(fd int, p []byte) error {
	for len(p) > 0 {
		n, err := unix.Write(fd, p)
		if err != nil {
			if retryable(err) {
				continue
			}
			return err
		}
		p = p[n:]
	}
	return nil
}

// waitChild reaps the child, killing it if it outlives grace after hangup.
func waitChild(cmd *exec.Cmd, grace time.Duration) int {
	if cmd.Process == nil {
		return -1
	}
	_ = cmd.Process.Signal(syscall.SIGHUP)
	timer := time.AfterFunc(grace, func() { _ = cmd.Process.Kill() })
	defer timer.Stop()
	_ = cmd.Wait()
	return exitStatus(cmd.ProcessState)
}

func exitStatus(ps *os.ProcessState) int {
	if ps == nil {
		return -1
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ps.ExitCode()
}
