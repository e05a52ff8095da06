//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package terminal

import "context"

// Start always fails on platforms without pseudo-terminals, before the real terminal is touched.
func (p *Proxy) Start(ctx context.Context, command string, args ...string) (int, error) {
	return -1, ErrUnsupportedPlatform
}
