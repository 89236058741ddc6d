//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package cluster

import (
	"context"
	"net"
)

// ListenReusePort falls back to a plain listener where SO_REUSEPORT is not
// available. Only one worker can bind the address there.
func ListenReusePort(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}
