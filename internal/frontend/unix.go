package frontend

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"

	"github.com/datawire/dlib/dlog"

	"github.com/benaryorg/lxddns/internal/lxderr"
	"github.com/benaryorg/lxddns/internal/pdns"
)

// RunUnix accepts connections on a Unix domain socket at socketPath and
// serves each with ServeStream, bounding concurrent connections to
// workers (0 means unlimited). It removes a stale socket file left behind
// by a previous run before binding.
func RunUnix(ctx context.Context, socketPath string, workers int, engine *pdns.Engine) error {
	if info, err := os.Stat(socketPath); err == nil {
		if info.Mode()&os.ModeSocket != 0 {
			dlog.Warnf(ctx, "removing stale socket at %s", socketPath)
			if err := os.Remove(socketPath); err != nil {
				return lxderr.UnixServerError.New(err)
			}
		}
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return lxderr.UnixServerError.New(err)
	}

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	var sem chan struct{}
	if workers > 0 {
		sem = make(chan struct{}, workers)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				// The goroutine above closed the listener because the
				// process is shutting down: a clean exit, not a failure.
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return lxderr.UnixServerClosed.New(err)
			}
			return lxderr.UnixServerError.New(err)
		}

		if sem != nil {
			sem <- struct{}{}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem != nil {
				defer func() { <-sem }()
			}
			dlog.Debug(ctx, "unix connection opened")
			connCtx := dlog.WithField(ctx, "remote", conn.LocalAddr().String())
			if err := ServeStream(connCtx, conn, conn, engine); err != nil {
				dlog.Debugf(connCtx, "unix connection closed with error: %v", err)
			} else {
				dlog.Debug(connCtx, "unix connection closed")
			}
			_ = conn.Close()
		}()
	}
}
