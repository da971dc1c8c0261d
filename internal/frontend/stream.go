// Package frontend contains the thin transport adapters (pipe, unix
// socket) that feed newline-delimited JSON lines to a pdns.Engine. The
// engine itself is transport-oblivious; these adapters only handle
// framing and I/O.
package frontend

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/datawire/dlib/dlog"

	"github.com/benaryorg/lxddns/internal/pdns"
)

// ServeStream reads newline-delimited JSON requests from r, feeds each to
// engine, and writes the response to w, one line at a time, in strict FIFO
// order. It returns when the stream closes cleanly, a line fails
// to parse, or a write/flush fails - never partway through a line.
func ServeStream(ctx context.Context, r io.Reader, w io.Writer, engine *pdns.Engine) error {
	reader := bufio.NewReader(r)
	writer := bufio.NewWriter(w)

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) == 0 && errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			dlog.Debugf(ctx, "stream read error: %v", err)
			return err
		}

		response, respondErr := engine.Respond(ctx, line)
		if respondErr != nil {
			dlog.Warnf(ctx, "closing stream: %v", respondErr)
			return respondErr
		}

		if _, writeErr := writer.Write(response); writeErr != nil {
			dlog.Warnf(ctx, "closing stream due to write error: %v", writeErr)
			return writeErr
		}
		if flushErr := writer.Flush(); flushErr != nil {
			dlog.Warnf(ctx, "closing stream due to flush error: %v", flushErr)
			return flushErr
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}
