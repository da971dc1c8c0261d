package frontend

import (
	"context"
	"io"

	"github.com/benaryorg/lxddns/internal/pdns"
)

// RunPipe serves a single stream over r/w - typically stdin/stdout, the
// transport PowerDNS speaks to when configured with a "pipe" remote
// backend.
func RunPipe(ctx context.Context, r io.Reader, w io.Writer, engine *pdns.Engine) error {
	return ServeStream(ctx, r, w, engine)
}
