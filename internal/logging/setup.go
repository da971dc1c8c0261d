package logging

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/datawire/dlib/dlog"
)

// envPrefix namespaces the log-level override so it doesn't collide with
// an unrelated LOG_LEVEL in the process environment.
const envPrefix = "LXDDNS_"

// WithBaseLogger attaches a logrus-backed dlog.Logger to ctx, honoring an
// explicit level (from the CLI -v flag) and falling back to the
// LXDDNS_LOG_LEVEL, then LOG_LEVEL environment variables, defaulting to info.
func WithBaseLogger(ctx context.Context, level string) context.Context {
	logger := logrus.New()
	logger.SetFormatter(NewFormatter("2006-01-02 15:04:05.000"))

	if level == "" {
		level = os.Getenv(envPrefix + "LOG_LEVEL")
	}
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	return dlog.WithLogger(ctx, dlog.WrapLogrus(logger))
}
