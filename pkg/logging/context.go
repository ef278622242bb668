package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type logKey struct{}

var nopLogger = zerolog.Nop()

// Log returns the logger attached to ctx. Contexts without a logger get a
// no-op logger so library code never has to check.
func Log(ctx context.Context) *zerolog.Logger {
	logger := ctx.Value(logKey{})
	if logger == nil {
		return &nopLogger
	}

	return logger.(*zerolog.Logger)
}

// WithLogger attaches the given logger to the context
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	return context.WithValue(ctx, logKey{}, logger)
}

// WithStep returns a context whose logger tags every event with the step name.
func WithStep(ctx context.Context, step string) context.Context {
	logger := Log(ctx).With().Str("step", step).Logger()
	return WithLogger(ctx, &logger)
}
