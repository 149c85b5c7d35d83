// Package logging builds the zap logger used by the webcodecs command.
package logging

import (
	"context"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

type Option func(*zap.Config)

// WithLogLevel sets the minimum level. Unknown levels fall back to debug.
func WithLogLevel(level string) Option {
	return func(c *zap.Config) {
		ll := zapcore.DebugLevel
		_ = ll.Set(level)
		c.Level.SetLevel(ll)
	}
}

func WithLogFormat(format string) Option {
	return func(c *zap.Config) {
		switch format {
		case LogFormatConsole:
			c.Encoding = LogFormatConsole
		default:
			c.Encoding = LogFormatJSON
		}
	}
}

// WithOutputPaths replaces the default stderr output.
func WithOutputPaths(paths ...string) Option {
	return func(c *zap.Config) {
		if len(paths) > 0 {
			c.OutputPaths = paths
		}
	}
}

// New builds a production logger. Sampling and stack traces are off.
func New(opts ...Option) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Sampling = nil
	zc.DisableStacktrace = true
	zc.OutputPaths = []string{"stderr"}

	for _, opt := range opts {
		opt(&zc)
	}

	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	l.Debug("logger created", zap.String("log_level", zc.Level.String()))
	return l, nil
}

// Init creates a logger and attaches it to ctx. Retrieve it with
// ctxzap.Extract.
func Init(ctx context.Context, opts ...Option) (context.Context, error) {
	l, err := New(opts...)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(l)
	return ctxzap.ToContext(ctx, l), nil
}
