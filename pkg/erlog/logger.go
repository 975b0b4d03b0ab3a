// Package erlog provides the structured logging façade used across the
// entity resolution engine. Every component accepts a Logger instead of
// reaching for a global, so tests can pass NopLogger and production
// callers can pass a zap-backed logger already configured with their own
// sinks and sampling.
package erlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the narrow interface every component depends on. Keyvals are
// alternating key/value pairs, mirroring the zap SugaredLogger calling
// convention so the zap-backed implementation never has to reshape args.
type Logger interface {
	Debug(msg string, keyvals...any)
	Info(msg string, keyvals...any)
	Warn(msg string, keyvals...any)
	Error(msg string, keyvals...any)
	With(keyvals...any) Logger
}

// zapLogger adapts a *zap.SugaredLogger to Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

// New wraps an existing *zap.Logger.
func New(z *zap.Logger) Logger {
	return &zapLogger{s: z.Sugar()}
}

// NewProduction builds a JSON zap logger at the given minimum level,
// suitable for a long-running pipeline process.
func NewProduction(level zapcore.Level) (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return New(z), nil
}

func (l *zapLogger) Debug(msg string, keyvals...any) { l.s.Debugw(msg, keyvals...) }
func (l *zapLogger) Info(msg string, keyvals...any) { l.s.Infow(msg, keyvals...) }
func (l *zapLogger) Warn(msg string, keyvals...any) { l.s.Warnw(msg, keyvals...) }
func (l *zapLogger) Error(msg string, keyvals...any) { l.s.Errorw(msg, keyvals...) }

func (l *zapLogger) With(keyvals...any) Logger {
	return &zapLogger{s: l.s.With(keyvals...)}
}

// nopLogger discards everything; used by tests and by components
// constructed without an explicit logger.
type nopLogger struct{}

func (nopLogger) Debug(string,...any) {}
func (nopLogger) Info(string,...any) {}
func (nopLogger) Warn(string,...any) {}
func (nopLogger) Error(string,...any) {}
func (n nopLogger) With(...any) Logger { return n }

// NopLogger returns a Logger that discards all messages.
func NopLogger() Logger { return nopLogger{} }
