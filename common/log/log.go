// Package log provides the structured logger used across the client. It is a
// thin layer over a zap SugaredLogger so that call sites can log key/value
// pairs without depending on zap directly.
package log

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the interface every component logs through.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Fatalw(msg string, keysAndValues ...interface{})
	With(keysAndValues ...interface{}) Logger
	Named(name string) Logger
}

// Levels accepted by New.
const (
	DebugLevel = int(zapcore.DebugLevel)
	InfoLevel  = int(zapcore.InfoLevel)
	WarnLevel  = int(zapcore.WarnLevel)
	ErrorLevel = int(zapcore.ErrorLevel)
	FatalLevel = int(zapcore.FatalLevel)
)

const (
	// DefaultLevel is the level of the logger returned by DefaultLogger.
	DefaultLevel = InfoLevel
)

type zapLogger struct {
	*zap.SugaredLogger
}

func (z *zapLogger) With(keysAndValues ...interface{}) Logger {
	return &zapLogger{z.SugaredLogger.With(keysAndValues...)}
}

func (z *zapLogger) Named(name string) Logger {
	return &zapLogger{z.SugaredLogger.Named(name)}
}

// New returns a logger writing to output (stdout when nil) at the given level,
// using JSON encoding when isJSON is set and a console encoding otherwise.
func New(output zapcore.WriteSyncer, level int, isJSON bool) Logger {
	if output == nil {
		output = zapcore.Lock(os.Stdout)
	}
	return NewZapLogger(zapcore.NewCore(getEncoder(isJSON), output, zapcore.Level(level)))
}

// NewZapLogger wraps an existing zap core.
func NewZapLogger(core zapcore.Core, opts ...zap.Option) Logger {
	opts = append(opts, zap.AddCaller())
	return &zapLogger{zap.New(core, opts...).Sugar()}
}

func getEncoder(isJSON bool) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if isJSON {
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

var (
	defaultLogger     Logger
	defaultLoggerOnce sync.Once
)

// DefaultLogger is the logger used when none is configured.
func DefaultLogger() Logger {
	defaultLoggerOnce.Do(func() {
		defaultLogger = New(nil, DefaultLevel, false)
	})
	return defaultLogger
}

type ctxKey struct{}

// ToContext attaches l to ctx.
func ToContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContextOrDefault returns the logger stored in ctx, or DefaultLogger.
func FromContextOrDefault(ctx context.Context) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
			return l
		}
	}
	return DefaultLogger()
}
