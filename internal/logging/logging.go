// Package logging builds the zap logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/theirongolddev/tokenwise/internal/model"
)

// Options select the level, encoder and sink.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	Output io.Writer
}

// New returns a logger writing to opts.Output (stderr when nil).
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.WarnLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	core := zapcore.NewCore(newEncoder(opts.Format), zapcore.AddSync(out), level)
	return zap.New(core), nil
}

func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "json" {
		return zapcore.NewJSONEncoder(encoderCfg)
	}
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encoderCfg)
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Warnings logs each warning at warn level.
func Warnings(l *zap.Logger, warns []model.Warning) {
	for _, w := range warns {
		fields := []zap.Field{zap.String("kind", string(w.Kind))}
		if w.Path != "" {
			fields = append(fields, zap.String("path", w.Path))
		}
		l.Warn(w.Message, fields...)
	}
}
