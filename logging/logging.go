// Package logging builds the zap loggers used by the runtime components.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultLogLevel = "info"

// Options selects the logger flavour.
type Options struct {
	// Level is used when LOG_LEVEL is unset or invalid.
	Level string
	// JSON emits structured JSON instead of console lines.
	JSON bool
	// Output paths; default stderr so stdout stays free for dialogue.
	OutputPaths []string
}

// ResolveLevel picks the level from LOG_LEVEL, then fallback, then info.
func ResolveLevel(fallback string) zap.AtomicLevel {
	level := zap.NewAtomicLevel()
	for _, candidate := range []string{os.Getenv("LOG_LEVEL"), fallback, defaultLogLevel} {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == "" {
			continue
		}
		if err := level.UnmarshalText([]byte(candidate)); err == nil {
			return level
		}
	}
	return level
}

// New constructs a zap logger.
func New(opts Options) (*zap.Logger, error) {
	encoderCfg := zapcore.EncoderConfig{
		MessageKey: "message",
		TimeKey:    "timestamp",
		LevelKey:   "severity",
		EncodeTime: zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(strings.ToUpper(level.String()))
		},
		NameKey:        "logger",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	encoding := "json"
	if !opts.JSON {
		encoding = "console"
		encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	outputs := opts.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	cfg := zap.Config{
		Level:             ResolveLevel(opts.Level),
		Encoding:          encoding,
		EncoderConfig:     encoderCfg,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !opts.JSON,
		DisableStacktrace: true,
	}

	return cfg.Build()
}

// Printf adapts a logger to the printf-style hooks of the translate package.
func Printf(logger *zap.Logger, level zapcore.Level) func(format string, args ...any) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sugar := logger.WithOptions(zap.AddCallerSkip(1)).Sugar()
	return func(format string, args ...any) {
		sugar.Logf(level, format, args...)
	}
}
