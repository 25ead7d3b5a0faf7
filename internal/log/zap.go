package log

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LevelNone disables leveled logging entirely.
	LevelNone = "none"
	// LevelDefault is used when no level is configured.
	LevelDefault = "info"
)

// New returns a zap logger at the given level that writes into the global sink.
func New(level string) (*zap.Logger, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		level = LevelDefault
	}
	if level == LevelNone {
		return zap.NewNop(), nil
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(globalSink),
		zap.NewAtomicLevelAt(lvl),
	)
	return zap.New(core), nil
}

// MustNew is New that falls back to a no-op logger on a bad level.
func MustNew(level string) *zap.Logger {
	l, err := New(level)
	if err != nil {
		Printf("invalid log level %q: %v", level, err)
		return zap.NewNop()
	}
	return l
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
