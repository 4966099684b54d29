package log

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	mu       sync.RWMutex
	sugar    *zap.SugaredLogger
	level    = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	initOnce sync.Once
)

// initLogger installs the default logger (production JSON to stderr) unless
// Configure has already replaced it.
func initLogger() {
	initOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if sugar != nil {
			return
		}
		l, err := build("json")
		if err != nil {
			l = zap.NewNop()
		}
		sugar = l.Sugar()
	})
}

// Configure rebuilds the global logger.
//
//   - level:  debug | info | error (case-insensitive, empty = info)
//   - format: json (default) | console
func Configure(lvl, format string) error {
	parsed, err := ParseLevel(lvl)
	if err != nil {
		return err
	}
	l, err := build(format)
	if err != nil {
		return fmt.Errorf("log: build logger: %w", err)
	}

	initOnce.Do(func() {})
	mu.Lock()
	old := sugar
	sugar = l.Sugar()
	mu.Unlock()
	if old != nil {
		_ = old.Sync()
	}

	SetLevel(parsed)
	return nil
}

func build(format string) (*zap.Logger, error) {
	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	}
	cfg.Level = level
	// Report the caller of Debug/Info/Error, not this package.
	return cfg.Build(zap.AddCallerSkip(2))
}

// ParseLevel maps a config string onto a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "INFO":
		return LevelInfo, nil
	case "DEBUG":
		return LevelDebug, nil
	case "ERROR":
		return LevelError, nil
	default:
		return "", fmt.Errorf("log: unknown level %q", s)
	}
}

func SetLevel(l Level) {
	initLogger()
	switch l {
	case LevelDebug:
		level.SetLevel(zapcore.DebugLevel)
	case LevelError:
		level.SetLevel(zapcore.ErrorLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}
}

func Debug(msg string, kv ...any) {
	logWithLevel(LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(LevelInfo, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	logWithLevel(LevelError, msg, extended...)
}

// Sync flushes buffered entries. Call before exit.
func Sync() {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	if s != nil {
		_ = s.Sync()
	}
}

func logWithLevel(lvl Level, msg string, kv ...any) {
	initLogger()

	mu.RLock()
	s := sugar
	mu.RUnlock()

	kv = normalizeKVs(kv)
	switch lvl {
	case LevelDebug:
		s.Debugw(msg, kv...)
	case LevelError:
		s.Errorw(msg, kv...)
	default:
		s.Infow(msg, kv...)
	}
}

// normalizeKVs drops pairs with non-string keys and a trailing odd value, so
// zap never sees malformed input.
func normalizeKVs(kv []any) []any {
	out := make([]any, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, key, kv[i+1])
	}
	return out
}
