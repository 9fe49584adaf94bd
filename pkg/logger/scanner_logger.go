// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config for logger
type Config struct {
	Level   string    // debug, info, warn, error
	Output  io.Writer // defaults to os.Stderr
	Service string
	Pretty  bool // console writer instead of JSON
}

var (
	mu         sync.RWMutex
	baseLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// ParseLevel parses a string level, falling back to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Init replaces the default logger.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	if cfg.Service == "" {
		cfg.Service = "scanner"
	}

	l := zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", cfg.Service).
		Logger()

	mu.Lock()
	baseLogger = l
	mu.Unlock()
}

// Default returns the default logger
func Default() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return baseLogger
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return Default().With().Str("component", name).Logger()
}

// Nop returns a disabled logger, for tests and library callers that opt out.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// Package-level functions using default logger
func Debug(msg string, args ...any) { l := Default(); l.Debug().Msgf(msg, args...) }
func Info(msg string, args ...any)  { l := Default(); l.Info().Msgf(msg, args...) }
func Warn(msg string, args ...any)  { l := Default(); l.Warn().Msgf(msg, args...) }
func Error(msg string, args ...any) { l := Default(); l.Error().Msgf(msg, args...) }
func Fatal(msg string, args ...any) {
	l := Default()
	l.Fatal().Msgf(msg, args...)
}
