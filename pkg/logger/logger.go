package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Process-wide leveled logger on top of zerolog. Human-readable console
// output by default; SetJSON switches to one JSON object per line.

var (
	mu     sync.RWMutex
	out    io.Writer = os.Stdout
	asJSON bool
	level  = zerolog.InfoLevel
	base   = build()
)

// build must be called with mu held (or during init).
func build() zerolog.Logger {
	w := out
	if !asJSON {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Init sets the level from LOG_LEVEL-style text (debug, info, warn, error,
// fatal; case-insensitive). Anything else means info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn", "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	case "fatal":
		level = zerolog.FatalLevel
	default:
		level = zerolog.InfoLevel
	}
	base = build()
}

// SetJSON toggles structured JSON output.
func SetJSON(on bool) {
	mu.Lock()
	defer mu.Unlock()
	asJSON = on
	base = build()
}

// SetOutput redirects log output, keeping level and format.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	base = build()
}

// Log returns the underlying zerolog logger for structured events.
func Log() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := base
	return &l
}

func Debugf(format string, v ...interface{}) { Log().Debug().Msgf(format, v...) }
func Infof(format string, v ...interface{})  { Log().Info().Msgf(format, v...) }
func Warnf(format string, v ...interface{})  { Log().Warn().Msgf(format, v...) }
func Errorf(format string, v ...interface{}) { Log().Error().Msgf(format, v...) }

// Warn logs a fixed message.
func Warn(msg string) { Log().Warn().Msg(msg) }

// Fatalf logs and exits with status 1.
func Fatalf(format string, v ...interface{}) {
	Log().WithLevel(zerolog.FatalLevel).Msgf(format, v...)
	os.Exit(1)
}

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	return level.String()
}
