// Package logger provides the structured logger used by every AeroDB
// subsystem. It keeps the teacher repo's call-site shape
// (Debug/Info/Warn/Error(format, args...) plus SetLevel/SetOutput) but is
// backed by github.com/rs/zerolog instead of hand-rolled fmt.Fprintf, the
// way cuemby-warren (another repo in this corpus) logs (see DESIGN.md).
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config/flag string to a Level, defaulting to
// LevelInfo for anything unrecognized.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger wraps a zerolog.Logger with the prefix-tagged, printf-style API
// the rest of this codebase calls.
type Logger struct {
	zl     zerolog.Logger
	prefix string
}

func New(out io.Writer, level Level, prefix string) *Logger {
	zl := zerolog.New(out).Level(level.zerolog()).With().Timestamp().Str("component", prefix).Logger()
	return &Logger{zl: zl, prefix: prefix}
}

// Default returns the process-wide default logger, writing
// human-readable console output to stderr at info level.
func Default() *Logger {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05.000"}
	return New(console, LevelInfo, "aerodb")
}

func (l *Logger) SetLevel(level Level) {
	l.zl = l.zl.Level(level.zerolog())
}

func (l *Logger) SetOutput(out io.Writer) {
	l.zl = l.zl.Output(out)
}

// With returns a derived logger tagged with an additional component name,
// used to distinguish subsystem log lines (wal, store, recovery, ...).
func (l *Logger) With(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("sub", component).Logger(), prefix: l.prefix}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.zl.Warn().Msgf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}
