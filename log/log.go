// Package log provides a small leveled logging facade, reproduced in the
// shape the teacher's own log subpackage exposes (NewStdLogger, NewHelper,
// NewFilter, FilterLevel, Level), so File/Assembly can keep logging through
// a *Helper without pulling in a full logging framework.
package log

import (
	"fmt"
	"io"
	"sync"
)

// Level is a log severity.
type Level int8

// Log levels, lowest to highest severity.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the minimal logging interface implementations must satisfy.
type Logger interface {
	Log(level Level, msg string) error
}

// stdLogger writes leveled lines to an io.Writer.
type stdLogger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdLogger returns a Logger that writes to w.
func NewStdLogger(w io.Writer) Logger {
	return &stdLogger{w: w}
}

func (l *stdLogger) Log(level Level, msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := fmt.Fprintf(l.w, "[%s] %s\n", level, msg)
	return err
}

// filterLogger drops records below a minimum level before delegating.
type filterLogger struct {
	next Logger
	min  Level
}

// Option configures a filter Logger.
type Option func(*filterLogger)

// FilterLevel sets the minimum level a filter Logger passes through.
func FilterLevel(level Level) Option {
	return func(f *filterLogger) { f.min = level }
}

// NewFilter wraps next with level filtering.
func NewFilter(next Logger, opts ...Option) Logger {
	f := &filterLogger{next: next, min: LevelDebug}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *filterLogger) Log(level Level, msg string) error {
	if level < f.min {
		return nil
	}
	return f.next.Log(level, msg)
}

// Helper adds printf-style convenience methods per level on top of a Logger.
type Helper struct {
	logger Logger
}

// NewHelper wraps logger with per-level Printf-style methods.
func NewHelper(logger Logger) *Helper {
	return &Helper{logger: logger}
}

// Debugf logs at LevelDebug.
func (h *Helper) Debugf(format string, a ...interface{}) {
	_ = h.logger.Log(LevelDebug, fmt.Sprintf(format, a...))
}

// Infof logs at LevelInfo.
func (h *Helper) Infof(format string, a ...interface{}) {
	_ = h.logger.Log(LevelInfo, fmt.Sprintf(format, a...))
}

// Warnf logs at LevelWarn.
func (h *Helper) Warnf(format string, a ...interface{}) {
	_ = h.logger.Log(LevelWarn, fmt.Sprintf(format, a...))
}

// Errorf logs at LevelError.
func (h *Helper) Errorf(format string, a ...interface{}) {
	_ = h.logger.Log(LevelError, fmt.Sprintf(format, a...))
}
