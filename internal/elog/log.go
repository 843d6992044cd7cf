// Package elog is a small leveled logging facade modeled on the logging
// helper the teacher corpus (saferwall/pe) vendors at "pe/log": a Logger
// interface plus a Helper wrapper and a severity filter, so callers can
// swap in their own sink without this module importing a concrete logging
// framework.
package elog

import (
	"fmt"
	"io"
	"log"
	"sync"
)

// Level is a logging severity, ordered from most to least verbose.
type Level int

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

// Logger is the minimal sink every log call is routed through.
type Logger interface {
	Log(level Level, msg string)
}

// stdLogger writes through the standard library's log.Logger.
type stdLogger struct {
	mu  sync.Mutex
	std *log.Logger
}

// NewStdLogger builds a Logger that writes timestamped lines to w.
func NewStdLogger(w io.Writer) Logger {
	return &stdLogger{std: log.New(w, "", log.LstdFlags)}
}

func (l *stdLogger) Log(level Level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.std.Printf("[%s] %s", level, msg)
}

// FilterOption configures a filtering Logger.
type FilterOption func(*filter)

// FilterLevel drops any record below the given severity.
func FilterLevel(level Level) FilterOption {
	return func(f *filter) { f.level = level }
}

type filter struct {
	next  Logger
	level Level
}

// NewFilter wraps next with a minimum-severity gate.
func NewFilter(next Logger, opts ...FilterOption) Logger {
	f := &filter{next: next, level: LevelInfo}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *filter) Log(level Level, msg string) {
	if level < f.level {
		return
	}
	f.next.Log(level, msg)
}

// Helper adds printf-style convenience methods over a Logger, the same
// shape callers reach for via pe.logger.Warnf(...) in the teacher.
type Helper struct {
	logger Logger
}

// NewHelper wraps a Logger with printf-style helpers.
func NewHelper(logger Logger) *Helper {
	return &Helper{logger: logger}
}

func (h *Helper) Debugf(format string, args ...interface{}) {
	h.logger.Log(LevelDebug, fmt.Sprintf(format, args...))
}

func (h *Helper) Infof(format string, args ...interface{}) {
	h.logger.Log(LevelInfo, fmt.Sprintf(format, args...))
}

func (h *Helper) Warnf(format string, args ...interface{}) {
	h.logger.Log(LevelWarn, fmt.Sprintf(format, args...))
}

func (h *Helper) Errorf(format string, args ...interface{}) {
	h.logger.Log(LevelError, fmt.Sprintf(format, args...))
}
