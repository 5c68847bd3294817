// Package internal holds small logging helpers used by the transport
// package that are not part of the public API.
package internal

import (
	"context"
	"log/slog"
)

// LevelTrace sits below slog.LevelDebug and is used for very hot paths
// (every demuxed datagram, every retransmit tick) that would otherwise
// flood a debug-level log.
const LevelTrace slog.Level = slog.LevelDebug - 4

// LogEnabled reports whether l would emit a record at lvl, treating a nil
// logger as always disabled.
func LogEnabled(l *slog.Logger, lvl slog.Level) bool {
	return l != nil && l.Handler().Enabled(context.Background(), lvl)
}

// LogAttrs emits msg at level through l if non-nil. Centralizing the nil
// check here means callers can log unconditionally without guarding every
// call site on whether a logger was configured.
func LogAttrs(l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if l != nil {
		l.LogAttrs(context.Background(), level, msg, attrs...)
	}
}

// Logger is embedded by CCBs and the protocol entity to give them
// debug/trace/info/error logging helpers that no-op when Log is nil.
type Logger struct {
	Log *slog.Logger
}

func (lg *Logger) logenabled(lvl slog.Level) bool { return LogEnabled(lg.Log, lvl) }

func (lg *Logger) Trace(msg string, attrs ...slog.Attr) { LogAttrs(lg.Log, LevelTrace, msg, attrs...) }
func (lg *Logger) Debug(msg string, attrs ...slog.Attr) { LogAttrs(lg.Log, slog.LevelDebug, msg, attrs...) }
func (lg *Logger) Info(msg string, attrs ...slog.Attr)  { LogAttrs(lg.Log, slog.LevelInfo, msg, attrs...) }
func (lg *Logger) Error(msg string, attrs ...slog.Attr) { LogAttrs(lg.Log, slog.LevelError, msg, attrs...) }

// TraceEnabled reports whether trace-level logging is active, letting
// callers skip building attrs on the hottest paths.
func (lg *Logger) TraceEnabled() bool { return lg.logenabled(LevelTrace) }
