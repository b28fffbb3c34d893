// Package logging adapts zerolog to the logger contract used across the
// module. Library packages only see the interface; binaries wire this in.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/lightningsats/go-realtime/pkg/interfaces/logger"
)

// ZeroLogger forwards log records to a zerolog.Logger.
type ZeroLogger struct {
	zl zerolog.Logger
}

var _ logger.Logger = (*ZeroLogger)(nil)

// New builds a ZeroLogger writing to w. Pass os.Stderr for binaries.
func New(w io.Writer) *ZeroLogger {
	if w == nil {
		w = os.Stderr
	}
	return &ZeroLogger{zl: zerolog.New(w).With().Timestamp().Logger()}
}

// Wrap adapts an existing zerolog.Logger.
func Wrap(zl zerolog.Logger) *ZeroLogger {
	return &ZeroLogger{zl: zl}
}

// Component returns a logger tagged for a named component, mirroring how
// service binaries label per-subsystem output.
func (l *ZeroLogger) Component(name string) logger.Logger {
	return &ZeroLogger{zl: l.zl.With().Str("component", name).Logger()}
}

// With returns a logger that includes the fields on every record.
func (l *ZeroLogger) With(fields ...logger.Field) logger.Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &ZeroLogger{zl: ctx.Logger()}
}

func (l *ZeroLogger) Debug(msg string, fields ...logger.Field) {
	l.emit(l.zl.Debug(), msg, fields)
}

func (l *ZeroLogger) Info(msg string, fields ...logger.Field) {
	l.emit(l.zl.Info(), msg, fields)
}

func (l *ZeroLogger) Warn(msg string, fields ...logger.Field) {
	l.emit(l.zl.Warn(), msg, fields)
}

func (l *ZeroLogger) Error(msg string, fields ...logger.Field) {
	l.emit(l.zl.Error(), msg, fields)
}

func (l *ZeroLogger) emit(ev *zerolog.Event, msg string, fields []logger.Field) {
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	ev.Msg(msg)
}
