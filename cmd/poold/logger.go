// logger.go - Structured logging for the pool daemon
package main

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Logger wraps a zerolog logger with an audit sink. Warnings and above are also
// copied to the audit file.
type Logger struct {
	zerolog.Logger
	audit zerolog.Logger
	files []*os.File
}

// NewLogger creates a new logger instance. Empty paths disable the file sinks.
func NewLogger(level, logFile, auditFile string) (*Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	l := &Logger{audit: zerolog.Nop()}
	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}}

	if logFile != "" {
		f, err := openAppend(logFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open log file")
		}
		l.files = append(l.files, f)
		writers = append(writers, f)
	}

	if auditFile != "" {
		f, err := openAppend(auditFile)
		if err != nil {
			l.Close()
			return nil, errors.Wrap(err, "failed to open audit file")
		}
		l.files = append(l.files, f)
		l.audit = zerolog.New(f).With().Timestamp().Str("stream", "audit").Logger()
		writers = append(writers, &zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: f},
			Level:  zerolog.WarnLevel,
		})
	}

	l.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().Timestamp().Logger()
	return l, nil
}

// parseLevel maps a config level name to zerolog; empty means info.
func parseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.NoLevel, errors.Wrapf(err, "invalid log level %q", level)
	}
	return lvl, nil
}

// NopLogger discards everything.
func NopLogger() *Logger {
	return &Logger{Logger: zerolog.Nop(), audit: zerolog.Nop()}
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// Close closes the logger and its files
func (l *Logger) Close() error {
	var first error
	for _, f := range l.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.files = nil
	return first
}

// Audit logs an audit event
func (l *Logger) Audit(event string, details map[string]any) {
	l.audit.Log().Str("event", event).Fields(details).Send()
}
