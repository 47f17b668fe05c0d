// Package pickylog provides the structured logging interface the core logs
// through. It mirrors boulder's blog.Logger shape (Infof/Warningf plus an
// audit-level family for events that must never be dropped by log-level
// filtering) but is backed by github.com/rs/zerolog instead of boulder's own
// logger.
package pickylog

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the logging capability the core depends on. Audit methods are
// for events an operator must be able to find later (bootstrap decisions,
// issuance outcomes); Infof/Warningf are for everything else.
type Logger interface {
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	AuditErr(msg string)
	AuditErrf(format string, args ...interface{})
	AuditObject(msg string, obj interface{})
}

// zerologLogger is the production Logger, backed by a zerolog.Logger writing
// newline-delimited JSON to its destination writer.
type zerologLogger struct {
	zl zerolog.Logger
}

// New returns a Logger that writes JSON lines to w at the given minimum
// level. Level follows zerolog's names: "debug", "info", "warn", "error".
func New(w io.Writer, level string) Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return &zerologLogger{zl: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

// NewStderr returns a Logger at the given level writing to os.Stderr, the
// default destination for cmd/pickyca.
func NewStderr(level string) Logger {
	return New(os.Stderr, level)
}

func (l *zerologLogger) Infof(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

func (l *zerologLogger) Warningf(format string, args ...interface{}) {
	l.zl.Warn().Msgf(format, args...)
}

func (l *zerologLogger) AuditErr(msg string) {
	l.zl.Error().Bool("audit", true).Msg(msg)
}

func (l *zerologLogger) AuditErrf(format string, args ...interface{}) {
	l.zl.Error().Bool("audit", true).Msgf(format, args...)
}

func (l *zerologLogger) AuditObject(msg string, obj interface{}) {
	encoded, err := json.Marshal(obj)
	if err != nil {
		l.AuditErrf("failed to marshal audit object for %q: %v", msg, err)
		return
	}
	l.zl.Log().Bool("audit", true).RawJSON("object", encoded).Msg(msg)
}
