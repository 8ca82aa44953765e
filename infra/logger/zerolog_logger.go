// Package logger provides the zerolog-backed implementation of the core
// logging interface shared by every simulation actor.
package logger

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	corelogger "github.com/swedishdeveloper/digital-twin/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// New returns a Logger scoped to one simulation actor: a fleet, a vehicle,
// an infra client. DT_LOG_LEVEL caps verbosity (debug, info, warn, error)
// and DT_LOG_PRETTY switches to human-readable console output; the default
// is JSON at info level, suitable for shipping experiment logs.
func New(actor string) Logger {
	z := zerolog.New(output()).
		Level(level()).
		With().
		Timestamp().
		Str("actor", actor).
		Logger()
	return &ZerologLogger{log: z}
}

func output() io.Writer {
	if pretty, _ := strconv.ParseBool(os.Getenv("DT_LOG_PRETTY")); pretty {
		return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return os.Stdout
}

func level() zerolog.Level {
	switch strings.ToLower(os.Getenv("DT_LOG_LEVEL")) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	ev := l.log.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
