// Package logger provides structured, severity-leveled logging for every
// layer of the file system, built on log/slog so that call sites attach
// fields (segment, inum, addr) instead of formatting them into a message
// string.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
)

// Severity is one of the six levels this package recognizes, ordered from
// least to most severe save for Off, which disables logging entirely.
type Severity string

const (
	Trace   Severity = "TRACE"
	Debug   Severity = "DEBUG"
	Info    Severity = "INFO"
	Warning Severity = "WARNING"
	Error   Severity = "ERROR"
	Off     Severity = "OFF"
)

// slog reserves levels in multiples of 4 around Info=0; TRACE needs to sit
// below Debug(-4).
const (
	levelTrace = slog.Level(-8)
	levelDebug = slog.Level(-4)
	levelInfo  = slog.Level(0)
	levelWarn  = slog.Level(4)
	levelError = slog.Level(8)
	levelOff   = slog.Level(12)
)

func severityToLevel(s Severity) slog.Level {
	switch s {
	case Trace:
		return levelTrace
	case Debug:
		return levelDebug
	case Warning:
		return levelWarn
	case Error:
		return levelError
	case Off:
		return levelOff
	default:
		return levelInfo
	}
}

func levelToSeverity(l slog.Leveler) string {
	switch l.Level() {
	case levelTrace:
		return "TRACE"
	case levelDebug:
		return "DEBUG"
	case levelWarn:
		return "WARNING"
	case levelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

type loggerFactory struct {
	format string // "text" or "json"
	prefix string
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				a.Key = "severity"
				a.Value = slog.StringValue(levelToSeverity(a.Value.Any().(slog.Level)))
			case slog.MessageKey:
				a.Value = slog.StringValue(prefix + a.Value.String())
			}
			return a
		},
	}

	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

var (
	defaultLoggerFactory = &loggerFactory{format: "text"}
	programLevel         = new(slog.LevelVar)
	output               io.Writer = os.Stderr
	defaultLogger                  = slog.New(defaultLoggerFactory.createJsonOrTextHandler(output, programLevel, ""))
)

func setLoggingLevel(s Severity, lv *slog.LevelVar) {
	lv.Set(severityToLevel(s))
}

// Init configures the package-level logger. format is "text" or "json".
func Init(severity Severity, format string) {
	defaultLoggerFactory.format = format
	setLoggingLevel(severity, programLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(output, programLevel, ""))
}

// SetOutput redirects the default logger's output, mainly for tests.
func SetOutput(w io.Writer) {
	output = w
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(output, programLevel, ""))
}

func Tracef(format string, args ...interface{}) {
	defaultLogger.Log(context.Background(), levelTrace, fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...interface{}) {
	defaultLogger.Log(context.Background(), levelDebug, fmt.Sprintf(format, args...))
}

func Infof(format string, args ...interface{}) {
	defaultLogger.Log(context.Background(), levelInfo, fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...interface{}) {
	defaultLogger.Log(context.Background(), levelWarn, fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...interface{}) {
	defaultLogger.Log(context.Background(), levelError, fmt.Sprintf(format, args...))
}

// With returns a structured logger carrying the given key/value attributes,
// for call sites that want fields instead of a formatted message, e.g.
// logger.With("segment", n, "inum", i).Info("relocated block")
func With(args ...interface{}) *slog.Logger {
	return defaultLogger.With(args...)
}

// StdLogger adapts the package logger to the standard library's *log.Logger,
// for third-party APIs (jacobsa/fuse's MountConfig.ErrorLogger/DebugLogger)
// that predate slog. Messages below level are dropped.
func StdLogger(level Severity, prefix string) *log.Logger {
	lv := new(slog.LevelVar)
	lv.Set(severityToLevel(level))
	handler := defaultLoggerFactory.createJsonOrTextHandler(output, lv, prefix)
	return slog.NewLogLogger(handler, severityToLevel(level))
}
