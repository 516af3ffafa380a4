// Package logging provides structured logging for the nutrilog core.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
)

// LogLevel represents a log level.
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// Logger writes JSON log lines through logrus.
type Logger struct {
	base     *logrus.Logger
	out      io.Writer
	minLevel LogLevel
}

var (
	// global logger instance
	global *Logger
	once   sync.Once
)

// New creates a standalone logger. Most callers want Get.
func New(out io.Writer, minLevel LogLevel) *Logger {
	base := logrus.New()
	base.SetOutput(out)
	base.SetLevel(minLevel.logrus())
	base.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	return &Logger{base: base, out: out, minLevel: minLevel}
}

// Init initializes the global logger. Later calls are ignored.
func Init(out io.Writer, minLevel LogLevel) {
	once.Do(func() {
		global = New(out, minLevel)
	})
}

// Get returns the global logger instance.
func Get() *Logger {
	Init(os.Stdout, LevelInfo)
	return global
}

// ParseLevel maps a config string ("debug", "warn", ...) to a LogLevel.
// Unknown values fall back to LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func (lv LogLevel) logrus() logrus.Level {
	switch lv {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func (l *Logger) log(level LogLevel, message string, err error, context map[string]interface{}) {
	fields := make(logrus.Fields, len(context)+1)
	for k, v := range context {
		fields[k] = v
	}
	if err != nil {
		fields[logrus.ErrorKey] = err.Error()
	}
	l.base.WithFields(fields).Log(level.logrus(), message)
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, context ...map[string]interface{}) {
	l.log(LevelDebug, message, nil, l.getContext(context...))
}

// Info logs an info message.
func (l *Logger) Info(message string, context ...map[string]interface{}) {
	l.log(LevelInfo, message, nil, l.getContext(context...))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, context ...map[string]interface{}) {
	l.log(LevelWarn, message, nil, l.getContext(context...))
}

// Error logs an error message.
func (l *Logger) Error(message string, err error, context ...map[string]interface{}) {
	l.log(LevelError, message, err, l.getContext(context...))
}

// ErrorWithCode logs an error message and tags it with the error's code.
func (l *Logger) ErrorWithCode(message string, err error, context ...map[string]interface{}) {
	// copy so the caller's map is never mutated
	ctx := make(map[string]interface{})
	for k, v := range l.getContext(context...) {
		ctx[k] = v
	}
	ctx["code"] = string(apperrors.CodeOf(err))
	l.log(LevelError, message, err, ctx)
}

// getContext merges multiple context maps.
func (l *Logger) getContext(context ...map[string]interface{}) map[string]interface{} {
	if len(context) == 0 {
		return nil
	}
	if len(context) == 1 {
		return context[0]
	}
	merged := make(map[string]interface{})
	for _, c := range context {
		for k, v := range c {
			merged[k] = v
		}
	}
	return merged
}

// Convenience functions using global logger

func Debug(message string, context ...map[string]interface{}) {
	Get().Debug(message, context...)
}

func Info(message string, context ...map[string]interface{}) {
	Get().Info(message, context...)
}

func Warn(message string, context ...map[string]interface{}) {
	Get().Warn(message, context...)
}

func Error(message string, err error, context ...map[string]interface{}) {
	Get().Error(message, err, context...)
}

func ErrorWithCode(message string, err error, context ...map[string]interface{}) {
	Get().ErrorWithCode(message, err, context...)
}
