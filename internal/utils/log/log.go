package log

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	origLogger = logrus.New()
	// default logger we use
	defaultLogger = &logger{
		entry: logrus.NewEntry(origLogger),
		fmt:   "short",
	}
)

type logger struct {
	entry *logrus.Entry
	fmt   string
}

// Logger is the logging surface handed to the reader monitor and the card
// driver. Scoped loggers are derived with With / WithFields.
type Logger interface {
	Debug(...interface{})
	Debugf(string, ...interface{})

	Info(...interface{})
	Infof(string, ...interface{})

	Warn(...interface{})
	Warnf(string, ...interface{})

	Error(...interface{})
	Errorf(string, ...interface{})

	WithFields(map[string]interface{}) Logger
	With(key string, value interface{}) Logger
}

type Fields map[string]interface{}

func (l *logger) Debug(args ...interface{}) {
	l.withSource().Debug(args...)
}

func (l *logger) Debugf(msg string, args ...interface{}) {
	l.withSource().Debugf(msg, args...)
}

func (l *logger) Info(args ...interface{}) {
	l.withSource().Info(args...)
}

func (l *logger) Infof(msg string, args ...interface{}) {
	l.withSource().Infof(msg, args...)
}

func (l *logger) Warn(args ...interface{}) {
	l.withSource().Warn(args...)
}

func (l *logger) Warnf(msg string, args ...interface{}) {
	l.withSource().Warnf(msg, args...)
}

func (l *logger) Error(args ...interface{}) {
	l.withSource().Error(args...)
}

func (l *logger) Errorf(msg string, args ...interface{}) {
	l.withSource().Errorf(msg, args...)
}

func (l *logger) With(key string, value interface{}) Logger {
	return &logger{entry: l.entry.WithField(key, value), fmt: l.fmt}
}

func (l *logger) WithFields(fields map[string]interface{}) Logger {
	return &logger{entry: l.entry.WithFields(logrus.Fields(fields)), fmt: l.fmt}
}

// withSource must be called directly from a logging method; the caller two
// frames up is the line that gets reported.
func (l *logger) withSource() *logrus.Entry {
	srcFmt := defaultLogger.fmt
	if srcFmt == "none" {
		return l.entry
	}
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file = "<???>"
		line = 1
	} else if srcFmt == "short" {
		slash := strings.LastIndex(file, "/")
		file = file[slash+1:]
	}
	return l.entry.WithField("source", fmt.Sprintf("%s:%d", file, line))
}

// Default returns the package logger as a Logger value.
func Default() Logger {
	return defaultLogger
}

// SetFormat sets the output format to 'json'|'text'|'nocolor'.
func SetFormat(format string) {
	switch format {
	case "json":
		origLogger.Formatter = &logrus.JSONFormatter{}
	case "nocolor":
		origLogger.Formatter = &logrus.TextFormatter{DisableColors: true}
	default:
		origLogger.Formatter = &logrus.TextFormatter{}
	}
}

// GetFormat reports the output format as 'json'|'text'|'nocolor'.
func GetFormat() string {
	switch v := origLogger.Formatter.(type) {
	case *logrus.JSONFormatter:
		return "json"
	case *logrus.TextFormatter:
		if !v.ForceColors && v.DisableColors {
			return "nocolor"
		}
	}
	return "text"
}

func SetOutput(out io.Writer) {
	origLogger.Out = out
}

// SetSourceFormat sets the source field to 'short'|'long'|'none'.
func SetSourceFormat(format string) {
	switch format {
	case "long", "none":
		defaultLogger.fmt = format
	default:
		defaultLogger.fmt = "short"
	}
}

func GetSourceFormat() string {
	return defaultLogger.fmt
}

// SetLevel falls back to info when the level cannot be parsed.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		origLogger.Level = logrus.InfoLevel
		return
	}
	origLogger.Level = lvl
}

func GetLevel() string {
	return origLogger.Level.String()
}

func Debug(args ...interface{}) {
	defaultLogger.withSource().Debug(args...)
}

func Debugf(msg string, args ...interface{}) {
	defaultLogger.withSource().Debugf(msg, args...)
}

func Info(args ...interface{}) {
	defaultLogger.withSource().Info(args...)
}

func Infof(msg string, args ...interface{}) {
	defaultLogger.withSource().Infof(msg, args...)
}

func Warn(args ...interface{}) {
	defaultLogger.withSource().Warn(args...)
}

func Warnf(msg string, args ...interface{}) {
	defaultLogger.withSource().Warnf(msg, args...)
}

func Error(args ...interface{}) {
	defaultLogger.withSource().Error(args...)
}

func Errorf(msg string, args ...interface{}) {
	defaultLogger.withSource().Errorf(msg, args...)
}

func Fatalf(msg string, args ...interface{}) {
	defaultLogger.withSource().Fatalf(msg, args...)
}

func With(key string, value interface{}) Logger {
	return defaultLogger.With(key, value)
}

func WithFields(fields map[string]interface{}) Logger {
	return defaultLogger.WithFields(fields)
}
