package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var base = logrus.New()

// Logger wraps a logrus entry tagged with the component name
type Logger struct {
	entry *logrus.Entry
}

func init() {
	// Default to INFO in production, DEBUG in development
	if IsDevelopment() {
		base.SetLevel(logrus.DebugLevel)
	} else {
		base.SetLevel(logrus.InfoLevel)
	}

	if GetAppEnv() == "production" {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// New creates a new logger for a specific component
func New(component string) *Logger {
	return &Logger{entry: base.WithField("component", component)}
}

// SetLevel changes the minimum log level at runtime. Unknown names are rejected.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	base.SetLevel(lvl)
	return nil
}

// SetOutput redirects every component logger
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// With returns a child logger carrying an extra structured field
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// Debug logs debug information
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Info logs information messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "development" // Default to development
	}
	return env
}

// IsDevelopment returns true if the current environment is development
func IsDevelopment() bool {
	return GetAppEnv() == "development"
}
