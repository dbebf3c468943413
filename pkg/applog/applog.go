// Package applog provides the process-wide structured logger used by every
// other plugsite package to report progress, warnings, and errors.
package applog

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger

// Init configures the global logger. Safe to call more than once; the last
// call wins. Unset or unknown levels fall back to info.
func Init(level string, noColor bool) {
	logger = logrus.New()
	logger.SetOutput(os.Stdout)

	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	if noColor {
		logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: false})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{ForceColors: true, FullTimestamp: false})
	}
}

// Get returns the configured logger, initializing a default one if Init was
// never called.
func Get() *logrus.Logger {
	if logger == nil {
		Init("info", false)
	}
	return logger
}

func merge(fields ...logrus.Fields) logrus.Fields {
	out := make(logrus.Fields)
	for _, f := range fields {
		for k, v := range f {
			out[k] = v
		}
	}
	return out
}

// Info logs an informational message.
func Info(msg string, fields ...logrus.Fields) { Get().WithFields(merge(fields...)).Info(msg) }

// Debug logs a debug message.
func Debug(msg string, fields ...logrus.Fields) { Get().WithFields(merge(fields...)).Debug(msg) }

// Warn logs a warning message.
func Warn(msg string, fields ...logrus.Fields) { Get().WithFields(merge(fields...)).Warn(msg) }

// Error logs an error message.
func Error(msg string, fields ...logrus.Fields) { Get().WithFields(merge(fields...)).Error(msg) }

// Success logs a completed operation at info level with an outcome field,
// so a finished install, upload, or catalog commit is greppable in the
// CLI's text output without having to match on msg.
func Success(msg string, fields ...logrus.Fields) {
	merged := merge(fields...)
	merged["outcome"] = "success"
	Get().WithFields(merged).Info(msg)
}
