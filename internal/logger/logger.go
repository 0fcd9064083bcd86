package logger

import (
	"sync"
)

// Log levels understood by Get.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

var (
	globalLogger *Logger
	once         sync.Once
)

// Get returns the process-wide logger, initializing it with the given
// level on first call. Later calls return the same instance regardless
// of level. Diagnostics go to stderr so command output on stdout stays
// machine-parseable.
func Get(level string) *Logger {
	once.Do(func() {
		globalLogger = newZapLogger(level)
	})
	return globalLogger
}
