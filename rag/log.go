// Package rag holds the building blocks of the knowledge assistant: folder
// scanning, document parsing and normalization, chunking, embedding, vector
// storage and sparse ranking. Every component logs through the leveled Logger
// defined in this file so that the CLI and the web server can control
// verbosity from a single place.
package rag

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the severity level of a log message.
// Higher values indicate more verbose logging.
type LogLevel int

const (
	// LogLevelOff disables all logging
	LogLevelOff LogLevel = iota
	// LogLevelError enables only error messages
	LogLevelError
	// LogLevelWarn enables error and warning messages
	LogLevelWarn
	// LogLevelInfo enables error, warning, and info messages
	LogLevelInfo
	// LogLevelDebug enables all messages including debug
	LogLevelDebug
)

// Logger defines the interface for logging operations.
// Implementations must support multiple severity levels and
// structured logging with key-value pairs.
type Logger interface {
	// Debug logs a message at debug level with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})
	// Info logs a message at info level with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})
	// Warn logs a message at warning level with optional key-value pairs
	Warn(msg string, keysAndValues ...interface{})
	// Error logs a message at error level with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
	// SetLevel changes the current logging level
	SetLevel(level LogLevel)
}

// DefaultLogger writes leveled lines through the standard library's log
// package. Key-value pairs are rendered as key=value after the message.
type DefaultLogger struct {
	mu     sync.RWMutex
	logger *log.Logger
	level  LogLevel
}

// NewLogger creates a DefaultLogger writing to os.Stderr at the given level.
func NewLogger(level LogLevel) Logger {
	return &DefaultLogger{
		logger: log.New(os.Stderr, "", log.LstdFlags),
		level:  level,
	}
}

// SetLevel updates the logging level of the DefaultLogger.
// Messages below this level will not be logged.
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *DefaultLogger) log(level LogLevel, msg string, keysAndValues ...interface{}) {
	l.mu.RLock()
	enabled := level <= l.level
	l.mu.RUnlock()
	if !enabled {
		return
	}
	if len(keysAndValues) == 0 {
		l.logger.Printf("%s: %s", level, msg)
		return
	}
	l.logger.Printf("%s: %s %s", level, msg, formatKeysAndValues(keysAndValues))
}

// formatKeysAndValues renders pairs as "k1=v1 k2=v2". A dangling key is
// printed with the value "MISSING".
func formatKeysAndValues(keysAndValues []interface{}) string {
	var b strings.Builder
	for i := 0; i < len(keysAndValues); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		var value interface{} = "MISSING"
		if i+1 < len(keysAndValues) {
			value = keysAndValues[i+1]
		}
		fmt.Fprintf(&b, "%v=%v", keysAndValues[i], value)
	}
	return b.String()
}

// Debug logs a message at debug level. This level should be used for
// detailed information needed for debugging purposes.
func (l *DefaultLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log(LogLevelDebug, msg, keysAndValues...)
}

// Info logs a message at info level. This level should be used for
// general operational information.
func (l *DefaultLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log(LogLevelInfo, msg, keysAndValues...)
}

// Warn logs a message at warning level. This level should be used for
// potentially harmful situations that don't prevent normal operation.
func (l *DefaultLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log(LogLevelWarn, msg, keysAndValues...)
}

// Error logs a message at error level. This level should be used for
// error conditions that affect normal operation.
func (l *DefaultLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log(LogLevelError, msg, keysAndValues...)
}

// String returns the string representation of a LogLevel.
func (l LogLevel) String() string {
	if l < LogLevelOff || l > LogLevelDebug {
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
	return [...]string{"OFF", "ERROR", "WARN", "INFO", "DEBUG"}[l]
}

// MarshalText implements encoding.TextMarshaler so levels round-trip through
// JSON configuration files.
func (l LogLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
// It allows LogLevel to be configured from string values in configuration
// files or environment variables.
func (l *LogLevel) UnmarshalText(text []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(text))) {
	case "OFF":
		*l = LogLevelOff
	case "ERROR":
		*l = LogLevelError
	case "WARN", "WARNING":
		*l = LogLevelWarn
	case "INFO":
		*l = LogLevelInfo
	case "DEBUG":
		*l = LogLevelDebug
	default:
		return fmt.Errorf("invalid log level: %s", string(text))
	}
	return nil
}

// GlobalLogger is the package-level logger instance used by default.
// It can be replaced with SetGlobalLogger.
var GlobalLogger Logger = NewLogger(LogLevelInfo)

// SetGlobalLogLevel sets the log level for the global logger instance.
func SetGlobalLogLevel(level LogLevel) {
	GlobalLogger.SetLevel(level)
}

// SetGlobalLogger swaps the package-level logger. A nil logger is ignored.
func SetGlobalLogger(logger Logger) {
	if logger == nil {
		return
	}
	GlobalLogger = logger
}
