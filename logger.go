package knowledge

import (
	"github.com/teilomillet/knowledge/rag"
)

// LogLevel and Logger are shared with the rag package so that a single
// logger controls the whole pipeline.
type (
	LogLevel = rag.LogLevel
	Logger   = rag.Logger
)

const (
	LogLevelOff   = rag.LogLevelOff
	LogLevelError = rag.LogLevelError
	LogLevelWarn  = rag.LogLevelWarn
	LogLevelInfo  = rag.LogLevelInfo
	LogLevelDebug = rag.LogLevelDebug
)

// SetLogLevel changes the level of the current global logger.
func SetLogLevel(level LogLevel) {
	rag.SetGlobalLogLevel(level)
}

// SetLogger replaces the global logger, for example with rag.NewZapLogger.
func SetLogger(logger Logger) {
	rag.SetGlobalLogger(logger)
}

func Debug(msg string, keysAndValues ...interface{}) {
	rag.GlobalLogger.Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...interface{}) {
	rag.GlobalLogger.Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...interface{}) {
	rag.GlobalLogger.Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...interface{}) {
	rag.GlobalLogger.Error(msg, keysAndValues...)
}
