package rag

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := &DefaultLogger{logger: log.New(&buf, "", 0), level: LogLevelWarn}

	logger.Info("hidden")
	logger.Warn("disk almost full", "path", "/tmp", "free")
	logger.Error("failed")
	assert.Equal(t, "WARN: disk almost full path=/tmp free=MISSING\nERROR: failed\n", buf.String())

	buf.Reset()
	logger.SetLevel(LogLevelDebug)
	logger.Debug("details", "n", 3)
	assert.Equal(t, "DEBUG: details n=3\n", buf.String())
}

func TestLogLevelText(t *testing.T) {
	var level LogLevel
	require.NoError(t, level.UnmarshalText([]byte(" warning ")))
	assert.Equal(t, LogLevelWarn, level)
	require.NoError(t, level.UnmarshalText([]byte("debug")))
	assert.Equal(t, LogLevelDebug, level)
	assert.Error(t, level.UnmarshalText([]byte("verbose")))

	text, err := LogLevelInfo.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "INFO", string(text))
	assert.Equal(t, "LogLevel(9)", LogLevel(9).String())
}

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLoggerFrom(zap.New(core), LogLevelInfo)

	logger.Debug("hidden")
	logger.Info("indexed", "chunks", 12)
	logger.Warn("slow")
	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	assert.Equal(t, "indexed", entries[0].Message)
	assert.Equal(t, int64(12), entries[0].ContextMap()["chunks"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)

	logger.SetLevel(LogLevelOff)
	logger.Error("dropped")
	assert.Equal(t, 2, logs.Len())

	logger.SetLevel(LogLevelDebug)
	logger.Debug("visible")
	assert.Equal(t, 1, logs.FilterMessage("visible").Len())
}
