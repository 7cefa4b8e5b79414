package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitLogger(t *testing.T) {
	old := Logger
	defer func() { Logger = old }()

	require.NoError(t, InitLogger("release"))
	assert.False(t, Logger.Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, InitLogger("debug"))
	assert.True(t, Logger.Core().Enabled(zapcore.DebugLevel))
	Sync()
}

func TestTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	old := Logger
	Logger = zap.New(core)
	defer func() { Logger = old }()

	Trace("load model")()

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	assert.Equal(t, "enter load model", entries[0].Message)
	assert.Equal(t, "exit load model", entries[1].Message)
	assert.Contains(t, entries[1].ContextMap(), "cost")
}
