package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, Level("debug"))
	assert.Equal(t, zap.WarnLevel, Level("warn"))
	assert.Equal(t, zap.ErrorLevel, Level("error"))
	assert.Equal(t, zap.InfoLevel, Level("verbose"))
	assert.Equal(t, zap.InfoLevel, Level(""))
}

func TestInit(t *testing.T) {
	Init("warn")
	t.Cleanup(func() { Log = zap.NewNop() })

	assert.False(t, Log.Core().Enabled(zap.InfoLevel))
	assert.True(t, Log.Core().Enabled(zap.WarnLevel))
	assert.NotNil(t, Component("engine"))
}
