package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug", LevelInfo))
	assert.Equal(t, LevelWarn, ParseLevel("WARN", LevelInfo))
	assert.Equal(t, LevelWarn, ParseLevel("warning", LevelInfo))
	assert.Equal(t, LevelError, ParseLevel(" error ", LevelInfo))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense", LevelInfo))
	assert.Equal(t, LevelDebug, ParseLevel("", LevelDebug))
}

func TestLogger_LevelFiltering(t *testing.T) {
	logger := NewLogger(LevelError)

	// Below-threshold calls must not panic and must be filtered.
	logger.Debug("debug %d", 1)
	logger.Info("info %d", 2)
	logger.Warn("warn %d", 3)

	logger.SetLevel(LevelDebug)
	logger.Debug("now visible")
}
