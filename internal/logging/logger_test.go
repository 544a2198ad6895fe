package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/steveyegge/pulse/internal/config"
)

func TestNew(t *testing.T) {
	t.Run("production logger with info level", func(t *testing.T) {
		logger, err := New(config.LoggerConfig{Level: "info", Format: "json", Output: "stdout"}, false)
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.True(t, logger.Desugar().Core().Enabled(zapcore.InfoLevel))
		assert.False(t, logger.Desugar().Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("console logger on stderr", func(t *testing.T) {
		logger, err := New(config.DefaultLoggerConfig(), false)
		require.NoError(t, err)
		require.NotNil(t, logger)
	})

	t.Run("verbose forces debug", func(t *testing.T) {
		logger, err := New(config.LoggerConfig{Level: "error", Format: "console", Output: "stderr"}, true)
		require.NoError(t, err)
		assert.True(t, logger.Desugar().Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logger, err := New(config.LoggerConfig{Level: "loud", Format: "json", Output: "stderr"}, false)
		require.NoError(t, err)
		assert.True(t, logger.Desugar().Core().Enabled(zapcore.InfoLevel))
		assert.False(t, logger.Desugar().Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("unknown output falls back to stderr", func(t *testing.T) {
		logger, err := New(config.LoggerConfig{Level: "info", Format: "json", Output: "/var/log/pulse.log"}, false)
		require.NoError(t, err)
		require.NotNil(t, logger)
	})
}
