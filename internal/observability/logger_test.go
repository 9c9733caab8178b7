// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/autosubmit/internal/config"
)

// -- Test Cases --

func TestInitialize(t *testing.T) {
	t.Run("console with colors", func(t *testing.T) {
		ResetForTest()
		defer ResetForTest()
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "autosubmit",
			Colors:      config.ColorConfig{Info: "blue"},
		}, zapcore.AddSync(&buf), true)
		GetLogger().Named("orchestrator").Info("Item submitted.", zap.Int("index", 3))
		Sync()

		out := buf.String()
		assert.Contains(t, out, ansiColors["blue"]+"INFO"+colorReset)
		assert.Contains(t, out, "autosubmit.orchestrator.")
		assert.Contains(t, out, "Item submitted.")
		assert.Contains(t, out, `"index": 3`)
	})

	t.Run("console without colors", func(t *testing.T) {
		ResetForTest()
		defer ResetForTest()
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{Level: "info", Format: "console"}, zapcore.AddSync(&buf), false)
		GetLogger().Warn("Run stopped.")
		Sync()

		assert.Contains(t, buf.String(), "WARN")
		assert.NotContains(t, buf.String(), "\x1b[")
	})

	t.Run("json", func(t *testing.T) {
		ResetForTest()
		defer ResetForTest()
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"}, zapcore.AddSync(&buf), true)
		GetLogger().Warn("Queue did not advance.", zap.String("signature", "job_1"))
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "job_1", entry["signature"])
	})

	t.Run("level filtering", func(t *testing.T) {
		ResetForTest()
		defer ResetForTest()
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{Level: "bogus"}, zapcore.AddSync(&buf), false)
		GetLogger().Debug("hidden")
		GetLogger().Info("shown")
		Sync()

		assert.NotContains(t, buf.String(), "hidden", "an unknown level falls back to info")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("file sink", func(t *testing.T) {
		ResetForTest()
		defer ResetForTest()
		path := filepath.Join(t.TempDir(), "autosubmit.log")

		Initialize(config.LoggerConfig{Level: "debug", LogFile: path, MaxSize: 1}, zapcore.AddSync(&bytes.Buffer{}), false)
		GetLogger().Error("Run aborted.")
		Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"Run aborted."`)
	})

	t.Run("only once", func(t *testing.T) {
		ResetForTest()
		defer ResetForTest()
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{Level: "info", ServiceName: "First"}, zapcore.AddSync(&buf), false)
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&buf), false)
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("test")
		Sync()
		assert.True(t, strings.Contains(buf.String(), "First"))
		assert.False(t, strings.Contains(buf.String(), "Second"))
	})
}

func TestGetLogger_Fallback(t *testing.T) {
	ResetForTest()
	l := GetLogger()
	require.NotNil(t, l)
	assert.Nil(t, globalLogger.Load(), "the fallback is not stored globally")
}
