// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/kfallows/citewright/internal/config"
)

// bufferSyncer adapts a bytes.Buffer to zapcore.WriteSyncer so console output
// can be captured without touching os.Stdout.
type bufferSyncer struct {
	bytes.Buffer
}

func (b *bufferSyncer) Sync() error { return nil }

func TestInitialize(t *testing.T) {
	t.Run("ConsoleFormatColorizesLevel", func(t *testing.T) {
		ResetForTest()
		var buf bufferSyncer

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "testsvc",
			Colors:      config.ColorConfig{Info: "green"},
		}, zapcore.Lock(&buf))

		GetLogger().Info("hello from the console encoder")
		Sync()

		out := buf.String()
		assert.Contains(t, out, "INFO", "output should contain the level token")
		assert.Contains(t, out, "hello from the console encoder")
		assert.Contains(t, out, colorMap["green"], "info level should be colorized")
		assert.Contains(t, out, "testsvc.", "logger name should carry the service name")
	})

	t.Run("JSONFormatEmitsStructuredLines", func(t *testing.T) {
		ResetForTest()
		var buf bufferSyncer

		Initialize(config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "testsvc",
		}, zapcore.Lock(&buf))

		GetLogger().Info("structured entry")
		Sync()

		line := strings.TrimSpace(buf.String())
		require.NotEmpty(t, line)
		assert.True(t, strings.HasPrefix(line, "{"), "JSON format should emit objects, got: %s", line)
		assert.Contains(t, line, `"structured entry"`)
	})

	t.Run("InvalidLevelFallsBackToInfo", func(t *testing.T) {
		ResetForTest()
		var buf bufferSyncer

		Initialize(config.LoggerConfig{Level: "shouting", Format: "json"}, zapcore.Lock(&buf))

		GetLogger().Debug("suppressed")
		GetLogger().Info("visible")
		Sync()

		out := buf.String()
		assert.NotContains(t, out, "suppressed")
		assert.Contains(t, out, "visible")
	})

	t.Run("SecondInitializeIsNoOp", func(t *testing.T) {
		ResetForTest()
		var first, second bufferSyncer

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "one"}, zapcore.Lock(&first))
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "two"}, zapcore.Lock(&second))

		GetLogger().Info("routed to the first writer")
		Sync()

		assert.Contains(t, first.String(), "routed to the first writer")
		assert.Empty(t, second.String())
	})
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	ResetForTest()
	logger := GetLogger()
	require.NotNil(t, logger, "fallback logger must never be nil")
}
