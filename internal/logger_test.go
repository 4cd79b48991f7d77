package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("prod logs JSON with RFC3339Nano time", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, "prod", "info")
		logger.Info("server started", "port", 3000)

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "server started", line["msg"])

		_, err := time.Parse(time.RFC3339Nano, line["time"].(string))
		assert.NoError(t, err)
	})

	t.Run("dev logs text", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, "dev", "info")
		logger.Info("server started")
		assert.Contains(t, buf.String(), "msg=\"server started\"")
	})

	t.Run("level selection", func(t *testing.T) {
		ctx := context.Background()
		debug := NewLogger(&bytes.Buffer{}, "dev", "debug")
		assert.True(t, debug.Enabled(ctx, slog.LevelDebug))

		warn := NewLogger(&bytes.Buffer{}, "dev", "warn")
		assert.False(t, warn.Enabled(ctx, slog.LevelInfo))

		fallback := NewLogger(&bytes.Buffer{}, "dev", "loud")
		assert.True(t, fallback.Enabled(ctx, slog.LevelInfo))
		assert.False(t, fallback.Enabled(ctx, slog.LevelDebug))
	})
}
