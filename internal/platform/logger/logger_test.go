package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	t.Run("json handler filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(&buf, "warn", "json")
		log.Info("hidden")
		log.Warn("shown", "k", "v")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), `"msg":"shown"`)
	})

	t.Run("text handler", func(t *testing.T) {
		var buf bytes.Buffer
		New(&buf, "debug", "TEXT").Debug("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("unknown level is info", func(t *testing.T) {
		log := New(&bytes.Buffer{}, "loud", "json")
		assert.True(t, log.Enabled(context.Background(), slog.LevelInfo))
		assert.False(t, log.Enabled(context.Background(), slog.LevelDebug))
	})
}
