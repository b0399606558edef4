package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whitelist/internal/platform/config"
	auditmemory "whitelist/pkg/platform/audit/store/memory"
)

func testConfig(t *testing.T, env map[string]string) config.Server {
	t.Helper()
	cfg, err := config.FromMap(env)
	require.NoError(t, err)
	return cfg
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("memory by default", func(t *testing.T) {
		b, err := openBackend(ctx, testConfig(t, map[string]string{}), logger)
		require.NoError(t, err)
		defer b.close()

		_, _, err = b.store.Init(ctx, 3, time.Now())
		require.NoError(t, err)
		assert.Empty(t, b.health)
		assert.Nil(t, b.db)
	})

	t.Run("sqlite with health check", func(t *testing.T) {
		cfg := testConfig(t, map[string]string{
			"WHITELIST_STORE": "sqlite",
			"SQLITE_PATH":     filepath.Join(t.TempDir(), "whitelist.db"),
		})
		b, err := openBackend(ctx, cfg, logger)
		require.NoError(t, err)
		defer b.close()

		require.Len(t, b.health, 1)
		assert.Equal(t, "sqlite", b.health[0].Name)
		assert.NoError(t, b.health[0].Check(ctx))
	})
}

func TestOpenAuditSink_FallsBackToMemory(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig(t, map[string]string{})

	b, err := openBackend(ctx, cfg, logger)
	require.NoError(t, err)
	defer b.close()

	sink, err := openAuditSink(ctx, cfg, b, logger)
	require.NoError(t, err)
	defer sink.close()

	_, ok := sink.sink.(*auditmemory.InMemoryStore)
	assert.True(t, ok, "expected in-memory audit sink, got %T", sink.sink)
}
