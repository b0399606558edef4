package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"whitelist/internal/admission/ports"
	"whitelist/internal/admission/store/storetest"
	platformsqlite "whitelist/internal/platform/sqlite"
)

func openStore(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	db, err := platformsqlite.Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestSQLiteStore(t *testing.T) {
	suite.Run(t, &storetest.Suite{
		NewStore: func(t *testing.T) ports.Store {
			return openStore(t, filepath.Join(t.TempDir(), "whitelist.db"))
		},
	})
}

func TestSQLiteStore_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "whitelist.db")
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	db, err := platformsqlite.Open(ctx, path)
	require.NoError(t, err)
	store := New(db)
	_, _, err = store.Init(ctx, 2, now)
	require.NoError(t, err)
	_, err = store.Admit(ctx, "alice", now)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened := openStore(t, path)
	ok, err := reopened.IsMember(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)

	reg, created, err := reopened.Init(ctx, 2, now.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, 1, reg.Count)
	require.True(t, reg.CreatedAt.Equal(now))
}
