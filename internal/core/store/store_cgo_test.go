//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crawlpace/crawlpace/internal/config"
)

func TestOpenMemoryStore(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{Path: ":memory:"})
	require.NoError(t, err)
	require.Equal(t, "libsql", s.Driver())
	require.NoError(t, s.CheckHealth(context.Background()))
	require.NoError(t, s.Close())
}

func TestOpenFileStoreSerializesWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	s, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.FileExists(t, path)
	require.Equal(t, 1, s.DB.Stats().MaxOpenConnections)

	var journalMode string
	require.NoError(t, s.DB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, s.DB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
	require.Equal(t, 5000, busyTimeout)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "postgres", Path: ":memory:"})
	require.ErrorContains(t, err, "unsupported store driver")
}
