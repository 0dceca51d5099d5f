package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_SqliteBackend_PragmaSettings(t *testing.T) {
	t.Run("In-memory database has memory journal mode", func(t *testing.T) {
		backend := NewInMemoryBackend()
		defer backend.Close()

		// WAL mode is not supported for in-memory databases
		var journalMode string
		err := backend.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode)
		require.NoError(t, err)
		require.Equal(t, "memory", journalMode)
	})

	t.Run("File backend has WAL mode", func(t *testing.T) {
		backend := NewSqliteBackend(filepath.Join(t.TempDir(), "test_pragma.db"))
		defer backend.Close()

		var journalMode string
		err := backend.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode)
		require.NoError(t, err)
		require.Equal(t, "wal", journalMode, "journal_mode should be set to WAL for file backend")

		var busyTimeout int
		err = backend.db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout)
		require.NoError(t, err)
		require.Equal(t, 10000, busyTimeout)
	})
}
