package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/backend/test"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_SqliteBackend(t *testing.T) {
	test.BackendTest(t, func() backend.Backend {
		return NewInMemoryBackend()
	}, func(b backend.Backend) {
		if err := b.Close(); err != nil {
			panic(err)
		}
	})
}

func Test_EndToEndSqliteBackend(t *testing.T) {
	test.EndToEndBackendTest(t, func() backend.Backend {
		return NewInMemoryBackend()
	}, func(b backend.Backend) {
		if err := b.Close(); err != nil {
			panic(err)
		}
	})
}

func Test_SqliteBackend_File(t *testing.T) {
	dir := t.TempDir()

	test.BackendTest(t, func() backend.Backend {
		return NewSqliteBackend(filepath.Join(dir, uuid.NewString()+".db"))
	}, func(b backend.Backend) {
		if err := b.Close(); err != nil {
			panic(err)
		}
	})
}

func Test_SqliteBackend_MigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.db")

	b := NewSqliteBackend(path)
	require.NoError(t, b.Migrate())
	require.NoError(t, b.Close())

	b = NewSqliteBackend(path)
	defer b.Close()

	_, err := b.Instances().Load(context.Background(), "missing")
	require.ErrorIs(t, err, backend.ErrInstanceNotFound)
}

func Test_SqliteBackend_WithoutMigrations(t *testing.T) {
	b := NewSqliteBackend(filepath.Join(t.TempDir(), "dispatch.db"), WithApplyMigrations(false))
	defer b.Close()

	err := b.Instances().Save(context.Background(), &core.WorkflowInstance{ID: "i1", Status: core.StatusRunning})
	require.Error(t, err)
}
