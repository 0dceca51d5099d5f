package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/backend/test"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testUser = "postgres"
const testPassword = "root"

// Creating and dropping databases is terribly inefficient, but easiest for complete test isolation.

func Test_PostgresBackend(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	if err := ping(); err != nil {
		t.Skipf("postgres not available: %v", err)
	}

	var dbName string

	test.BackendTest(t, func() backend.Backend {
		dbName = createDatabase()

		return NewPostgresBackend("localhost", 5432, testUser, testPassword, dbName)
	}, func(b backend.Backend) {
		if err := b.Close(); err != nil {
			panic(err)
		}

		dropDatabase(dbName)
	})
}

func Test_EndToEndPostgresBackend(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	if err := ping(); err != nil {
		t.Skipf("postgres not available: %v", err)
	}

	var dbName string

	test.EndToEndBackendTest(t, func() backend.Backend {
		dbName = createDatabase()

		return NewPostgresBackend("localhost", 5432, testUser, testPassword, dbName)
	}, func(b backend.Backend) {
		if err := b.Close(); err != nil {
			panic(err)
		}

		dropDatabase(dbName)
	})
}

func Test_PostgresBackend_Notifications(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	if err := ping(); err != nil {
		t.Skipf("postgres not available: %v", err)
	}

	dbName := createDatabase()
	defer dropDatabase(dbName)

	b := NewPostgresBackend("localhost", 5432, testUser, testPassword, dbName, WithNotifications(true))
	defer b.Close()

	var notifier backend.JobNotifier = b

	err := b.Jobs().Schedule(context.Background(), &core.ScheduledJob{
		ID:         uuid.NewString(),
		InstanceID: "i1",
		FireAt:     time.Now(),
		CreatedAt:  time.Now(),
	})
	require.NoError(t, err)

	select {
	case <-notifier.JobScheduled():
	case <-time.After(5 * time.Second):
		t.Fatal("expected notification")
	}
}

func rootDB() *sql.DB {
	db, err := sql.Open("postgres", fmt.Sprintf("host=localhost port=5432 user=%s password=%s sslmode=disable", testUser, testPassword))
	if err != nil {
		panic(err)
	}

	return db
}

func ping() error {
	db := rootDB()
	defer db.Close()

	return db.Ping()
}

func createDatabase() string {
	db := rootDB()
	defer db.Close()

	dbName := "test_" + strings.Replace(uuid.NewString(), "-", "", -1)
	if _, err := db.Exec("CREATE DATABASE " + dbName); err != nil {
		panic(fmt.Errorf("creating database: %w", err))
	}

	return dbName
}

func dropDatabase(dbName string) {
	db := rootDB()
	defer db.Close()

	if _, err := db.Exec("DROP DATABASE IF EXISTS " + dbName + " WITH (FORCE)"); err != nil {
		panic(fmt.Errorf("dropping database: %w", err))
	}
}
