package mysql

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/backend/test"
	"github.com/google/uuid"
)

const testUser = "root"
const testPassword = "root"

// Creating and dropping databases is terribly inefficient, but easiest for complete test isolation.

func Test_MysqlBackend(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	if err := ping(); err != nil {
		t.Skipf("mysql not available: %v", err)
	}

	var dbName string

	test.BackendTest(t, func() backend.Backend {
		dbName = createDatabase()

		return NewMysqlBackend("localhost", 3306, testUser, testPassword, dbName)
	}, func(b backend.Backend) {
		if err := b.Close(); err != nil {
			panic(err)
		}

		dropDatabase(dbName)
	})
}

func Test_EndToEndMysqlBackend(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	if err := ping(); err != nil {
		t.Skipf("mysql not available: %v", err)
	}

	var dbName string

	test.EndToEndBackendTest(t, func() backend.Backend {
		dbName = createDatabase()

		return NewMysqlBackend("localhost", 3306, testUser, testPassword, dbName)
	}, func(b backend.Backend) {
		if err := b.Close(); err != nil {
			panic(err)
		}

		dropDatabase(dbName)
	})
}

func rootDB() *sql.DB {
	db, err := sql.Open("mysql", fmt.Sprintf("%s:%s@/?interpolateParams=true", testUser, testPassword))
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

	if _, err := db.Exec("DROP DATABASE IF EXISTS " + dbName); err != nil {
		panic(fmt.Errorf("dropping database: %w", err))
	}
}
