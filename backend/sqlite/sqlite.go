package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/internal/metrickeys"
	"github.com/cschleiden/go-dispatch/internal/sqlstore"
	"github.com/cschleiden/go-dispatch/metrics"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

func NewInMemoryBackend(opts ...option) *sqliteBackend {
	b := newSqliteBackend("file::memory:", opts...)

	// An in-memory database only exists as long as its connection, all access has to go through a
	// single connection.
	b.db.SetConnMaxIdleTime(0)
	b.db.SetMaxIdleConns(1)
	b.db.SetMaxOpenConns(1)

	b.migrateOrPanic()

	return b
}

func NewSqliteBackend(path string, opts ...option) *sqliteBackend {
	b := newSqliteBackend(fmt.Sprintf("file:%v?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_txlock=immediate", path), opts...)

	b.migrateOrPanic()

	return b
}

func newSqliteBackend(dsn string, opts ...option) *sqliteBackend {
	options := &options{
		Options:         backend.ApplyOptions(),
		ApplyMigrations: true,
	}

	for _, opt := range opts {
		opt(options)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		panic(err)
	}

	return &sqliteBackend{
		Store:   sqlstore.New(db, sqlstore.SQLite, &options.Options),
		db:      db,
		options: options,
	}
}

type sqliteBackend struct {
	*sqlstore.Store

	db      *sql.DB
	options *options
}

var _ backend.Backend = (*sqliteBackend)(nil)

func (sb *sqliteBackend) migrateOrPanic() {
	if !sb.options.ApplyMigrations {
		return
	}

	if err := sb.Migrate(); err != nil {
		panic(err)
	}
}

// Migrate applies any pending database migrations.
func (sb *sqliteBackend) Migrate() error {
	dbi, err := sqlite.WithInstance(sb.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	migrations, err := iofs.New(migrationsFS, "db/migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", migrations, "sqlite", dbi)
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	return nil
}

func (sb *sqliteBackend) Options() *backend.Options {
	return &sb.options.Options
}

func (sb *sqliteBackend) Tracer() trace.Tracer {
	return sb.options.TracerProvider.Tracer(backend.TracerName)
}

func (sb *sqliteBackend) Metrics() metrics.Client {
	return sb.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "sqlite"})
}

func (sb *sqliteBackend) Close() error {
	return sb.db.Close()
}
