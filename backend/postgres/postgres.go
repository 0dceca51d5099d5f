package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/internal/metrickeys"
	"github.com/cschleiden/go-dispatch/internal/sqlstore"
	"github.com/cschleiden/go-dispatch/metrics"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/trace"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

func NewPostgresBackend(host string, port int, user, password, database string, opts ...option) *postgresBackend {
	options := &options{
		Options:         backend.ApplyOptions(),
		ApplyMigrations: true,
		SSLMode:         "disable",
	}

	for _, opt := range opts {
		opt(options)
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", host, port, user, password, database, options.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		panic(err)
	}

	if options.PostgresOptions != nil {
		options.PostgresOptions(db)
	}

	b := &postgresBackend{
		Store:   sqlstore.New(db, sqlstore.Postgres, &options.Options),
		dsn:     dsn,
		db:      db,
		options: options,
	}

	if options.ApplyMigrations {
		if err := b.Migrate(); err != nil {
			panic(err)
		}
	}

	if options.Notifications {
		b.listener = newNotificationListener(dsn, options.Logger)
		if err := b.listener.Start(context.Background()); err != nil {
			panic(err)
		}
	}

	return b
}

type postgresBackend struct {
	*sqlstore.Store

	dsn      string
	db       *sql.DB
	options  *options
	listener *notificationListener
}

var _ backend.Backend = (*postgresBackend)(nil)

// Migrate applies any pending database migrations.
func (pb *postgresBackend) Migrate() error {
	// The migration driver holds on to a connection, use a separate pool
	db, err := sql.Open("postgres", pb.dsn)
	if err != nil {
		return fmt.Errorf("opening schema database: %w", err)
	}

	dbi, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	migrations, err := iofs.New(migrationsFS, "db/migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", migrations, "postgres", dbi)
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	if err := db.Close(); err != nil {
		return fmt.Errorf("closing schema database: %w", err)
	}

	return nil
}

func (pb *postgresBackend) Jobs() backend.JobStore {
	if pb.listener == nil {
		return pb.Store.Jobs()
	}

	return &notifyingJobStore{JobStore: pb.Store.Jobs(), db: pb.db}
}

// JobScheduled implements backend.JobNotifier. It returns nil if notifications are disabled.
func (pb *postgresBackend) JobScheduled() <-chan struct{} {
	if pb.listener == nil {
		return nil
	}

	return pb.listener.notify
}

func (pb *postgresBackend) Options() *backend.Options {
	return &pb.options.Options
}

func (pb *postgresBackend) Tracer() trace.Tracer {
	return pb.options.TracerProvider.Tracer(backend.TracerName)
}

func (pb *postgresBackend) Metrics() metrics.Client {
	return pb.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "postgres"})
}

func (pb *postgresBackend) Close() error {
	if pb.listener != nil {
		if err := pb.listener.Close(); err != nil {
			return err
		}
	}

	return pb.db.Close()
}

type notifyingJobStore struct {
	backend.JobStore

	db *sql.DB
}

func (s *notifyingJobStore) Schedule(ctx context.Context, job *core.ScheduledJob) error {
	if err := s.JobStore.Schedule(ctx, job); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", scheduledJobsChannel, job.ID); err != nil {
		return fmt.Errorf("notifying scheduled job: %w", err)
	}

	return nil
}
