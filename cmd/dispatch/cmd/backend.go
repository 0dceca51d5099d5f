package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/backend/memory"
	"github.com/cschleiden/go-dispatch/backend/monoprocess"
	"github.com/cschleiden/go-dispatch/backend/mysql"
	"github.com/cschleiden/go-dispatch/backend/postgres"
	"github.com/cschleiden/go-dispatch/backend/redis"
	"github.com/cschleiden/go-dispatch/backend/sqlite"
	redisv9 "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// openBackend returns the configured backend and a function closing every connection it holds.
func openBackend(cfg BackendConfig, logger *slog.Logger, tp trace.TracerProvider) (backend.Backend, func() error, error) {
	opts := []backend.BackendOption{
		backend.WithLogger(logger),
		backend.WithTracerProvider(tp),
	}

	var b backend.Backend
	closers := []func() error{}

	switch cfg.Type {
	case "memory":
		b = memory.NewMemoryBackend(opts...)

	case "sqlite":
		b = sqlite.NewSqliteBackend(cfg.SQLite.Path, sqlite.WithBackendOptions(opts...))

	case "mysql":
		c := cfg.MySQL
		b = mysql.NewMysqlBackend(c.Host, c.Port, c.User, c.Password, c.Database, mysql.WithBackendOptions(opts...))

	case "postgres":
		c := cfg.Postgres
		b = postgres.NewPostgresBackend(c.Host, c.Port, c.User, c.Password, c.Database,
			postgres.WithNotifications(c.Notifications),
			postgres.WithBackendOptions(opts...),
		)

	case "redis":
		c := cfg.Redis
		client := redisv9.NewUniversalClient(&redisv9.UniversalOptions{
			Addrs:        []string{c.Address},
			Username:     c.Username,
			Password:     c.Password,
			DB:           c.DB,
			WriteTimeout: 30 * time.Second,
			ReadTimeout:  30 * time.Second,
		})

		rb, err := redis.NewRedisBackend(client,
			redis.WithKeyPrefix(c.KeyPrefix),
			redis.WithBackendOptions(opts...),
		)
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}

		closers = append(closers, rb.Close)
		b = rb.Compose(sqlite.NewSqliteBackend(c.StorePath, sqlite.WithBackendOptions(opts...)))

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Type)
	}

	if cfg.Monoprocess {
		b = monoprocess.NewMonoprocessBackend(b, 16, 100*time.Millisecond)
	}

	closers = append([]func() error{b.Close}, closers...)

	return b, func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}

		return errors.Join(errs...)
	}, nil
}
