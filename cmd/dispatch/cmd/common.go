package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/cschleiden/go-dispatch/activities"
	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/dispatcher"
	"github.com/cschleiden/go-dispatch/payload"
	"github.com/cschleiden/go-dispatch/registry"
	"github.com/cschleiden/go-dispatch/runner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app holds everything a command needs to talk to the configured backend.
type app struct {
	cfg        *Config
	logger     *slog.Logger
	backend    backend.Backend
	dispatcher *dispatcher.Dispatcher

	closeBackend func() error
	shutdown     func(context.Context) error
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	tp, shutdown, err := setupTracing(cmd.Context(), cfg.Tracing, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	b, closeBackend, err := openBackend(cfg.Backend, logger, tp)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, err
	}

	r := registry.New()
	if err := activities.Register(r); err != nil {
		_ = closeBackend()
		_ = shutdown(context.Background())
		return nil, fmt.Errorf("registering activities: %w", err)
	}

	d := dispatcher.New(b, r,
		dispatcher.WithLockTimeout(cfg.Dispatcher.LockTimeout),
		dispatcher.WithLockLease(cfg.Dispatcher.LockLease),
		dispatcher.WithMaxParallelResumes(cfg.Dispatcher.MaxParallelResumes),
		dispatcher.WithRunnerOptions(runner.WithMaxSteps(cfg.Dispatcher.MaxSteps)),
	)

	return &app{
		cfg:          cfg,
		logger:       logger,
		backend:      b,
		dispatcher:   d,
		closeBackend: closeBackend,
		shutdown:     shutdown,
	}, nil
}

func (a *app) Close() {
	if err := a.closeBackend(); err != nil {
		a.logger.Error("closing backend", "error", err)
	}

	if err := a.shutdown(context.Background()); err != nil {
		a.logger.Error("flushing traces", "error", err)
	}
}

// parsePayload decodes a JSON object given on the command line. An empty string is an empty
// payload.
func parsePayload(s string) (payload.Payload, error) {
	if s == "" {
		return nil, nil
	}

	var p payload.Payload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}

	return p, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
