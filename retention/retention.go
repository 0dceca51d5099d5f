// Package retention periodically removes finished instances together with their execution log.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/internal/metrickeys"
	"github.com/cschleiden/go-dispatch/log"
	"github.com/cschleiden/go-dispatch/metrics"
)

type Options struct {
	// Retention is how long finished instances are kept.
	Retention time.Duration

	// Interval between sweeps.
	Interval time.Duration

	BatchSize int
}

var DefaultOptions = Options{
	Retention: 7 * 24 * time.Hour,
	Interval:  time.Hour,
	BatchSize: 100,
}

type Option func(*Options)

func WithRetention(d time.Duration) Option {
	return func(o *Options) {
		o.Retention = d
	}
}

func WithInterval(d time.Duration) Option {
	return func(o *Options) {
		o.Interval = d
	}
}

func WithBatchSize(n int) Option {
	return func(o *Options) {
		o.BatchSize = n
	}
}

type Sweeper struct {
	backend backend.Backend
	options Options

	clock   clock.Clock
	logger  *slog.Logger
	metrics metrics.Client

	wg sync.WaitGroup
}

func NewSweeper(b backend.Backend, opts ...Option) *Sweeper {
	options := DefaultOptions
	for _, opt := range opts {
		opt(&options)
	}

	return &Sweeper{
		backend: b,
		options: options,
		clock:   b.Options().Clock,
		logger:  b.Options().Logger,
		metrics: b.Metrics(),
	}
}

// Sweep removes all instances that finished more than the retention period ago and returns how
// many were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	before := s.clock.Now().Add(-s.options.Retention)
	total := 0

	for {
		removed, err := backend.RemoveFinishedInstances(ctx, s.backend,
			backend.RemoveFinishedBefore(before),
			backend.RemoveBatchSize(s.options.BatchSize),
		)
		total += len(removed)
		s.metrics.Counter(metrickeys.InstanceRemoved, metrics.Tags{}, int64(len(removed)))

		if err != nil {
			return total, err
		}

		if len(removed) == 0 || len(removed) < s.options.BatchSize {
			return total, nil
		}
	}
}

// Start sweeps every interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		t := s.clock.Ticker(s.options.Interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := s.Sweep(ctx)
				if err != nil {
					s.logger.ErrorContext(ctx, "could not remove finished instances", "error", err)
					continue
				}

				if n > 0 {
					s.logger.InfoContext(ctx, "removed finished instances", log.CountKey, n)
				}
			}
		}
	}()
}

func (s *Sweeper) WaitForCompletion() {
	s.wg.Wait()
}
