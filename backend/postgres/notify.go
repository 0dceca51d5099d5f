package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
)

const scheduledJobsChannel = "scheduled_jobs"

// notificationListener wakes up local schedulers when any node schedules a job.
type notificationListener struct {
	dsn    string
	logger *slog.Logger

	listener *pq.Listener
	notify   chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func newNotificationListener(dsn string, logger *slog.Logger) *notificationListener {
	return &notificationListener{
		dsn:    dsn,
		logger: logger,
		notify: make(chan struct{}, 1),
	}
}

func (nl *notificationListener) Start(ctx context.Context) error {
	nl.mu.Lock()
	defer nl.mu.Unlock()

	if nl.started {
		return nil
	}

	nl.listener = pq.NewListener(nl.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			nl.logger.Error("scheduled jobs listener event", "event", ev, "error", err)
		}
	})

	if err := nl.listener.Listen(scheduledJobsChannel); err != nil {
		nl.listener.Close()
		return fmt.Errorf("listening to scheduled jobs channel: %w", err)
	}

	var hctx context.Context
	hctx, nl.cancel = context.WithCancel(context.Background())

	nl.started = true

	nl.wg.Add(1)
	go nl.handleNotifications(hctx)

	return nil
}

func (nl *notificationListener) Close() error {
	nl.mu.Lock()
	if nl.closed || !nl.started {
		nl.closed = true
		nl.mu.Unlock()
		return nil
	}
	nl.closed = true

	nl.cancel()
	nl.mu.Unlock()

	nl.wg.Wait()

	if err := nl.listener.Close(); err != nil {
		return fmt.Errorf("closing scheduled jobs listener: %w", err)
	}

	return nil
}

func (nl *notificationListener) handleNotifications(ctx context.Context) {
	defer nl.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-nl.listener.Notify:
			if !ok {
				return
			}

			// A nil notification follows a reconnect, wake up as notifications may have been lost
			select {
			case nl.notify <- struct{}{}:
			default:
				// Already has a pending notification
			}
		case <-time.After(90 * time.Second):
			if err := nl.listener.Ping(); err != nil {
				nl.logger.Error("scheduled jobs listener ping failed", "error", err)
			}
		}
	}
}
