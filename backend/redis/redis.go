// Package redis provides a lock provider and a job store on Redis. Combine them with a backend
// that persists the remaining stores using backend.Compose.
package redis

import (
	"context"
	"fmt"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/internal/metrickeys"
	"github.com/cschleiden/go-dispatch/metrics"
	"github.com/redis/go-redis/v9"
)

func NewRedisBackend(client redis.UniversalClient, opts ...RedisBackendOption) (*redisBackend, error) {
	// Default options
	options := &RedisOptions{
		Options: backend.ApplyOptions(),
	}

	for _, opt := range opts {
		opt(options)
	}

	rb := &redisBackend{
		rdb:     client,
		options: options,
		keys:    newKeys(options.KeyPrefix),
	}

	// Preload scripts here. Usually redis-go attempts to execute them first, and if redis doesn't know
	// them, loads them. This doesn't work when using (transactional) pipelines, so eagerly load them on startup.
	ctx := context.Background()
	cmds := map[string]*redis.StringCmd{
		"releaseLockCmd": releaseLockCmd.Load(ctx, rb.rdb),
		"renewLockCmd":   renewLockCmd.Load(ctx, rb.rdb),
		"scheduleJobCmd": scheduleJobCmd.Load(ctx, rb.rdb),
		"claimJobCmd":    claimJobCmd.Load(ctx, rb.rdb),
		"extendJobCmd":   extendJobCmd.Load(ctx, rb.rdb),
		"completeJobCmd": completeJobCmd.Load(ctx, rb.rdb),
		"releaseJobCmd":  releaseJobCmd.Load(ctx, rb.rdb),
		"deleteJobsCmd":  deleteJobsCmd.Load(ctx, rb.rdb),
	}
	for name, cmd := range cmds {
		if cmd.Err() != nil {
			return nil, fmt.Errorf("loading redis script: %v %w", name, cmd.Err())
		}
	}

	return rb, nil
}

type redisBackend struct {
	rdb     redis.UniversalClient
	options *RedisOptions
	keys    *keys
}

func (rb *redisBackend) Locks() backend.LockProvider {
	return (*lockProvider)(rb)
}

func (rb *redisBackend) Jobs() backend.JobStore {
	return (*jobStore)(rb)
}

// Compose returns base with its lock provider and job store replaced by the Redis ones.
func (rb *redisBackend) Compose(base backend.Backend) backend.Backend {
	return backend.Compose(base, backend.UseLockProvider(rb.Locks()), backend.UseJobStore(rb.Jobs()))
}

func (rb *redisBackend) Metrics() metrics.Client {
	return rb.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "redis"})
}

func (rb *redisBackend) Close() error {
	return rb.rdb.Close()
}
