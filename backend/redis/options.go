package redis

import (
	"github.com/cschleiden/go-dispatch/backend"
)

type RedisOptions struct {
	backend.Options

	KeyPrefix string
}

type RedisBackendOption func(*RedisOptions)

func WithBackendOptions(opts ...backend.BackendOption) RedisBackendOption {
	return func(o *RedisOptions) {
		for _, opt := range opts {
			opt(&o.Options)
		}
	}
}

// WithKeyPrefix namespaces all keys, so multiple deployments can share a Redis database.
func WithKeyPrefix(keyPrefix string) RedisBackendOption {
	return func(o *RedisOptions) {
		o.KeyPrefix = keyPrefix
	}
}
