package triggers

import "time"

type Options struct {
	// CacheTTL bounds how long a lookup result is served from the node local cache. Publishing on
	// another node becomes visible after at most this duration.
	CacheTTL time.Duration

	// CacheCapacity limits the number of cached lookup keys. 0 means unlimited.
	CacheCapacity uint64
}

var DefaultOptions = Options{
	CacheTTL:      5 * time.Second,
	CacheCapacity: 10_000,
}

type Option func(*Options)

func WithCacheTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.CacheTTL = ttl
	}
}

func WithCacheCapacity(n uint64) Option {
	return func(o *Options) {
		o.CacheCapacity = n
	}
}
