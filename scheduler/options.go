package scheduler

import "time"

type Options struct {
	// NodeID identifies this node as claim owner. Defaults to a random id.
	NodeID string

	Pollers int

	// MaxParallelJobs is the number of jobs a node fires concurrently.
	MaxParallelJobs int

	PollingInterval time.Duration

	// MaxPollBackoff bounds the wait after the job store failed.
	MaxPollBackoff time.Duration

	// BatchSize is the number of due jobs read per poll.
	BatchSize int

	// ClaimTimeout is the claim lease of a job. A job whose claim expired, for example because the
	// node crashed, is claimed again by another node.
	ClaimTimeout time.Duration

	// HeartbeatInterval is the interval at which claims of running jobs are extended.
	HeartbeatInterval time.Duration

	// RetryDelay moves a job back when its instance could not be locked.
	RetryDelay time.Duration
}

var DefaultOptions = Options{
	Pollers:           1,
	MaxParallelJobs:   8,
	PollingInterval:   time.Second,
	MaxPollBackoff:    30 * time.Second,
	BatchSize:         16,
	ClaimTimeout:      30 * time.Second,
	HeartbeatInterval: 10 * time.Second,
	RetryDelay:        5 * time.Second,
}

type Option func(*Options)

func WithNodeID(id string) Option {
	return func(o *Options) {
		o.NodeID = id
	}
}

func WithPollers(n int) Option {
	return func(o *Options) {
		o.Pollers = n
	}
}

func WithMaxParallelJobs(n int) Option {
	return func(o *Options) {
		o.MaxParallelJobs = n
	}
}

func WithPollingInterval(d time.Duration) Option {
	return func(o *Options) {
		o.PollingInterval = d
	}
}

func WithClaimTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ClaimTimeout = d
	}
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *Options) {
		o.HeartbeatInterval = d
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) {
		o.RetryDelay = d
	}
}
