package dispatcher

import (
	"time"

	"github.com/cschleiden/go-dispatch/payload"
	"github.com/cschleiden/go-dispatch/runner"
	"github.com/cschleiden/go-dispatch/triggers"
)

type Options struct {
	// LockTimeout bounds how long an operation waits for an instance lock. Exceeding it is
	// reported as LockTimeout, never retried by the dispatcher.
	LockTimeout time.Duration

	// LockLease is the lease of instance locks. Locks are renewed in the background while a run is
	// in progress.
	LockLease time.Duration

	// MaxParallelResumes limits how many instances a single ResumeBookmarks or TriggerWorkflows call
	// processes concurrently.
	MaxParallelResumes int

	Hasher payload.Hasher

	RunnerOptions  []runner.Option
	TriggerOptions []triggers.Option
}

var DefaultOptions = Options{
	LockTimeout:        5 * time.Second,
	LockLease:          30 * time.Second,
	MaxParallelResumes: 8,
	Hasher:             payload.DefaultHasher,
}

type Option func(*Options)

func WithLockTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.LockTimeout = timeout
	}
}

func WithLockLease(lease time.Duration) Option {
	return func(o *Options) {
		o.LockLease = lease
	}
}

func WithMaxParallelResumes(n int) Option {
	return func(o *Options) {
		o.MaxParallelResumes = n
	}
}

func WithHasher(h payload.Hasher) Option {
	return func(o *Options) {
		o.Hasher = h
	}
}

func WithRunnerOptions(opts ...runner.Option) Option {
	return func(o *Options) {
		o.RunnerOptions = append(o.RunnerOptions, opts...)
	}
}

func WithTriggerOptions(opts ...triggers.Option) Option {
	return func(o *Options) {
		o.TriggerOptions = append(o.TriggerOptions, opts...)
	}
}
