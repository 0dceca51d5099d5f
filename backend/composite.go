package backend

type composite struct {
	Backend

	locks LockProvider
	jobs  JobStore
}

type ComposeOption func(*composite)

// UseLockProvider replaces the lock provider of the base backend, e.g. with the Redis provider.
func UseLockProvider(l LockProvider) ComposeOption {
	return func(c *composite) {
		c.locks = l
	}
}

// UseJobStore replaces the job store of the base backend.
func UseJobStore(j JobStore) ComposeOption {
	return func(c *composite) {
		c.jobs = j
	}
}

// Compose returns a backend that uses the stores of base unless replaced by an option.
func Compose(base Backend, opts ...ComposeOption) Backend {
	c := &composite{Backend: base}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *composite) Locks() LockProvider {
	if c.locks != nil {
		return c.locks
	}

	return c.Backend.Locks()
}

func (c *composite) Jobs() JobStore {
	if c.jobs != nil {
		return c.jobs
	}

	return c.Backend.Jobs()
}

// JobScheduled forwards the notifications of the base backend. It returns nil if the base cannot
// notify or the job store was replaced.
func (c *composite) JobScheduled() <-chan struct{} {
	if c.jobs != nil {
		return nil
	}

	if n, ok := c.Backend.(JobNotifier); ok {
		return n.JobScheduled()
	}

	return nil
}
