package runner

const DefaultMaxSteps = 10_000

type Options struct {
	// MaxSteps bounds the number of activities executed in a single run. Graphs may loop, a run
	// exceeding the limit faults the instance.
	MaxSteps int
}

var DefaultOptions = Options{
	MaxSteps: DefaultMaxSteps,
}

type Option func(*Options)

func WithMaxSteps(n int) Option {
	return func(o *Options) {
		o.MaxSteps = n
	}
}
