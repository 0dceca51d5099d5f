package metrics

import (
	"github.com/benbjohnson/clock"
)

type Timer struct {
	client Client
	clock  clock.Clock
	start  int64
	name   string
	tags   Tags
}

func NewTimer(client Client, clk clock.Clock, name string, tags Tags) *Timer {
	return &Timer{
		client: client,
		clock:  clk,
		start:  clk.Now().UnixNano(),
		name:   name,
		tags:   tags,
	}
}

// Stop the timer and send the elapsed time as milliseconds as a distribution metric
func (t *Timer) Stop() {
	elapsed := t.clock.Now().UnixNano() - t.start
	t.client.Distribution(t.name, t.tags, float64(elapsed)/1e6)
}
