package http

import (
	"context"
	"sync/atomic"
	"time"
)

// drain counts work the server is still doing so shutdown can wait for it.
// lookups is the subset of requests currently inside a controller workflow,
// i.e. holding or about to open a provider connection.
type drain struct {
	requests atomic.Int64
	lookups  atomic.Int64
}

// enter marks a request as started and returns the func that marks it done.
func (d *drain) enter() func() {
	d.requests.Add(1)
	return func() { d.requests.Add(-1) }
}

// lookup runs a controller workflow, counting it while it runs.
func (d *drain) lookup(fn func() error) error {
	d.lookups.Add(1)
	defer d.lookups.Add(-1)
	return fn()
}

// wait blocks until no requests remain or ctx is done, polling every interval.
func (d *drain) wait(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for d.requests.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

var serverDrain = &drain{}

// InFlightCount returns the number of requests being served.
func InFlightCount() int64 {
	return serverDrain.requests.Load()
}

// InFlightLookups returns the number of weather lookups in progress.
func InFlightLookups() int64 {
	return serverDrain.lookups.Load()
}

// WaitForInFlight blocks until in-flight requests reach zero or ctx is done.
func WaitForInFlight(ctx context.Context, checkInterval time.Duration) error {
	return serverDrain.wait(ctx, checkInterval)
}
