package airbrake

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// inflight tracks delivery goroutines so they can be drained on shutdown and
// bounds how many of them talk to the network at once.
type inflight struct {
	mu     sync.Mutex
	count  int
	idle   chan struct{} // closed while count is zero
	sem    *semaphore.Weighted
	logger *zap.Logger
	closed bool
}

func newInflight(limit int, logger *zap.Logger) *inflight {
	if limit <= 0 {
		limit = 1
	}
	idle := make(chan struct{})
	close(idle)
	return &inflight{
		idle:   idle,
		sem:    semaphore.NewWeighted(int64(limit)),
		logger: logger,
	}
}

// add registers a delivery; it fails once the tracker is closed
func (f *inflight) add() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrNotifierClosed
	}
	if f.count == 0 {
		f.idle = make(chan struct{})
	}
	f.count++
	return nil
}

func (f *inflight) done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.count--
	if f.count == 0 {
		close(f.idle)
	}
}

// acquire waits for a free network slot
func (f *inflight) acquire(ctx context.Context) error {
	return f.sem.Acquire(ctx, 1)
}

func (f *inflight) release() {
	f.sem.Release(1)
}

// wait blocks until all registered deliveries finish or ctx is done
func (f *inflight) wait(ctx context.Context) error {
	f.mu.Lock()
	idle := f.idle
	f.mu.Unlock()

	select {
	case <-idle:
		f.logger.Debug("In-flight deliveries drained")
		return nil
	case <-ctx.Done():
		f.logger.Warn("In-flight deliveries not drained before deadline")
		return ctx.Err()
	}
}

// close rejects new deliveries and drains the running ones
func (f *inflight) close(ctx context.Context) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	return f.wait(ctx)
}
