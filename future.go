package airbrake

import (
	"context"
	"errors"
)

// Future is the pending result of an asynchronous delivery
type Future struct {
	done chan struct{}
	resp *Response
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func resolvedFuture(resp *Response, err error) *Future {
	f := newFuture()
	f.resolve(resp, err)
	return f
}

func (f *Future) resolve(resp *Response, err error) {
	f.resp, f.err = resp, err
	close(f.done)
}

// Done is closed once the delivery finished
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result blocks until the delivery finished
func (f *Future) Result() (*Response, error) {
	<-f.done
	return f.resp, f.err
}

// Wait is Result bounded by ctx. Giving up on the wait does not cancel the
// delivery itself.
func (f *Future) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Canceled reports whether the delivery ended because its context was
// canceled or timed out. It is false while the delivery is still running.
func (f *Future) Canceled() bool {
	select {
	case <-f.done:
		return IsCanceled(f.err)
	default:
		return false
	}
}

// Then runs fn with the result on its own goroutine once the delivery finished
func (f *Future) Then(fn func(*Response, error)) {
	go func() {
		<-f.done
		fn(f.resp, f.err)
	}()
}

// IsCanceled tells cancellation apart from other delivery failures
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
