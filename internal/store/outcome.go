package store

import (
	"context"
	"sync"
)

// Outcome is the one-shot result of a background lifecycle step (load or
// close). It resolves exactly once, with nil on success or an *Error.
type Outcome struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newOutcome() *Outcome {
	return &Outcome{done: make(chan struct{})}
}

// resolve records the result. Later calls are ignored.
func (o *Outcome) resolve(err error) {
	o.once.Do(func() {
		o.err = err
		close(o.done)
	})
}

// Done is closed when the outcome resolves.
func (o *Outcome) Done() <-chan struct{} {
	return o.done
}

// Resolved reports whether the outcome has resolved.
func (o *Outcome) Resolved() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// Err returns the result. It is nil until the outcome resolves.
func (o *Outcome) Err() error {
	if !o.Resolved() {
		return nil
	}
	return o.err
}

// Wait blocks until the outcome resolves or ctx is done.
func (o *Outcome) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
