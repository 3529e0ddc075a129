package pipeline

import (
	"context"
	"sync/atomic"
)

// completion is a single-settlement result cell for one transcoder
// invocation. Terminal callbacks may fire more than once or race each other;
// only the first settlement is delivered, so each request observes exactly
// one outcome.
type completion struct {
	settled atomic.Bool
	ch      chan error
}

func newCompletion() *completion {
	return &completion{ch: make(chan error, 1)}
}

// settle records the terminal result. It reports false when the cell was
// already settled, in which case the result is discarded.
func (c *completion) settle(err error) bool {
	if !c.settled.CompareAndSwap(false, true) {
		return false
	}
	c.ch <- err
	return true
}

// wait blocks until the cell settles or the context is done. The first
// return value is the settled transcoder result; the second is a context
// error when the wait itself was abandoned.
func (c *completion) wait(ctx context.Context) (error, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-c.ch:
		return err, nil
	}
}
