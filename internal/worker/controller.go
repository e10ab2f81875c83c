// Package worker provides the cooperative pause/exit controller, the FIFO
// queues, and the run loop shared by every ground-station worker.
package worker

import (
	"context"
	"sync"
)

// Controller carries the pause and exit requests for a group of workers.
// Workers observe it between units of work, so a request takes effect within
// the longest blocking bound of the worker.
type Controller struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{} // closed while not paused
	exit   chan struct{}
	once   sync.Once
}

// NewController returns a running (not paused) controller.
func NewController() *Controller {
	resume := make(chan struct{})
	close(resume)
	return &Controller{resume: resume, exit: make(chan struct{})}
}

// RequestPause makes subsequent CheckPause calls block.
func (c *Controller) RequestPause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.paused = true
	c.resume = make(chan struct{})
}

// RequestResume releases paused workers.
func (c *Controller) RequestResume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.resume)
}

// RequestExit asks every worker to stop. It also releases paused workers.
func (c *Controller) RequestExit() {
	c.once.Do(func() { close(c.exit) })
}

// IsExitRequested reports whether RequestExit has been called.
func (c *Controller) IsExitRequested() bool {
	select {
	case <-c.exit:
		return true
	default:
		return false
	}
}

// IsPaused reports whether the controller is paused.
func (c *Controller) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Done is closed once exit has been requested.
func (c *Controller) Done() <-chan struct{} { return c.exit }

// CheckPause blocks while paused. It returns false when the worker should
// stop instead of continuing (exit requested or ctx done).
func (c *Controller) CheckPause(ctx context.Context) bool {
	c.mu.Lock()
	resume := c.resume
	c.mu.Unlock()
	select {
	case <-resume:
		return !c.IsExitRequested() && ctx.Err() == nil
	case <-c.exit:
		return false
	case <-ctx.Done():
		return false
	}
}
