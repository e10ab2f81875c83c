package worker

import (
	"context"
	"errors"
	"time"
)

// ErrStop ends a Run loop without reporting a failure.
var ErrStop = errors.New("worker stop")

// Run calls step until exit is requested, ctx is done, or step returns an
// error. Exit and pause are checked before every step. ErrStop and context
// cancellation end the loop with a nil error.
func Run(ctx context.Context, ctl *Controller, step func(context.Context) error) error {
	for {
		if ctl.IsExitRequested() || ctx.Err() != nil {
			return nil
		}
		if !ctl.CheckPause(ctx) {
			return nil
		}
		if err := step(ctx); err != nil {
			if errors.Is(err, ErrStop) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// Sleep waits for d, returning false early if exit is requested or ctx ends.
func Sleep(ctx context.Context, ctl *Controller, d time.Duration) bool {
	if d <= 0 {
		return !ctl.IsExitRequested() && ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctl.Done():
		return false
	case <-ctx.Done():
		return false
	}
}
