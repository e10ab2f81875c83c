package command

import (
	"context"
	"errors"
	"time"

	"droneops-ground/internal/telemetry"
	"droneops-ground/internal/worker"
)

// DefaultQueueTimeout bounds each wait on the snapshot queue.
const DefaultQueueTimeout = 500 * time.Millisecond

// Worker feeds snapshots from in through d and puts each issued status on
// out. It returns when the sentinel is dequeued, exit is requested, or ctx
// ends.
func Worker(ctx context.Context, d *Decision, in *worker.Queue[telemetry.Snapshot], out *worker.Queue[Status], ctl *worker.Controller, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultQueueTimeout
	}
	d.log.Info("command worker started", "target", d.target)
	defer d.log.Info("command worker exiting")
	return worker.Run(ctx, ctl, func(ctx context.Context) error {
		s, err := in.Get(ctx, timeout)
		switch {
		case errors.Is(err, worker.ErrEmpty):
			return nil
		case errors.Is(err, worker.ErrSentinel):
			d.log.Info("Received sentinel value, exiting")
			return worker.ErrStop
		case err != nil:
			return err
		}
		st, ok := d.Decide(ctx, s)
		if !ok {
			return nil
		}
		if err := out.Put(st); err != nil {
			d.log.Warn("command status dropped", "status", st.String(), "err", err)
		}
		return nil
	})
}
