package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"droneops-ground/internal/link"
	"droneops-ground/internal/worker"
)

// Emitter sends the ground station heartbeat.
type Emitter struct {
	link   link.Link
	log    *slog.Logger
	period time.Duration
	now    func() time.Time
}

// EmitterOption customizes an Emitter.
type EmitterOption func(*Emitter)

// WithEmitPeriod sets the send cadence.
func WithEmitPeriod(d time.Duration) EmitterOption {
	return func(e *Emitter) {
		if d > 0 {
			e.period = d
		}
	}
}

// WithEmitClock overrides the clock used for scheduling.
func WithEmitClock(now func() time.Time) EmitterOption {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEmitter validates its collaborators and returns an Emitter.
func NewEmitter(l link.Link, logger *slog.Logger, opts ...EmitterOption) (*Emitter, error) {
	if l == nil {
		return nil, fmt.Errorf("new emitter: %w", ErrNilLink)
	}
	if logger == nil {
		return nil, fmt.Errorf("new emitter: %w", ErrNilLogger)
	}
	e := &Emitter{link: l, log: logger, period: DefaultPeriod, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Emit sends one GCS heartbeat.
func (e *Emitter) Emit(ctx context.Context) error {
	return e.link.Send(ctx, link.Heartbeat{
		Type:      link.VehicleTypeGCS,
		Autopilot: link.AutopilotInvalid,
	})
}

// Schedule tracks absolute send deadlines so sleep jitter does not
// accumulate into drift.
type Schedule struct {
	period  time.Duration
	next    time.Time
	now     func() time.Time
	resyncs int
}

// NewSchedule starts the schedule at now.
func NewSchedule(period time.Duration, now func() time.Time) *Schedule {
	if now == nil {
		now = time.Now
	}
	return &Schedule{period: period, next: now(), now: now}
}

// Advance moves the deadline one period forward and returns how long to
// sleep until it. When the schedule has fallen more than a period behind,
// for example after a pause, it restarts from now instead of bursting.
func (s *Schedule) Advance() time.Duration {
	s.next = s.next.Add(s.period)
	wait := s.next.Sub(s.now())
	if wait < -s.period {
		s.next = s.now()
		s.resyncs++
		return 0
	}
	if wait < 0 {
		return 0
	}
	return wait
}

// Resyncs counts how often the schedule restarted from now.
func (s *Schedule) Resyncs() int { return s.resyncs }

// SenderWorker emits heartbeats on a drift-corrected schedule until exit.
// A failed send is logged and the schedule still advances.
func SenderWorker(ctx context.Context, e *Emitter, ctl *worker.Controller) error {
	e.log.Info("heartbeat sender started", "period", e.period)
	defer e.log.Info("heartbeat sender exiting")
	sched := NewSchedule(e.period, e.now)
	return worker.Run(ctx, ctl, func(ctx context.Context) error {
		if err := e.Emit(ctx); err != nil {
			e.log.Error("heartbeat send failed", "err", err)
		} else {
			e.log.Debug("heartbeat sent")
		}
		before := sched.Resyncs()
		wait := sched.Advance()
		if sched.Resyncs() > before {
			e.log.Warn("heartbeat schedule fell behind, restarting from now", "period", e.period)
		}
		if !worker.Sleep(ctx, ctl, wait) {
			return worker.ErrStop
		}
		return nil
	})
}
