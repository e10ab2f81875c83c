package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"droneops-ground/internal/link"
	"droneops-ground/internal/worker"
)

// DefaultTimeout bounds one Poll call.
const DefaultTimeout = time.Second

var (
	ErrNilLink   = errors.New("link is required")
	ErrNilLogger = errors.New("logger is required")
)

// Fusion combines ATTITUDE and LOCAL_POSITION_NED readings into snapshots.
type Fusion struct {
	link    link.Link
	log     *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// Option customizes a Fusion.
type Option func(*Fusion)

// WithTimeout sets the per-poll budget.
func WithTimeout(d time.Duration) Option {
	return func(f *Fusion) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithClock overrides the wall clock used for ReceivedAt.
func WithClock(now func() time.Time) Option {
	return func(f *Fusion) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFusion validates its collaborators and returns a Fusion.
func NewFusion(l link.Link, logger *slog.Logger, opts ...Option) (*Fusion, error) {
	if l == nil {
		return nil, fmt.Errorf("new fusion: %w", ErrNilLink)
	}
	if logger == nil {
		return nil, fmt.Errorf("new fusion: %w", ErrNilLogger)
	}
	f := &Fusion{link: l, log: logger, timeout: DefaultTimeout, now: time.Now}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

// Poll waits for one attitude and one position reading within the budget.
// Readings are scoped to this call: a lone reading left when the budget runs
// out is discarded.
func (f *Fusion) Poll(ctx context.Context) (Snapshot, bool) {
	var (
		att *link.Attitude
		pos *link.LocalPosition
	)
	deadline := time.Now().Add(f.timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			f.log.Debug("telemetry budget exhausted", "attitude", att != nil, "position", pos != nil)
			return Snapshot{}, false
		}
		m, err := f.link.Receive(ctx, remaining)
		if err != nil {
			switch link.KindOf(err) {
			case link.Timeout:
				f.log.Debug("telemetry receive timed out")
			default:
				f.log.Warn("telemetry receive failed", "err", err)
			}
			return Snapshot{}, false
		}
		switch v := m.(type) {
		case link.Attitude:
			att = &v
		case link.LocalPosition:
			pos = &v
		default:
			continue
		}
		if att != nil && pos != nil {
			return f.fuse(*att, *pos), true
		}
	}
}

func (f *Fusion) fuse(att link.Attitude, pos link.LocalPosition) Snapshot {
	ts := max(att.TimeBootMs, pos.TimeBootMs)
	return Snapshot{
		TimeBootMs: ts,
		X:          Float(float64(pos.X)),
		Y:          Float(float64(pos.Y)),
		Z:          Float(float64(pos.Z)),
		VX:         Float(float64(pos.VX)),
		VY:         Float(float64(pos.VY)),
		VZ:         Float(float64(pos.VZ)),
		Roll:       Float(float64(att.Roll)),
		Pitch:      Float(float64(att.Pitch)),
		Yaw:        Float(float64(att.Yaw)),
		RollSpeed:  Float(float64(att.RollSpeed)),
		PitchSpeed: Float(float64(att.PitchSpeed)),
		YawSpeed:   Float(float64(att.YawSpeed)),
		ReceivedAt: f.now().UTC(),
	}
}

// Worker polls f until exit and puts every snapshot on out.
func Worker(ctx context.Context, f *Fusion, out *worker.Queue[Snapshot], ctl *worker.Controller) error {
	f.log.Info("telemetry worker started", "timeout", f.timeout)
	defer f.log.Info("telemetry worker exiting")
	return worker.Run(ctx, ctl, func(ctx context.Context) error {
		s, ok := f.Poll(ctx)
		if !ok {
			return nil
		}
		f.log.Debug("snapshot", "snapshot", s.String())
		if err := out.Put(s); err != nil {
			f.log.Warn("snapshot dropped", "err", err)
		}
		return nil
	})
}
