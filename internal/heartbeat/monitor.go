// Package heartbeat tracks vehicle liveness and emits the ground station's
// own heartbeat.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"droneops-ground/internal/link"
	"droneops-ground/internal/worker"
)

const (
	DefaultPeriod    = time.Second
	DefaultThreshold = 5
)

var (
	ErrNilLink   = errors.New("link is required")
	ErrNilLogger = errors.New("logger is required")
)

// State is the link liveness state.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Monitor is a two-state liveness machine driven by heartbeat receives.
// It starts Disconnected.
type Monitor struct {
	link      link.Link
	log       *slog.Logger
	period    time.Duration
	threshold int

	state  State
	missed int
	last   link.Heartbeat
}

// MonitorOption customizes a Monitor.
type MonitorOption func(*Monitor)

// WithPeriod sets the receive bound per poll.
func WithPeriod(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.period = d
		}
	}
}

// WithThreshold sets the number of consecutive misses before disconnecting.
func WithThreshold(n int) MonitorOption {
	return func(m *Monitor) {
		if n > 0 {
			m.threshold = n
		}
	}
}

// NewMonitor validates its collaborators and returns a Monitor.
func NewMonitor(l link.Link, logger *slog.Logger, opts ...MonitorOption) (*Monitor, error) {
	if l == nil {
		return nil, fmt.Errorf("new monitor: %w", ErrNilLink)
	}
	if logger == nil {
		return nil, fmt.Errorf("new monitor: %w", ErrNilLogger)
	}
	m := &Monitor{
		link:      l,
		log:       logger,
		period:    DefaultPeriod,
		threshold: DefaultThreshold,
		state:     Disconnected,
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Poll waits one period for a heartbeat and returns the resulting state.
// Timeouts and link failures both count as a miss.
func (m *Monitor) Poll(ctx context.Context) State {
	msg, err := m.link.Receive(ctx, m.period)
	if err == nil {
		if hb, ok := msg.(link.Heartbeat); ok {
			if m.state != Connected {
				m.log.Info("heartbeat link connected", "system", hb.SystemID, "component", hb.ComponentID)
			}
			m.last = hb
			m.missed = 0
			m.state = Connected
			return m.state
		}
	}
	m.missed++
	if err != nil && !errors.Is(err, link.ErrTimeout) {
		m.log.Warn("heartbeat receive failed", "err", err)
	}
	m.log.Debug("missed heartbeat", "missed", m.missed, "threshold", m.threshold)
	if m.missed >= m.threshold {
		if m.state != Disconnected {
			m.log.Warn("heartbeat link lost", "missed", m.missed)
		}
		m.state = Disconnected
	}
	return m.state
}

// State returns the current state without receiving.
func (m *Monitor) State() State { return m.state }

// Missed returns the consecutive miss count.
func (m *Monitor) Missed() int { return m.missed }

// Last returns the most recent heartbeat seen.
func (m *Monitor) Last() link.Heartbeat { return m.last }

// Report is what the receiver worker publishes after each poll.
type Report struct {
	State  State
	Missed int
	At     time.Time
}

// ReceiverWorker polls m until exit and puts a report of every resulting
// state on out.
func ReceiverWorker(ctx context.Context, m *Monitor, out *worker.Queue[Report], ctl *worker.Controller) error {
	m.log.Info("heartbeat receiver started", "period", m.period, "threshold", m.threshold)
	defer m.log.Info("heartbeat receiver exiting")
	return worker.Run(ctx, ctl, func(ctx context.Context) error {
		st := m.Poll(ctx)
		if err := out.Put(Report{State: st, Missed: m.missed, At: time.Now().UTC()}); err != nil {
			m.log.Warn("link state dropped", "err", err)
		}
		return nil
	})
}
