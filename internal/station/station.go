// Package station assembles the ground-station workers around one vehicle
// link and records what they produce.
package station

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"droneops-ground/internal/command"
	"droneops-ground/internal/heartbeat"
	"droneops-ground/internal/link"
	"droneops-ground/internal/sink"
	"droneops-ground/internal/telemetry"
	"droneops-ground/internal/worker"
)

// ErrNilWriter is returned when a station is built without a writer.
var ErrNilWriter = errors.New("station: writer is required")

// Options configures a Station. Zero values fall back to the component
// defaults.
type Options struct {
	SessionID          string
	Target             command.Position
	Params             command.Params
	TelemetryTimeout   time.Duration
	HeartbeatPeriod    time.Duration
	HeartbeatThreshold int
	QueueTimeout       time.Duration
	QueueCapacity      int
	InboxSize          int
	Now                func() time.Time
}

// Status is a point-in-time view of the station for operators.
type Status struct {
	SessionID     string              `json:"session_id"`
	StartedAt     time.Time           `json:"started_at"`
	Target        command.Position    `json:"target"`
	Paused        bool                `json:"paused"`
	Exiting       bool                `json:"exiting"`
	Link          string              `json:"link"`
	Missed        int                 `json:"missed"`
	LinkSince     time.Time           `json:"link_since"`
	Snapshots     int64               `json:"snapshots"`
	Commands      int64               `json:"commands"`
	Dropped       uint64              `json:"dropped"`
	Last          *telemetry.Snapshot `json:"last,omitempty"`
	LastCommand   string              `json:"last_command,omitempty"`
	LastCommandAt time.Time           `json:"last_command_at"`
}

// Station owns the link router, the worker queues and the controller.
type Station struct {
	opts   Options
	log    *slog.Logger
	writer sink.Writer
	now    func() time.Time

	router   *link.Router
	channels []*link.Channel
	ctl      *worker.Controller

	fusion   *telemetry.Fusion
	monitor  *heartbeat.Monitor
	emitter  *heartbeat.Emitter
	decision *command.Decision

	snapshots *worker.Queue[telemetry.Snapshot]
	decisions *worker.Queue[telemetry.Snapshot]
	records   *worker.Queue[telemetry.Snapshot]
	statuses  *worker.Queue[command.Status]
	reports   *worker.Queue[heartbeat.Report]

	stopOnce sync.Once

	mu     sync.Mutex
	status Status
	seen   bool
}

// New wires the workers around transport t. Every component is constructed
// here so a bad configuration fails before anything runs.
func New(t link.Transport, w sink.Writer, logger *slog.Logger, opts Options) (*Station, error) {
	if w == nil {
		return nil, ErrNilWriter
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.Params == (command.Params{}) {
		opts.Params = command.DefaultParams()
	}
	if opts.QueueTimeout <= 0 {
		opts.QueueTimeout = command.DefaultQueueTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger = logger.With("session_id", opts.SessionID)

	s := &Station{
		opts:      opts,
		log:       logger,
		writer:    w,
		now:       now,
		router:    link.NewRouter(t, link.WithInboxSize(opts.InboxSize), link.WithRouterLogger(logger.With("worker", "router"))),
		ctl:       worker.NewController(),
		snapshots: worker.NewQueue[telemetry.Snapshot](opts.QueueCapacity),
		decisions: worker.NewQueue[telemetry.Snapshot](opts.QueueCapacity),
		records:   worker.NewQueue[telemetry.Snapshot](opts.QueueCapacity),
		statuses:  worker.NewQueue[command.Status](opts.QueueCapacity),
		reports:   worker.NewQueue[heartbeat.Report](opts.QueueCapacity),
	}
	s.status = Status{
		SessionID: opts.SessionID,
		StartedAt: now().UTC(),
		Target:    opts.Target,
		Link:      heartbeat.Disconnected.String(),
	}

	telemetryCh := s.channel("telemetry", link.KindAttitude, link.KindLocalPosition)
	receiverCh := s.channel("heartbeat_receiver", link.KindHeartbeat)
	senderCh := s.channel("heartbeat_sender")
	commandCh := s.channel("command")

	var err error
	var fusionOpts []telemetry.Option
	if opts.TelemetryTimeout > 0 {
		fusionOpts = append(fusionOpts, telemetry.WithTimeout(opts.TelemetryTimeout))
	}
	if s.fusion, err = telemetry.NewFusion(telemetryCh, logger.With("worker", "telemetry"), fusionOpts...); err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	logger.Info("Telemetry initialized")

	if s.monitor, err = heartbeat.NewMonitor(receiverCh, logger.With("worker", "heartbeat_receiver"),
		heartbeat.WithPeriod(opts.HeartbeatPeriod), heartbeat.WithThreshold(opts.HeartbeatThreshold)); err != nil {
		return nil, fmt.Errorf("heartbeat receiver: %w", err)
	}
	logger.Info("Heartbeat receiver initialized")

	if s.emitter, err = heartbeat.NewEmitter(senderCh, logger.With("worker", "heartbeat_sender"),
		heartbeat.WithEmitPeriod(opts.HeartbeatPeriod)); err != nil {
		return nil, fmt.Errorf("heartbeat sender: %w", err)
	}
	logger.Info("Heartbeat sender initialized")

	target := opts.Target
	if s.decision, err = command.NewDecision(commandCh, &target, logger.With("worker", "command"),
		command.WithParams(opts.Params)); err != nil {
		return nil, fmt.Errorf("command: %w", err)
	}
	logger.Info("Command initialized")
	return s, nil
}

func (s *Station) channel(name string, kinds ...link.Kind) *link.Channel {
	c := s.router.Channel(name, kinds...)
	s.channels = append(s.channels, c)
	return c
}

// SessionID identifies this station run in every recorded row.
func (s *Station) SessionID() string { return s.opts.SessionID }

// Controller exposes the shared pause/exit controller.
func (s *Station) Controller() *worker.Controller { return s.ctl }

// Pause suspends every worker at its next check.
func (s *Station) Pause() {
	s.log.Info("pause requested")
	s.ctl.RequestPause()
}

// Resume releases paused workers.
func (s *Station) Resume() {
	s.log.Info("resume requested")
	s.ctl.RequestResume()
}

// Stop asks every worker to exit and pushes the sentinel through the
// snapshot queues. It is safe to call more than once.
func (s *Station) Stop() {
	s.stopOnce.Do(func() {
		s.log.Info("exit requested")
		s.snapshots.PutSentinel()
		s.ctl.RequestExit()
	})
}

// Status returns a copy of the current station status.
func (s *Station) Status() Status {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	st.Paused = s.ctl.IsPaused()
	st.Exiting = s.ctl.IsExitRequested()
	for _, c := range s.channels {
		st.Dropped += c.Dropped()
	}
	return st
}

// Run starts the router and every worker and blocks until they have all
// stopped. It returns the first worker error, if any.
func (s *Station) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.router.Close()

	routerDone := make(chan struct{})
	go func() {
		defer close(routerDone)
		if err := s.router.Run(ctx); err != nil {
			s.log.Warn("link router stopped", "err", err)
			s.Stop()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return telemetry.Worker(gctx, s.fusion, s.snapshots, s.ctl)
	})
	g.Go(func() error {
		return heartbeat.ReceiverWorker(gctx, s.monitor, s.reports, s.ctl)
	})
	g.Go(func() error {
		return heartbeat.SenderWorker(gctx, s.emitter, s.ctl)
	})
	g.Go(func() error {
		return command.Worker(gctx, s.decision, s.decisions, s.statuses, s.ctl, s.opts.QueueTimeout)
	})
	g.Go(func() error { return s.fanOut(gctx) })
	g.Go(func() error { return s.recordSnapshots(gctx) })
	g.Go(func() error { return s.recordStatuses(gctx) })
	g.Go(func() error { return s.recordReports(gctx) })

	s.log.Info("station running", "target", s.opts.Target)
	err := g.Wait()
	cancel()
	<-routerDone
	if err != nil {
		s.log.Error("station stopped with error", "err", err)
		return err
	}
	s.log.Info("station stopped")
	return nil
}

// fanOut hands each snapshot to the command worker and then queues it for
// the recorders, so a slow recorder never delays a correction. The sentinel
// is forwarded to both queues.
func (s *Station) fanOut(ctx context.Context) error {
	return worker.Run(ctx, s.ctl, func(ctx context.Context) error {
		snap, err := s.snapshots.Get(ctx, s.opts.QueueTimeout)
		switch {
		case errors.Is(err, worker.ErrEmpty):
			return nil
		case errors.Is(err, worker.ErrSentinel):
			s.decisions.PutSentinel()
			s.records.PutSentinel()
			return worker.ErrStop
		case err != nil:
			return err
		}
		if err := s.decisions.Put(snap); err != nil {
			s.log.Warn("snapshot not forwarded to command worker", "err", err)
		}

		s.mu.Lock()
		s.status.Snapshots++
		last := snap
		s.status.Last = &last
		s.mu.Unlock()

		if err := s.records.Put(snap); err != nil {
			s.log.Warn("snapshot not queued for recording", "err", err)
		}
		return nil
	})
}

func (s *Station) recordSnapshots(ctx context.Context) error {
	return worker.Run(ctx, s.ctl, func(ctx context.Context) error {
		snap, err := s.records.Get(ctx, s.opts.QueueTimeout)
		switch {
		case errors.Is(err, worker.ErrEmpty):
			return nil
		case errors.Is(err, worker.ErrSentinel):
			return worker.ErrStop
		case err != nil:
			return err
		}
		if err := s.writer.WriteSnapshot(sink.SnapshotRow{SessionID: s.opts.SessionID, Snapshot: snap}); err != nil {
			s.log.Warn("snapshot write failed", "err", err)
		}
		return nil
	})
}

func (s *Station) recordStatuses(ctx context.Context) error {
	return worker.Run(ctx, s.ctl, func(ctx context.Context) error {
		st, err := s.statuses.Get(ctx, s.opts.QueueTimeout)
		switch {
		case errors.Is(err, worker.ErrEmpty):
			return nil
		case errors.Is(err, worker.ErrSentinel):
			return worker.ErrStop
		case err != nil:
			return err
		}
		at := s.now().UTC()
		s.mu.Lock()
		s.status.Commands++
		s.status.LastCommand = st.String()
		s.status.LastCommandAt = at
		s.mu.Unlock()

		row := sink.CommandRow{
			SessionID: s.opts.SessionID,
			Action:    string(st.Action),
			Delta:     st.Delta,
			Status:    st.String(),
			Timestamp: at,
		}
		if err := s.writer.WriteCommand(row); err != nil {
			s.log.Warn("command write failed", "err", err)
		}
		return nil
	})
}

// recordReports keeps the latest link state and records transitions only.
func (s *Station) recordReports(ctx context.Context) error {
	return worker.Run(ctx, s.ctl, func(ctx context.Context) error {
		r, err := s.reports.Get(ctx, s.opts.QueueTimeout)
		switch {
		case errors.Is(err, worker.ErrEmpty):
			return nil
		case errors.Is(err, worker.ErrSentinel):
			return worker.ErrStop
		case err != nil:
			return err
		}
		state := r.State.String()
		s.mu.Lock()
		changed := !s.seen || s.status.Link != state
		s.seen = true
		s.status.Link = state
		s.status.Missed = r.Missed
		if changed {
			s.status.LinkSince = r.At
		}
		s.mu.Unlock()

		if !changed {
			return nil
		}
		row := sink.LinkRow{SessionID: s.opts.SessionID, State: state, Missed: r.Missed, Timestamp: r.At}
		if err := s.writer.WriteLink(row); err != nil {
			s.log.Warn("link write failed", "err", err)
		}
		return nil
	})
}
