package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/term"

	"droneops-ground/internal/admin"
	"droneops-ground/internal/command"
	"droneops-ground/internal/config"
	"droneops-ground/internal/link"
	"droneops-ground/internal/logging"
	"droneops-ground/internal/sink"
	"droneops-ground/internal/station"
)

func loggingOptions(cfg *config.Config) logging.Options {
	return logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}
}

// newLogger keeps stdout free for the console UI when it is active.
func newLogger(cfg *config.Config, tui bool) (*slog.Logger, io.Closer, error) {
	if tui {
		return logging.NewFileOnly(loggingOptions(cfg))
	}
	return logging.NewWithOptions(loggingOptions(cfg))
}

func commandParams(cfg *config.Config) command.Params {
	return command.Params{
		HeightTolerance: cfg.Command.HeightTolerance,
		AngleTolerance:  cfg.Command.AngleTolerance,
		ZSpeed:          cfg.Command.ZSpeed,
		TurningSpeed:    cfg.Command.TurningSpeed,
		TargetSystem:    cfg.Command.TargetSystem,
		TargetComponent: cfg.Command.TargetComponent,
	}
}

func targetPosition(cfg *config.Config) command.Position {
	return command.Position{X: cfg.Target.X, Y: cfg.Target.Y, Z: cfg.Target.Z}
}

func stationOptions(cfg *config.Config, sessionID string) station.Options {
	return station.Options{
		SessionID:          sessionID,
		Target:             targetPosition(cfg),
		Params:             commandParams(cfg),
		TelemetryTimeout:   cfg.Telemetry.Timeout,
		HeartbeatPeriod:    cfg.Heartbeat.Period,
		HeartbeatThreshold: cfg.Heartbeat.Threshold,
		QueueTimeout:       cfg.Command.QueueTimeout,
		QueueCapacity:      cfg.Queues.Capacity,
		InboxSize:          cfg.Link.Buffer,
	}
}

// runStation runs the ground station over t until a signal arrives, the
// admin API requests exit, or the link closes. t is closed on return, also
// when setup fails.
func runStation(ctx context.Context, cfg *config.Config, t link.Transport, endpoints string) error {
	defer t.Close()
	tui := cfg.Sinks.TUI && term.IsTerminal(int(os.Stdout.Fd()))
	logger, logCloser, err := newLogger(cfg, tui)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.NewContext(ctx, logger)

	sessionID := uuid.NewString()
	header := sink.Header{
		SessionID: sessionID,
		Target:    fmt.Sprintf("%.1f, %.1f, %.1f", cfg.Target.X, cfg.Target.Y, cfg.Target.Z),
		Endpoints: endpoints,
	}
	writer, console, cleanup, err := newWriters(ctx, cfg, header, tui, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	st, err := station.New(t, writer, logger, stationOptions(cfg, sessionID))
	if err != nil {
		return err
	}

	if cfg.Admin.Addr != "" {
		srv := admin.NewServer(st, logger.With("component", "admin"))
		if console != nil {
			console.SetAdminStatus(true)
		}
		go func() {
			if err := srv.Start(ctx, cfg.Admin.Addr); err != nil {
				logger.Error("admin server failed", "err", err)
				if console != nil {
					console.SetAdminStatus(false)
				}
			}
		}()
	}

	go func() {
		<-ctx.Done()
		st.Stop()
	}()
	return st.Run(ctx)
}
