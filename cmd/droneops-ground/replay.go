package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"droneops-ground/internal/command"
	"droneops-ground/internal/config"
	"droneops-ground/internal/link"
	"droneops-ground/internal/logging"
	"droneops-ground/internal/sink"
)

var (
	replayInput string
	replaySpeed float64
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded snapshot log through the correction loop",
	Long:  "replay feeds snapshot rows from a JSONL log into the command decision in dry-run mode and records the commands it would issue.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, closer, err := newLogger(cfg, false)
		if err != nil {
			return err
		}
		defer closer.Close()
		ctx := logging.NewContext(context.Background(), logger)

		writer, _, cleanup, err := newWriters(ctx, cfg, sink.Header{}, false, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		n, err := replaySnapshots(ctx, cfg, replayInput, replaySpeed, writer, logger)
		logger.Info("replay finished", "snapshots", n)
		return err
	},
}

// dryRunLink accepts commands without sending them anywhere.
type dryRunLink struct {
	log *slog.Logger
}

func (dryRunLink) Receive(ctx context.Context, timeout time.Duration) (link.Message, error) {
	return nil, &link.Error{Op: "receive", Kind: link.Timeout}
}

func (d dryRunLink) Send(ctx context.Context, m link.Message) error {
	if cmd, ok := m.(link.CommandLong); ok {
		d.log.Debug("dry-run command", "command", cmd.Command.String(), "params", cmd.Params)
	}
	return nil
}

// replayDecider runs each replayed snapshot through the decision and
// records the resulting command.
type replayDecider struct {
	ctx      context.Context
	decision *command.Decision
	out      sink.StatusWriter
}

func (r *replayDecider) WriteSnapshot(row sink.SnapshotRow) error {
	st, ok := r.decision.Decide(r.ctx, row.Snapshot)
	if !ok {
		return nil
	}
	return r.out.WriteCommand(sink.CommandRow{
		SessionID: row.SessionID,
		Action:    string(st.Action),
		Delta:     st.Delta,
		Status:    st.String(),
		Timestamp: row.ReceivedAt,
	})
}

func replaySnapshots(ctx context.Context, cfg *config.Config, path string, speed float64, out sink.StatusWriter, logger *slog.Logger) (int, error) {
	if out == nil {
		return 0, errors.New("replay: output writer required")
	}
	target := targetPosition(cfg)
	d, err := command.NewDecision(dryRunLink{log: logger}, &target, logger.With("worker", "command"), command.WithParams(commandParams(cfg)))
	if err != nil {
		return 0, err
	}
	return sink.ReplayLogFile(ctx, path, &replayDecider{ctx: ctx, decision: d, out: out}, speed)
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to snapshot log file (JSONL)")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 0, "Playback speed multiplier; 0 replays without delay")
	replayCmd.MarkFlagRequired("input")
}
