package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"droneops-ground/internal/config"
	"droneops-ground/internal/link"
	"droneops-ground/internal/sink"
	"droneops-ground/internal/telemetry"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNewWritersFallsBackToStdout(t *testing.T) {
	cfg := config.Default()
	mw, console, cleanup, err := newWriters(context.Background(), &cfg, sink.Header{}, false, discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	defer cleanup()
	if console != nil {
		t.Fatalf("console should be off")
	}
	if mw.Len() != 1 {
		t.Fatalf("expected 1 writer, got %d", mw.Len())
	}
}

func TestNewWritersFileAndSQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Sinks.File = filepath.Join(dir, "snapshots.jsonl")
	cfg.Sinks.SQLite.Path = filepath.Join(dir, "flight.db")

	mw, _, cleanup, err := newWriters(context.Background(), &cfg, sink.Header{}, false, discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	if mw.Len() != 2 {
		t.Fatalf("expected file and sqlite writers, got %d", mw.Len())
	}
	row := sink.SnapshotRow{SessionID: "s1", Snapshot: telemetry.Snapshot{Z: telemetry.Float(8), ReceivedAt: time.Now().UTC()}}
	if err := mw.WriteSnapshot(row); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := mw.WriteCommand(sink.CommandRow{SessionID: "s1", Action: "CHANGE ALTITUDE", Delta: 2, Status: "CHANGE ALTITUDE: 2.0", Timestamp: time.Now().UTC()}); err != nil {
		t.Fatalf("write command failed: %v", err)
	}
	cleanup()

	for _, p := range []string{cfg.Sinks.File, cfg.Sinks.File + ".commands"} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if info.Size() == 0 {
			t.Fatalf("expected %s to be non-empty", p)
		}
	}
}

func TestNewWritersStdoutAlongsideFile(t *testing.T) {
	cfg := config.Default()
	cfg.Sinks.File = filepath.Join(t.TempDir(), "snapshots.jsonl")
	cfg.Sinks.Stdout = true
	mw, _, cleanup, err := newWriters(context.Background(), &cfg, sink.Header{}, false, discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	defer cleanup()
	if mw.Len() != 2 {
		t.Fatalf("expected file and stdout writers, got %d", mw.Len())
	}
}

func TestNewWritersBadFilePath(t *testing.T) {
	cfg := config.Default()
	cfg.Sinks.File = filepath.Join(t.TempDir(), "missing", "snapshots.jsonl")
	if _, _, _, err := newWriters(context.Background(), &cfg, sink.Header{}, false, discard()); err == nil {
		t.Fatalf("expected error for unwritable path")
	}
}

func TestStationOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Target = config.Position{X: 1, Y: 2, Z: 3}
	cfg.Command.HeightTolerance = 0.25
	opts := stationOptions(&cfg, "s1")
	if opts.SessionID != "s1" || opts.Target.Z != 3 || opts.Params.HeightTolerance != 0.25 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.HeartbeatThreshold != 5 || opts.QueueTimeout != 500*time.Millisecond {
		t.Fatalf("defaults not carried: %+v", opts)
	}
}

type commandCollector struct{ rows []sink.CommandRow }

func (c *commandCollector) WriteCommand(r sink.CommandRow) error {
	c.rows = append(c.rows, r)
	return nil
}

func (c *commandCollector) WriteLink(sink.LinkRow) error { return nil }

func TestReplaySnapshotsDryRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := json.NewEncoder(f)
	rows := []sink.SnapshotRow{
		{SessionID: "s1", Snapshot: telemetry.Snapshot{X: telemetry.Float(0), Y: telemetry.Float(0), Z: telemetry.Float(8), Yaw: telemetry.Float(0), ReceivedAt: time.Unix(0, 0).UTC()}},
		{SessionID: "s1", Snapshot: telemetry.Snapshot{X: telemetry.Float(0), Y: telemetry.Float(0), Z: telemetry.Float(10), Yaw: telemetry.Float(0), ReceivedAt: time.Unix(1, 0).UTC()}},
	}
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	f.Close()

	cfg := config.Default()
	out := &commandCollector{}
	n, err := replaySnapshots(context.Background(), &cfg, path, 0, out, discard())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 snapshots replayed, got %d", n)
	}
	if len(out.rows) != 1 || out.rows[0].Status != "CHANGE ALTITUDE: 2.0" {
		t.Fatalf("unexpected commands: %+v", out.rows)
	}
}

func TestDashboardTablesFollowConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Sinks.GreptimeDB.Table = "flight"
	tables := dashboardTables(&cfg)
	if tables.Database != "public" || tables.Snapshots != "flight" {
		t.Fatalf("unexpected tables %+v", tables)
	}
	if tables.Commands != sink.CommandTableName || tables.Links != sink.LinkTableName {
		t.Fatalf("unexpected status tables %+v", tables)
	}
}

func TestVehicleLoggingUsesSeparateFile(t *testing.T) {
	cfg := config.Default()
	if got := vehicleLogging(&cfg).File; got != "" {
		t.Fatalf("expected no vehicle log file, got %q", got)
	}
	cfg.Logging.File = filepath.Join("logs", "ground.log")
	if got := vehicleLogging(&cfg).File; got != filepath.Join("logs", "ground-vehicle.log") {
		t.Fatalf("unexpected vehicle log file %q", got)
	}
}

func TestRunStationClosesTransportOnSetupFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Sinks.TUI = false
	cfg.Logging.Level = "loud"
	stationEnd, _ := link.NewPipe(8)

	if err := runStation(context.Background(), &cfg, stationEnd, "test"); err == nil {
		t.Fatalf("expected logger setup error")
	}
	select {
	case <-stationEnd.Done():
	default:
		t.Fatalf("transport left open after failed setup")
	}
}
