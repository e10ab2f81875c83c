package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"droneops-ground/internal/telemetry"
)

const defaultGreptimePort = 4001

// GreptimeDB tables for commands and link transitions.
const (
	CommandTableName = "ground_command"
	LinkTableName    = "ground_link"
)

// greptimeClient is the subset of the ingester client used here.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes rows to GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	client       greptimeClient
	log          *slog.Logger
	timeout      time.Duration
	snapTable    string
	commandTable string
	linkTable    string
}

// NewGreptimeDBWriter connects to endpoint (host or host:port). Tables are
// created by GreptimeDB on first write.
func NewGreptimeDBWriter(endpoint, database string, logger *slog.Logger) (*GreptimeDBWriter, error) {
	host, port := endpoint, defaultGreptimePort
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid greptimedb port %q: %w", p, err)
		}
		host, port = h, n
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptimedb client: %w", err)
	}
	return newGreptimeDBWriter(client, logger), nil
}

func newGreptimeDBWriter(client greptimeClient, logger *slog.Logger) *GreptimeDBWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &GreptimeDBWriter{
		client:       client,
		log:          logger,
		timeout:      5 * time.Second,
		snapTable:    telemetry.SnapshotTableName,
		commandTable: CommandTableName,
		linkTable:    LinkTableName,
	}
}

func (w *GreptimeDBWriter) write(name string, tbl *table.Table, rows int) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		w.log.Error("greptimedb write failed", "table", name, "err", err)
		return err
	}
	w.log.Debug("greptimedb write", "table", name, "rows", rows)
	return nil
}

// WriteSnapshot inserts a single snapshot row.
func (w *GreptimeDBWriter) WriteSnapshot(row SnapshotRow) error {
	return w.WriteSnapshots([]SnapshotRow{row})
}

// WriteSnapshots inserts multiple snapshot rows in one request.
func (w *GreptimeDBWriter) WriteSnapshots(rows []SnapshotRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.snapTable)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("session_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("time_boot_ms", types.UINT32); err != nil {
		return err
	}
	for _, name := range []string{"x", "y", "z", "vx", "vy", "vz", "roll", "pitch", "yaw", "rollspeed", "pitchspeed", "yawspeed"} {
		if err := tbl.AddFieldColumn(name, types.FLOAT64); err != nil {
			return err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	for _, r := range rows {
		v := telemetry.Value
		if err := tbl.AddRow(r.SessionID, r.TimeBootMs,
			v(r.X), v(r.Y), v(r.Z), v(r.VX), v(r.VY), v(r.VZ),
			v(r.Roll), v(r.Pitch), v(r.Yaw), v(r.RollSpeed), v(r.PitchSpeed), v(r.YawSpeed),
			r.ReceivedAt); err != nil {
			return err
		}
	}
	return w.write(w.snapTable, tbl, len(rows))
}

// WriteCommand inserts an issued command.
func (w *GreptimeDBWriter) WriteCommand(row CommandRow) error {
	tbl, err := table.New(w.commandTable)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("session_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTagColumn("action", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("delta", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("status", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	if err := tbl.AddRow(row.SessionID, row.Action, row.Delta, row.Status, row.Timestamp); err != nil {
		return err
	}
	return w.write(w.commandTable, tbl, 1)
}

// WriteLink inserts a link state transition.
func (w *GreptimeDBWriter) WriteLink(row LinkRow) error {
	tbl, err := table.New(w.linkTable)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("session_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("state", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("missed", types.INT64); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	if err := tbl.AddRow(row.SessionID, row.State, int64(row.Missed), row.Timestamp); err != nil {
		return err
	}
	return w.write(w.linkTable, tbl, 1)
}
