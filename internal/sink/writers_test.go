package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"droneops-ground/internal/telemetry"
)

type collectWriter struct {
	snaps []SnapshotRow
	cmds  []CommandRow
	links []LinkRow
	err   error
}

func (c *collectWriter) WriteSnapshot(r SnapshotRow) error {
	c.snaps = append(c.snaps, r)
	return c.err
}

func (c *collectWriter) WriteCommand(r CommandRow) error {
	c.cmds = append(c.cmds, r)
	return c.err
}

func (c *collectWriter) WriteLink(r LinkRow) error {
	c.links = append(c.links, r)
	return c.err
}

type closingWriter struct {
	collectWriter
	closed bool
}

func (c *closingWriter) Close() error {
	c.closed = true
	return nil
}

func testSnapshot(ts time.Time) SnapshotRow {
	return SnapshotRow{
		SessionID: "s1",
		Snapshot: telemetry.Snapshot{
			TimeBootMs: 1200,
			X:          telemetry.Float(1),
			Y:          telemetry.Float(2),
			Z:          telemetry.Float(8),
			Yaw:        telemetry.Float(0.5),
			ReceivedAt: ts,
		},
	}
}

func TestFileWriter(t *testing.T) {
	dir := t.TempDir()
	ts := time.Unix(0, 0).UTC()
	snapPath := filepath.Join(dir, "snap.jsonl")
	cmdPath := filepath.Join(dir, "cmd.jsonl")
	linkPath := filepath.Join(dir, "link.jsonl")

	fw, err := NewFileWriter(snapPath, cmdPath, linkPath)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	if err := fw.WriteSnapshot(testSnapshot(ts)); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := fw.WriteCommand(CommandRow{SessionID: "s1", Action: "CHANGE ALTITUDE", Delta: 2, Status: "CHANGE ALTITUDE: 2.0", Timestamp: ts}); err != nil {
		t.Fatalf("command: %v", err)
	}
	if err := fw.WriteLink(LinkRow{SessionID: "s1", State: "connected", Timestamp: ts}); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(snapPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var snap SnapshotRow
	if err := json.Unmarshal(b, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.SessionID != "s1" || snap.TimeBootMs != 1200 || telemetry.Value(snap.Z) != 8 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.VX != nil {
		t.Fatalf("absent field should stay absent, got %v", *snap.VX)
	}

	b, err = os.ReadFile(cmdPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var cmd CommandRow
	if err := json.Unmarshal(b, &cmd); err != nil {
		t.Fatalf("decode command: %v", err)
	}
	if cmd.Status != "CHANGE ALTITUDE: 2.0" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestFileWriterOptionalLogs(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWriter(filepath.Join(dir, "snap.jsonl"), "", "")
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	defer fw.Close()
	if err := fw.WriteCommand(CommandRow{}); err != nil {
		t.Fatalf("disabled command log should be a no-op: %v", err)
	}
	if err := fw.WriteLink(LinkRow{}); err != nil {
		t.Fatalf("disabled link log should be a no-op: %v", err)
	}
}

func TestJSONStdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &JSONStdoutWriter{out: &buf}
	if err := w.WriteSnapshot(testSnapshot(time.Unix(0, 0).UTC())); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := w.WriteLink(LinkRow{State: "disconnected", Missed: 5}); err != nil {
		t.Fatalf("link: %v", err)
	}
	sc := bufio.NewScanner(&buf)
	var kinds []string
	for sc.Scan() {
		var env struct {
			Type string          `json:"type"`
			Row  json.RawMessage `json:"row"`
		}
		if err := json.Unmarshal(sc.Bytes(), &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		kinds = append(kinds, env.Type)
	}
	if strings.Join(kinds, ",") != "snapshot,link" {
		t.Fatalf("unexpected kinds: %v", kinds)
	}
}

func TestMultiWriterJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	bad := &collectWriter{err: boom}
	good := &closingWriter{}
	mw := NewMultiWriter(bad, good)
	if mw.Len() != 2 {
		t.Fatalf("Len = %d, want 2", mw.Len())
	}

	err := mw.WriteCommand(CommandRow{Action: "CHANGE YAW"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(good.cmds) != 1 {
		t.Fatalf("later writers must still receive the row")
	}
	if err := mw.WriteSnapshots([]SnapshotRow{{SessionID: "a"}, {SessionID: "b"}}); !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(good.snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(good.snaps))
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !good.closed {
		t.Fatalf("closer not closed")
	}
}

func TestReplayLog(t *testing.T) {
	rows := []SnapshotRow{
		testSnapshot(time.Unix(0, 0).UTC()),
		testSnapshot(time.Unix(1, 0).UTC()),
	}
	rows[1].SessionID = "s2"
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	cw := &collectWriter{}
	n, err := ReplayLog(context.Background(), &buf, cw, 0)
	if err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if n != len(rows) || len(cw.snaps) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(cw.snaps))
	}
	for i, r := range rows {
		if cw.snaps[i].SessionID != r.SessionID || !cw.snaps[i].ReceivedAt.Equal(r.ReceivedAt) {
			t.Fatalf("row %d mismatch: %+v vs %+v", i, cw.snaps[i], r)
		}
	}
}

func TestReplayLogCancelled(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	_ = enc.Encode(testSnapshot(time.Unix(0, 0).UTC()))
	_ = enc.Encode(testSnapshot(time.Unix(3600, 0).UTC()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cw := &collectWriter{}
	n, err := ReplayLog(ctx, &buf, cw, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n != 1 {
		t.Fatalf("expected first row before the wait, got %d", n)
	}
}
