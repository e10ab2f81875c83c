// Package sink records ground-station output: fused snapshots, issued
// commands and link state changes.
package sink

import (
	"time"

	"droneops-ground/internal/telemetry"
)

// SnapshotRow is one fused snapshot tagged with the station session.
type SnapshotRow struct {
	SessionID string `json:"session_id"` // TAG
	telemetry.Snapshot
}

// CommandRow records one issued correction.
type CommandRow struct {
	SessionID string    `json:"session_id"` // TAG
	Action    string    `json:"action"`     // TAG
	Delta     float64   `json:"delta"`      // FIELD
	Status    string    `json:"status"`     // FIELD
	Timestamp time.Time `json:"ts"`         // TIME INDEX
}

// LinkRow records a heartbeat monitor state transition.
type LinkRow struct {
	SessionID string    `json:"session_id"` // TAG
	State     string    `json:"state"`      // FIELD
	Missed    int       `json:"missed"`     // FIELD
	Timestamp time.Time `json:"ts"`         // TIME INDEX
}

// SnapshotWriter is implemented by every recorder of snapshots.
type SnapshotWriter interface {
	WriteSnapshot(SnapshotRow) error
}

// StatusWriter is implemented by recorders of commands and link state.
type StatusWriter interface {
	WriteCommand(CommandRow) error
	WriteLink(LinkRow) error
}

// Writer records everything the station produces.
type Writer interface {
	SnapshotWriter
	StatusWriter
}

// Optional: writers may support batch mode
type batchSnapshotWriter interface {
	WriteSnapshots([]SnapshotRow) error
}
