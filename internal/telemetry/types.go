// Fused vehicle state snapshots
package telemetry

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Snapshot is one fused reading of attitude and local position. Fields are
// optional so consumers check presence before use. A Snapshot is never
// mutated after construction.
type Snapshot struct {
	TimeBootMs uint32    `json:"time_boot_ms"` // max of both source readings
	X          *float64  `json:"x,omitempty"`
	Y          *float64  `json:"y,omitempty"`
	Z          *float64  `json:"z,omitempty"`
	VX         *float64  `json:"vx,omitempty"`
	VY         *float64  `json:"vy,omitempty"`
	VZ         *float64  `json:"vz,omitempty"`
	Roll       *float64  `json:"roll,omitempty"`
	Pitch      *float64  `json:"pitch,omitempty"`
	Yaw        *float64  `json:"yaw,omitempty"`
	RollSpeed  *float64  `json:"rollspeed,omitempty"`
	PitchSpeed *float64  `json:"pitchspeed,omitempty"`
	YawSpeed   *float64  `json:"yawspeed,omitempty"`
	ReceivedAt time.Time `json:"ts"` // TIME INDEX
}

// SnapshotTableName holds the table name used when writing to GreptimeDB.
// It defaults to "vehicle_snapshot" and can be overridden via the
// GREPTIMEDB_TABLE environment variable.
var SnapshotTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TABLE"); env != "" {
		return env
	}
	return "vehicle_snapshot"
}()

func (Snapshot) TableName() string {
	return SnapshotTableName
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Value dereferences p, returning 0 when absent.
func Value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "t=%dms", s.TimeBootMs)
	field := func(name string, p *float64) {
		if p != nil {
			fmt.Fprintf(&b, " %s=%.3f", name, *p)
		}
	}
	field("x", s.X)
	field("y", s.Y)
	field("z", s.Z)
	field("vx", s.VX)
	field("vy", s.VY)
	field("vz", s.VZ)
	field("roll", s.Roll)
	field("pitch", s.Pitch)
	field("yaw", s.Yaw)
	return b.String()
}
