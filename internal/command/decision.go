// Package command steers the vehicle toward a fixed target with altitude and
// heading corrections.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"droneops-ground/internal/link"
	"droneops-ground/internal/telemetry"
)

var (
	ErrNilLink   = errors.New("link is required")
	ErrNilLogger = errors.New("logger is required")
	ErrNilTarget = errors.New("target is required")
)

// Position is a point in the vehicle's local frame, in meters.
type Position struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	Z float64 `yaml:"z" json:"z"`
}

// Params holds the tolerances, rates and addressing of issued commands.
type Params struct {
	HeightTolerance float64 // m
	AngleTolerance  float64 // deg
	ZSpeed          float64 // m/s
	TurningSpeed    float64 // deg/s
	TargetSystem    uint8
	TargetComponent uint8
}

// DefaultParams returns the stock correction parameters.
func DefaultParams() Params {
	return Params{
		HeightTolerance: 0.5,
		AngleTolerance:  5.0,
		ZSpeed:          1.0,
		TurningSpeed:    5.0,
		TargetSystem:    1,
		TargetComponent: 0,
	}
}

// Action names a correction kind.
type Action string

const (
	ActionChangeAltitude Action = "CHANGE ALTITUDE"
	ActionChangeYaw      Action = "CHANGE YAW"
)

// Status describes the command issued by one correction cycle. Delta is in
// meters for altitude and degrees for yaw.
type Status struct {
	Action Action  `json:"action"`
	Delta  float64 `json:"delta"`
}

func (s Status) String() string {
	return string(s.Action) + ": " + formatDelta(s.Delta)
}

// formatDelta prints the shortest exact decimal and always keeps a fractional
// part, so 2 prints as "2.0".
func formatDelta(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// Decision compares snapshots against the target and issues at most one
// command per call.
type Decision struct {
	link   link.Link
	log    *slog.Logger
	target Position
	params Params
	vel    VelocityAccumulator
}

// DecisionOption customizes a Decision.
type DecisionOption func(*Decision)

// WithParams replaces the default parameters.
func WithParams(p Params) DecisionOption {
	return func(d *Decision) { d.params = p }
}

// NewDecision validates its collaborators and returns a Decision. The target
// is copied and never changes afterwards.
func NewDecision(l link.Link, target *Position, logger *slog.Logger, opts ...DecisionOption) (*Decision, error) {
	if l == nil {
		return nil, fmt.Errorf("new decision: %w", ErrNilLink)
	}
	if target == nil {
		return nil, fmt.Errorf("new decision: %w", ErrNilTarget)
	}
	if logger == nil {
		return nil, fmt.Errorf("new decision: %w", ErrNilLogger)
	}
	d := &Decision{link: l, log: logger, target: *target, params: DefaultParams()}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Target returns the fixed target.
func (d *Decision) Target() Position { return d.target }

// Velocity returns the accumulated velocity statistics.
func (d *Decision) Velocity() VelocityAccumulator { return d.vel }

// Decide runs one correction cycle. Altitude takes priority over heading; a
// cycle that corrects altitude never also corrects yaw. The returned bool is
// false when nothing was sent.
func (d *Decision) Decide(ctx context.Context, s telemetry.Snapshot) (Status, bool) {
	if s.VX != nil && s.VY != nil && s.VZ != nil {
		d.vel.Add(*s.VX, *s.VY, *s.VZ)
		mx, my, mz := d.vel.Mean()
		d.log.Info(fmt.Sprintf("Average velocity: (%.3f, %.3f, %.3f) m/s", mx, my, mz))
	}

	if s.Z != nil {
		dz := d.target.Z - *s.Z
		if math.Abs(dz) > d.params.HeightTolerance {
			return d.send(ctx, link.CommandLong{
				TargetSystem:    d.params.TargetSystem,
				TargetComponent: d.params.TargetComponent,
				Command:         link.CommandConditionChangeAlt,
				Params:          [7]float32{float32(d.params.ZSpeed), 0, 0, 0, 0, 0, float32(d.target.Z)},
			}, Status{Action: ActionChangeAltitude, Delta: dz})
		}
	}

	if s.X != nil && s.Y != nil && s.Yaw != nil {
		bearing := math.Atan2(d.target.Y-*s.Y, d.target.X-*s.X)
		deg := normalizeAngle(bearing-*s.Yaw) * 180 / math.Pi
		if math.Abs(deg) > d.params.AngleTolerance {
			dir := float32(1)
			if deg < 0 {
				dir = -1
			}
			return d.send(ctx, link.CommandLong{
				TargetSystem:    d.params.TargetSystem,
				TargetComponent: d.params.TargetComponent,
				Command:         link.CommandConditionYaw,
				Params:          [7]float32{float32(math.Abs(deg)), float32(d.params.TurningSpeed), dir, 1, 0, 0, 0},
			}, Status{Action: ActionChangeYaw, Delta: deg})
		}
	}
	return Status{}, false
}

func (d *Decision) send(ctx context.Context, cmd link.CommandLong, st Status) (Status, bool) {
	if err := d.link.Send(ctx, cmd); err != nil {
		d.log.Error("command send failed", "command", cmd.Command, "err", err)
		return Status{}, false
	}
	d.log.Info("command sent", "command", cmd.Command, "delta", fmt.Sprintf("%.2f", st.Delta))
	return st, true
}

// normalizeAngle maps a radian angle into (-pi, pi].
func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// VelocityAccumulator keeps lifetime velocity sums for the average log line.
type VelocityAccumulator struct {
	SumX, SumY, SumZ float64
	Count            uint64
}

// Add records one velocity sample.
func (v *VelocityAccumulator) Add(x, y, z float64) {
	v.SumX += x
	v.SumY += y
	v.SumZ += z
	v.Count++
}

// Mean returns the average velocity, or zeros before any sample.
func (v VelocityAccumulator) Mean() (float64, float64, float64) {
	if v.Count == 0 {
		return 0, 0, 0
	}
	n := float64(v.Count)
	return v.SumX / n, v.SumY / n, v.SumZ / n
}
