// Package vehicle provides a simulated MAVLink vehicle for exercising the
// ground station without hardware.
package vehicle

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"droneops-ground/internal/link"
	"droneops-ground/internal/logging"
)

const (
	DefaultTick            = 100 * time.Millisecond
	DefaultHeartbeatPeriod = time.Second
	defaultClimbRate       = 1.0
	defaultTurnRate        = 10.0
)

// ErrNilTransport is returned when a simulator is built without a transport.
var ErrNilTransport = errors.New("vehicle: nil transport")

// State is the simulated vehicle state. Z is altitude in meters and Yaw is in
// radians within (-pi, pi].
type State struct {
	X, Y, Z    float64
	VX, VY, VZ float64
	Yaw        float64
	YawSpeed   float64
}

// Options configures a Simulator.
type Options struct {
	Tick            time.Duration
	HeartbeatPeriod time.Duration
	// DropoutRate is the probability that a heartbeat is skipped.
	DropoutRate float64
	// Cruise is the forward speed along the current heading in m/s.
	Cruise float64
	Start  State
	Seed   int64
	Now    func() time.Time
}

// Simulator plays the vehicle side of a link: it streams attitude and local
// position every tick, heartbeats once per period, and reacts to altitude
// and yaw commands.
type Simulator struct {
	transport link.Transport
	opts      Options
	rng       *rand.Rand
	now       func() time.Time
	boot      time.Time

	mu        sync.Mutex
	state     State
	altTarget *float64
	climbRate float64
	yawLeft   float64 // radians still to turn, signed
	turnRate  float64 // rad/s

	heartbeats int
	dropped    int
	commands   int
}

// New returns a Simulator writing to t.
func New(t link.Transport, opts Options) (*Simulator, error) {
	if t == nil {
		return nil, ErrNilTransport
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.HeartbeatPeriod <= 0 {
		opts.HeartbeatPeriod = DefaultHeartbeatPeriod
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Simulator{
		transport: t,
		opts:      opts,
		rng:       rand.New(rand.NewSource(opts.Seed)),
		now:       now,
		boot:      now(),
		state:     opts.Start,
	}
	s.state.Yaw = wrapAngle(s.state.Yaw)
	return s, nil
}

// State returns a copy of the current vehicle state.
func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats reports heartbeats sent, heartbeats dropped and commands applied.
func (s *Simulator) Stats() (heartbeats, dropped, commands int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeats, s.dropped, s.commands
}

// Run drives the simulator until ctx is done or the transport closes.
func (s *Simulator) Run(ctx context.Context) {
	log := logging.FromContext(ctx).With("component", "vehicle")
	log.Info("starting vehicle simulator", "tick", s.opts.Tick, "dropout_rate", s.opts.DropoutRate)
	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()
	hb := time.NewTicker(s.opts.HeartbeatPeriod)
	defer hb.Stop()

	s.heartbeat(ctx)
	last := s.now()
	for {
		select {
		case <-ctx.Done():
			log.Info("stopping vehicle simulator")
			return
		case <-s.transport.Done():
			log.Info("link closed, stopping vehicle simulator")
			return
		case m := <-s.transport.Messages():
			if cmd, ok := m.(link.CommandLong); ok {
				s.Apply(cmd)
				log.Debug("command applied", "command", cmd.Command.String(), "params", cmd.Params)
			}
		case <-hb.C:
			s.heartbeat(ctx)
		case <-ticker.C:
			now := s.now()
			s.Step(now.Sub(last).Seconds())
			last = now
			s.emit(ctx)
		}
	}
}

func (s *Simulator) write(ctx context.Context, m link.Message) {
	if err := s.transport.Write(m); err != nil {
		logging.FromContext(ctx).Debug("vehicle write failed", "kind", m.Kind(), "err", err)
	}
}

func (s *Simulator) heartbeat(ctx context.Context) {
	s.mu.Lock()
	drop := s.opts.DropoutRate > 0 && s.rng.Float64() < s.opts.DropoutRate
	if drop {
		s.dropped++
	} else {
		s.heartbeats++
	}
	s.mu.Unlock()
	if drop {
		return
	}
	s.write(ctx, link.Heartbeat{
		Type:      link.VehicleTypeQuadrotor,
		Autopilot: link.AutopilotArduPilot,
	})
}

func (s *Simulator) emit(ctx context.Context) {
	att, pos := s.Readings()
	s.write(ctx, att)
	s.write(ctx, pos)
}

// Readings renders the current state as the two telemetry messages.
func (s *Simulator) Readings() (link.Attitude, link.LocalPosition) {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	boot := uint32(s.now().Sub(s.boot).Milliseconds())
	return link.Attitude{
			TimeBootMs: boot,
			Yaw:        float32(st.Yaw),
			YawSpeed:   float32(st.YawSpeed),
		}, link.LocalPosition{
			TimeBootMs: boot,
			X:          float32(st.X),
			Y:          float32(st.Y),
			Z:          float32(st.Z),
			VX:         float32(st.VX),
			VY:         float32(st.VY),
			VZ:         float32(st.VZ),
		}
}

// Apply starts executing a command. Unknown commands are ignored.
func (s *Simulator) Apply(cmd link.CommandLong) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch cmd.Command {
	case link.CommandConditionChangeAlt:
		target := float64(cmd.Params[6])
		s.altTarget = &target
		s.climbRate = float64(cmd.Params[0])
		if s.climbRate <= 0 {
			s.climbRate = defaultClimbRate
		}
	case link.CommandConditionYaw:
		angle := math.Abs(float64(cmd.Params[0])) * math.Pi / 180
		rate := float64(cmd.Params[1])
		if rate <= 0 {
			rate = defaultTurnRate
		}
		dir := 1.0
		if cmd.Params[2] < 0 {
			dir = -1
		}
		s.yawLeft = dir * angle
		s.turnRate = rate * math.Pi / 180
	default:
		return
	}
	s.commands++
}

// Step advances the simulation by dt seconds.
func (s *Simulator) Step(dt float64) {
	if dt <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &s.state

	st.VZ = 0
	if s.altTarget != nil {
		diff := *s.altTarget - st.Z
		move := s.climbRate * dt
		if math.Abs(diff) <= move {
			st.Z = *s.altTarget
			s.altTarget = nil
		} else {
			st.VZ = math.Copysign(s.climbRate, diff)
			st.Z += st.VZ * dt
		}
	}

	st.YawSpeed = 0
	if s.yawLeft != 0 {
		turn := s.turnRate * dt
		if math.Abs(s.yawLeft) <= turn {
			st.Yaw = wrapAngle(st.Yaw + s.yawLeft)
			s.yawLeft = 0
		} else {
			st.YawSpeed = math.Copysign(s.turnRate, s.yawLeft)
			st.Yaw = wrapAngle(st.Yaw + st.YawSpeed*dt)
			s.yawLeft -= st.YawSpeed * dt
		}
	}

	st.VX = s.opts.Cruise * math.Cos(st.Yaw)
	st.VY = s.opts.Cruise * math.Sin(st.Yaw)
	st.X += st.VX * dt
	st.Y += st.VY * dt
}

func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
