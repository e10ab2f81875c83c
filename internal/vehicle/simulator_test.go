package vehicle

import (
	"context"
	"math"
	"testing"
	"time"

	"droneops-ground/internal/link"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNewRequiresTransport(t *testing.T) {
	if _, err := New(nil, Options{}); err != ErrNilTransport {
		t.Fatalf("expected ErrNilTransport, got %v", err)
	}
}

func TestChangeAltitude(t *testing.T) {
	_, vehicleEnd := link.NewPipe(8)
	s, err := New(vehicleEnd, Options{Start: State{Z: 8}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Apply(link.CommandLong{
		Command: link.CommandConditionChangeAlt,
		Params:  [7]float32{1, 0, 0, 0, 0, 0, 10},
	})
	s.Step(1)
	if st := s.State(); !near(st.Z, 9) || !near(st.VZ, 1) {
		t.Fatalf("after 1s expected z=9 vz=1, got z=%v vz=%v", st.Z, st.VZ)
	}
	s.Step(5)
	if st := s.State(); !near(st.Z, 10) || st.VZ != 0 {
		t.Fatalf("expected to settle at 10, got z=%v vz=%v", st.Z, st.VZ)
	}
	if _, _, cmds := s.Stats(); cmds != 1 {
		t.Fatalf("expected 1 command applied, got %d", cmds)
	}
}

func TestConditionYaw(t *testing.T) {
	_, vehicleEnd := link.NewPipe(8)
	s, _ := New(vehicleEnd, Options{Start: State{Yaw: 0}})
	s.Apply(link.CommandLong{
		Command: link.CommandConditionYaw,
		Params:  [7]float32{90, 45, -1, 1, 0, 0, 0},
	})
	s.Step(1)
	st := s.State()
	if !near(st.Yaw, -math.Pi/4) {
		t.Fatalf("expected yaw -pi/4 after 1s, got %v", st.Yaw)
	}
	if !near(st.YawSpeed, -math.Pi/4) {
		t.Fatalf("expected yaw speed -pi/4, got %v", st.YawSpeed)
	}
	s.Step(2)
	if st := s.State(); !near(st.Yaw, -math.Pi/2) || st.YawSpeed != 0 {
		t.Fatalf("expected yaw -pi/2 at rest, got %v speed %v", st.Yaw, st.YawSpeed)
	}
}

func TestYawWraps(t *testing.T) {
	_, vehicleEnd := link.NewPipe(8)
	s, _ := New(vehicleEnd, Options{Start: State{Yaw: 3}})
	s.Apply(link.CommandLong{
		Command: link.CommandConditionYaw,
		Params:  [7]float32{90, 90, 1, 1, 0, 0, 0},
	})
	s.Step(2)
	yaw := s.State().Yaw
	if yaw <= -math.Pi || yaw > math.Pi {
		t.Fatalf("yaw %v outside (-pi, pi]", yaw)
	}
	if !near(yaw, 3+math.Pi/2-2*math.Pi) {
		t.Fatalf("unexpected wrapped yaw %v", yaw)
	}
}

func TestCruiseFollowsHeading(t *testing.T) {
	_, vehicleEnd := link.NewPipe(8)
	s, _ := New(vehicleEnd, Options{Cruise: 2, Start: State{Yaw: math.Pi / 2}})
	s.Step(1)
	st := s.State()
	if math.Abs(st.X) > 1e-9 {
		t.Fatalf("expected no x motion, got %v", st.X)
	}
	if !near(st.Y, 2) {
		t.Fatalf("expected y=2, got %v", st.Y)
	}
}

func TestUnknownCommandIgnored(t *testing.T) {
	_, vehicleEnd := link.NewPipe(8)
	s, _ := New(vehicleEnd, Options{})
	s.Apply(link.CommandLong{Command: 400})
	if _, _, cmds := s.Stats(); cmds != 0 {
		t.Fatalf("unknown command should not count, got %d", cmds)
	}
}

func TestReadingsUseBootTime(t *testing.T) {
	base := time.Unix(100, 0)
	now := base
	_, vehicleEnd := link.NewPipe(8)
	s, _ := New(vehicleEnd, Options{Now: func() time.Time { return now }, Start: State{X: 1, Y: 2, Z: 3}})
	now = base.Add(1500 * time.Millisecond)
	att, pos := s.Readings()
	if att.TimeBootMs != 1500 || pos.TimeBootMs != 1500 {
		t.Fatalf("expected boot time 1500ms, got %d/%d", att.TimeBootMs, pos.TimeBootMs)
	}
	if pos.X != 1 || pos.Y != 2 || pos.Z != 3 {
		t.Fatalf("unexpected position %+v", pos)
	}
}

func TestRunStreamsOverPipe(t *testing.T) {
	stationEnd, vehicleEnd := link.NewPipe(256)
	s, _ := New(vehicleEnd, Options{Tick: 5 * time.Millisecond, HeartbeatPeriod: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	seen := map[link.Kind]bool{}
	deadline := time.After(2 * time.Second)
	for !(seen[link.KindHeartbeat] && seen[link.KindAttitude] && seen[link.KindLocalPosition]) {
		select {
		case m := <-stationEnd.Messages():
			seen[m.Kind()] = true
		case <-deadline:
			t.Fatalf("timed out, saw %v", seen)
		}
	}

	if err := stationEnd.Write(link.CommandLong{
		Command: link.CommandConditionChangeAlt,
		Params:  [7]float32{1, 0, 0, 0, 0, 0, 10},
	}); err != nil {
		t.Fatalf("write command: %v", err)
	}
	for {
		if _, _, cmds := s.Stats(); cmds == 1 {
			break
		}
		select {
		case <-stationEnd.Messages():
		case <-deadline:
			t.Fatalf("command never applied")
		}
	}
	cancel()
	<-done
}

func TestHeartbeatDropout(t *testing.T) {
	_, vehicleEnd := link.NewPipe(256)
	s, _ := New(vehicleEnd, Options{DropoutRate: 1})
	for i := 0; i < 10; i++ {
		s.heartbeat(context.Background())
	}
	sent, dropped, _ := s.Stats()
	if sent != 0 || dropped != 10 {
		t.Fatalf("expected all heartbeats dropped, got sent=%d dropped=%d", sent, dropped)
	}
}
