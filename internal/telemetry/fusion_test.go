package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"droneops-ground/internal/link"
	"droneops-ground/internal/worker"
)

// scriptLink replays a fixed sequence of receive results, then times out.
type scriptLink struct {
	msgs  []link.Message
	errs  []error
	calls int
}

func (s *scriptLink) Receive(ctx context.Context, timeout time.Duration) (link.Message, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.msgs) && s.msgs[i] != nil {
		return s.msgs[i], nil
	}
	if i >= len(s.msgs) {
		time.Sleep(timeout)
	}
	return nil, &link.Error{Op: "receive", Kind: link.Timeout}
}

func (s *scriptLink) Send(context.Context, link.Message) error { return nil }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNewFusionValidates(t *testing.T) {
	if _, err := NewFusion(nil, discard()); !errors.Is(err, ErrNilLink) {
		t.Fatalf("expected ErrNilLink, got %v", err)
	}
	if _, err := NewFusion(&scriptLink{}, nil); !errors.Is(err, ErrNilLogger) {
		t.Fatalf("expected ErrNilLogger, got %v", err)
	}
}

func TestPollUsesMaxTimestamp(t *testing.T) {
	l := &scriptLink{msgs: []link.Message{
		link.Attitude{TimeBootMs: 1000, Yaw: 0.5},
		link.LocalPosition{TimeBootMs: 1020, X: 1, Y: 2, Z: -3, VX: 0.1},
	}}
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f, err := NewFusion(l, discard(), WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("new fusion: %v", err)
	}
	s, ok := f.Poll(context.Background())
	if !ok {
		t.Fatal("expected snapshot")
	}
	if s.TimeBootMs != 1020 {
		t.Fatalf("expected max timestamp 1020, got %d", s.TimeBootMs)
	}
	if *s.Z != -3 || *s.Yaw != 0.5 || *s.VX != float64(float32(0.1)) {
		t.Fatalf("unexpected snapshot %s", s)
	}
	if !s.ReceivedAt.Equal(fixed) {
		t.Fatalf("unexpected ReceivedAt %v", s.ReceivedAt)
	}
}

func TestPollTimestampOrderIndependent(t *testing.T) {
	l := &scriptLink{msgs: []link.Message{
		link.LocalPosition{TimeBootMs: 500},
		link.Heartbeat{},
		link.Attitude{TimeBootMs: 700},
	}}
	f, _ := NewFusion(l, discard())
	s, ok := f.Poll(context.Background())
	if !ok || s.TimeBootMs != 700 {
		t.Fatalf("expected snapshot at 700, got %v %d", ok, s.TimeBootMs)
	}
}

func TestPollDiscardsPartialReading(t *testing.T) {
	l := &scriptLink{msgs: []link.Message{
		link.Attitude{TimeBootMs: 1000},
		nil, // timeout ends the first call
		link.LocalPosition{TimeBootMs: 1100},
		nil,
	}}
	f, _ := NewFusion(l, discard(), WithTimeout(50*time.Millisecond))
	if _, ok := f.Poll(context.Background()); ok {
		t.Fatal("first poll should fail with only attitude")
	}
	if _, ok := f.Poll(context.Background()); ok {
		t.Fatal("attitude from the previous poll must not carry over")
	}
}

func TestPollLinkFailureIsNoSnapshot(t *testing.T) {
	l := &scriptLink{
		msgs: []link.Message{link.Attitude{}},
		errs: []error{nil, &link.Error{Op: "receive", Kind: link.LinkFailure, Err: io.ErrUnexpectedEOF}},
	}
	f, _ := NewFusion(l, discard())
	if _, ok := f.Poll(context.Background()); ok {
		t.Fatal("expected no snapshot on link failure")
	}
}

func TestWorkerEmitsSnapshots(t *testing.T) {
	l := &scriptLink{msgs: []link.Message{
		link.Attitude{TimeBootMs: 1},
		link.LocalPosition{TimeBootMs: 2},
	}}
	f, _ := NewFusion(l, discard(), WithTimeout(10*time.Millisecond))
	out := worker.NewQueue[Snapshot](0)
	ctl := worker.NewController()

	done := make(chan error, 1)
	go func() { done <- Worker(context.Background(), f, out, ctl) }()

	s, err := out.Get(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.TimeBootMs != 2 {
		t.Fatalf("unexpected snapshot %s", s)
	}
	ctl.RequestExit()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("worker: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not exit")
	}
}
