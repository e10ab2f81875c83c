package link

import (
	"context"
	"errors"
	"testing"
	"time"
)

func startRouter(t *testing.T) (*Router, Transport, context.CancelFunc) {
	t.Helper()
	local, remote := NewPipe(16)
	r := NewRouter(local, WithInboxSize(4))
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	t.Cleanup(func() {
		cancel()
		r.Close()
	})
	return r, remote, cancel
}

func TestRouterFansOutByKind(t *testing.T) {
	r, remote, _ := startRouter(t)
	hb := r.Channel("heartbeat", KindHeartbeat)
	tel := r.Channel("telemetry", KindAttitude, KindLocalPosition)

	if err := remote.Write(Attitude{TimeBootMs: 10}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := remote.Write(Heartbeat{SystemID: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx := context.Background()
	m, err := tel.Receive(ctx, time.Second)
	if err != nil {
		t.Fatalf("telemetry receive: %v", err)
	}
	if _, ok := m.(Attitude); !ok {
		t.Fatalf("expected Attitude, got %T", m)
	}
	m, err = hb.Receive(ctx, time.Second)
	if err != nil {
		t.Fatalf("heartbeat receive: %v", err)
	}
	if _, ok := m.(Heartbeat); !ok {
		t.Fatalf("expected Heartbeat, got %T", m)
	}
	if _, err := hb.Receive(ctx, 20*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestChannelReceiveTimeout(t *testing.T) {
	r, _, _ := startRouter(t)
	c := r.Channel("telemetry", KindAttitude)
	start := time.Now()
	_, err := c.Receive(context.Background(), 30*time.Millisecond)
	if KindOf(err) != Timeout {
		t.Fatalf("expected timeout kind, got %v", err)
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Fatalf("receive returned too early")
	}
	if _, err := c.Receive(context.Background(), 0); KindOf(err) != Timeout {
		t.Fatalf("zero timeout should poll, got %v", err)
	}
}

func TestChannelDropsOldestWhenFull(t *testing.T) {
	r := NewRouter(nil, WithInboxSize(2))
	c := r.Channel("telemetry", KindAttitude)
	for i := uint32(1); i <= 3; i++ {
		c.deliver(Attitude{TimeBootMs: i})
	}
	if c.Dropped() != 1 {
		t.Fatalf("expected 1 dropped, got %d", c.Dropped())
	}
	m, _ := c.Receive(context.Background(), 0)
	if m.(Attitude).TimeBootMs != 2 {
		t.Fatalf("expected oldest surviving message 2, got %d", m.(Attitude).TimeBootMs)
	}
}

func TestChannelSendReachesPeer(t *testing.T) {
	r, remote, _ := startRouter(t)
	c := r.Channel("command")
	cmd := CommandLong{TargetSystem: 1, Command: CommandConditionYaw}
	if err := c.Send(context.Background(), cmd); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case m := <-remote.Messages():
		if m.(CommandLong).Command != CommandConditionYaw {
			t.Fatalf("unexpected message %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("peer did not receive command")
	}
}

func TestRouterClosedErrors(t *testing.T) {
	local, _ := NewPipe(1)
	r := NewRouter(local)
	c := r.Channel("heartbeat", KindHeartbeat)
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := c.Receive(context.Background(), time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed on receive, got %v", err)
	}
	if err := c.Send(context.Background(), Heartbeat{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed on send, got %v", err)
	}
}

func TestSendFailureIsLinkFailure(t *testing.T) {
	local, _ := NewPipe(1)
	r := NewRouter(local)
	c := r.Channel("heartbeat")
	if err := c.Send(context.Background(), Heartbeat{}); err != nil {
		t.Fatalf("first send: %v", err)
	}
	err := c.Send(context.Background(), Heartbeat{})
	if !errors.Is(err, ErrLinkFailure) || !errors.Is(err, ErrPipeFull) {
		t.Fatalf("expected link failure wrapping ErrPipeFull, got %v", err)
	}
}

func TestReceiveContextCancelled(t *testing.T) {
	r, _, _ := startRouter(t)
	c := r.Channel("telemetry", KindAttitude)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Receive(ctx, time.Second)
	if KindOf(err) != Closed || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected closed wrapping context.Canceled, got %v", err)
	}
}
