package link

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInboxSize is the number of messages buffered per logical channel.
const DefaultInboxSize = 64

// Link is the handle a worker uses to talk to the vehicle.
type Link interface {
	// Receive blocks for at most timeout waiting for the next message.
	Receive(ctx context.Context, timeout time.Duration) (Message, error)
	// Send writes one message to the vehicle.
	Send(ctx context.Context, m Message) error
}

// Transport moves decoded messages over one physical link.
type Transport interface {
	Messages() <-chan Message
	Write(m Message) error
	Done() <-chan struct{}
	Close() error
}

// Router owns the physical transport and hands each worker its own logical
// Channel. Every inbound message is copied to each channel subscribed to its
// kind, so workers never steal messages from one another. Writes from all
// channels go through the single transport, which must be safe for
// concurrent use.
type Router struct {
	transport Transport
	log       *slog.Logger
	inboxSize int

	mu       sync.RWMutex
	channels []*Channel

	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

// RouterOption customizes a Router.
type RouterOption func(*Router)

// WithInboxSize sets the per-channel buffer size.
func WithInboxSize(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.inboxSize = n
		}
	}
}

// WithRouterLogger sets the router logger.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRouter wraps t. Call Run to start dispatching.
func NewRouter(t Transport, opts ...RouterOption) *Router {
	r := &Router{
		transport: t,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		inboxSize: DefaultInboxSize,
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Channel registers a logical channel receiving the given kinds. A channel
// with no kinds is send-only.
func (r *Router) Channel(name string, kinds ...Kind) *Channel {
	c := &Channel{
		name:   name,
		kinds:  make(map[Kind]struct{}, len(kinds)),
		inbox:  make(chan Message, r.inboxSize),
		router: r,
	}
	for _, k := range kinds {
		c.kinds[k] = struct{}{}
	}
	r.mu.Lock()
	r.channels = append(r.channels, c)
	r.mu.Unlock()
	return c
}

// Run dispatches inbound messages until ctx is done or the transport stops.
func (r *Router) Run(ctx context.Context) error {
	defer r.markDone()
	r.log.Info("link router started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("link router stopping")
			return nil
		case <-r.transport.Done():
			r.log.Warn("link transport closed")
			return &Error{Op: "dispatch", Kind: Closed}
		case m := <-r.transport.Messages():
			r.dispatch(m)
		}
	}
}

// Close stops the router and closes the transport.
func (r *Router) Close() error {
	r.closeOnce.Do(func() {
		r.markDone()
		r.closeErr = r.transport.Close()
	})
	return r.closeErr
}

func (r *Router) markDone() {
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *Router) dispatch(m Message) {
	if m == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.channels {
		c.deliver(m)
	}
}

func (r *Router) write(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "send", Kind: Closed, Err: err}
	}
	select {
	case <-r.done:
		return &Error{Op: "send", Kind: Closed}
	default:
	}
	if err := r.transport.Write(m); err != nil {
		return &Error{Op: "send", Kind: LinkFailure, Err: err}
	}
	return nil
}

// Channel is one worker's logical view of the link.
type Channel struct {
	name    string
	kinds   map[Kind]struct{}
	inbox   chan Message
	router  *Router
	dropped atomic.Uint64
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Dropped returns how many messages were discarded because the inbox was full.
func (c *Channel) Dropped() uint64 { return c.dropped.Load() }

// deliver enqueues m, discarding the oldest buffered message when full.
func (c *Channel) deliver(m Message) {
	if _, ok := c.kinds[m.Kind()]; !ok {
		return
	}
	select {
	case c.inbox <- m:
		return
	default:
	}
	select {
	case <-c.inbox:
		c.dropped.Add(1)
	default:
	}
	select {
	case c.inbox <- m:
	default:
		c.dropped.Add(1)
	}
}

// Receive implements Link.
func (c *Channel) Receive(ctx context.Context, timeout time.Duration) (Message, error) {
	select {
	case m := <-c.inbox:
		return m, nil
	default:
	}
	if timeout <= 0 {
		return nil, &Error{Op: "receive", Kind: Timeout}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m := <-c.inbox:
		return m, nil
	case <-timer.C:
		return nil, &Error{Op: "receive", Kind: Timeout}
	case <-ctx.Done():
		return nil, &Error{Op: "receive", Kind: Closed, Err: ctx.Err()}
	case <-c.router.done:
		return nil, &Error{Op: "receive", Kind: Closed}
	}
}

// Send implements Link.
func (c *Channel) Send(ctx context.Context, m Message) error {
	return c.router.write(ctx, m)
}
