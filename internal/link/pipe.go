package link

import (
	"errors"
	"sync"
)

// ErrPipeFull is returned when the peer is not draining its side of a pipe.
var ErrPipeFull = errors.New("pipe buffer full")

type pipeShared struct {
	done chan struct{}
	once sync.Once
}

type pipeEnd struct {
	in     chan Message
	out    chan Message
	shared *pipeShared
}

// NewPipe returns two connected in-memory transports. Whatever one end
// writes, the other end reads. Used by the vehicle simulator and tests.
func NewPipe(buffer int) (Transport, Transport) {
	if buffer <= 0 {
		buffer = DefaultInboxSize
	}
	ab := make(chan Message, buffer)
	ba := make(chan Message, buffer)
	shared := &pipeShared{done: make(chan struct{})}
	return &pipeEnd{in: ba, out: ab, shared: shared}, &pipeEnd{in: ab, out: ba, shared: shared}
}

func (p *pipeEnd) Messages() <-chan Message { return p.in }

func (p *pipeEnd) Done() <-chan struct{} { return p.shared.done }

func (p *pipeEnd) Write(m Message) error {
	select {
	case <-p.shared.done:
		return errors.New("pipe closed")
	default:
	}
	select {
	case p.out <- m:
		return nil
	default:
		return ErrPipeFull
	}
}

// Close closes both ends.
func (p *pipeEnd) Close() error {
	p.shared.once.Do(func() { close(p.shared.done) })
	return nil
}
