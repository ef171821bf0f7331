package verbs

import (
	"context"
	"sync"
)

// Loopback is a software-only Provider: every Write is queued directly to
// the same Provider's completion channel, as if a peer on the same host had
// written into local memory and posted a completion. It exists so the
// transport's buffer-exchange handshake and framed control protocol can be
// exercised without RDMA-capable hardware (spec.md's Open Question on RDMA
// test strategy, resolved in DESIGN.md).
type Loopback struct {
	mu     sync.Mutex
	closed bool
	connected bool

	completions chan Completion
}

// NewLoopback creates a Loopback Provider with a completion queue of depth
// queueDepth.
func NewLoopback(queueDepth int) *Loopback {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	return &Loopback{completions: make(chan Completion, queueDepth)}
}

func (l *Loopback) Connect(ctx context.Context, remote string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = true
	return nil
}

func (l *Loopback) RegisterBuffer(buf []byte) error { return nil }

func (l *Loopback) Write(buf []byte, imm *uint32) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	c := Completion{Bytes: len(buf)}
	if imm != nil {
		c.Immediate = *imm
		c.HasImmediate = true
	}
	l.completions <- c
	return nil
}

func (l *Loopback) Poll(ctx context.Context) (Completion, error) {
	select {
	case c, ok := <-l.completions:
		if !ok {
			return Completion{}, ErrClosed
		}
		return c, nil
	case <-ctx.Done():
		return Completion{}, ctx.Err()
	}
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.completions)
	return nil
}
