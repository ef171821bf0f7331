// Package rdmatransport implements the RDMA-based framed transport: a
// buffer-exchange handshake over a control channel, RDMA_WRITE /
// RDMA_WRITE_WITH_IMM data-plane transfer through internal/rdmatransport/verbs,
// and a reference-counted buffer lifecycle shared with internal/bufpool.
package rdmatransport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/st2110/core/internal/bufpool"
	st2110err "github.com/st2110/core/internal/errors"
	"github.com/st2110/core/internal/logger"
	"github.com/st2110/core/internal/rdmatransport/verbs"
)

// Status mirrors the connection lifecycle states a caller observes.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusHandshaking
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusHandshaking:
		return "handshaking"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Buffer is a reference-counted handle to a pooled data-plane buffer. It
// starts with one reference, held by the caller of AdvertiseBuffer; callers
// that hand the buffer to another goroutine (e.g. a codec) must call Retain
// and the eventual Release, mirroring the RDMA completion's ownership
// handoff. Write does not take a reference of its own.
type Buffer struct {
	Data []byte

	mu   sync.Mutex
	refs int32
	pool *bufpool.Pool
}

func newBuffer(pool *bufpool.Pool, size int) *Buffer {
	return &Buffer{Data: pool.Get(size), refs: 1, pool: pool}
}

// Retain increments the buffer's reference count.
func (b *Buffer) Retain() { atomic.AddInt32(&b.refs, 1) }

// Release decrements the reference count, returning the backing storage to
// its pool once it reaches zero. Releasing past zero is an invariant
// violation reported to the caller rather than panicking.
func (b *Buffer) Release() error {
	n := atomic.AddInt32(&b.refs, -1)
	if n < 0 {
		return st2110err.NewInvariantError("rdmatransport.buffer_release", errRefcountUnderflow)
	}
	if n == 0 && b.pool != nil {
		b.pool.Put(b.Data)
		b.Data = nil
	}
	return nil
}

// Connection is one RDMA transport session: a control channel carrying the
// buffer-exchange handshake plus a verbs.Provider driving the data plane.
type Connection struct {
	mu       sync.RWMutex
	status   Status
	lastErr  error
	provider verbs.Provider
	pool     *bufpool.Pool
	log      *slog.Logger

	remoteBuffers map[uint8]ControlMessage // advertised by the peer, keyed by BufferIndex
	nextLocalIdx  uint8

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConnection wraps a verbs.Provider (a real one, or
// verbs.NewLoopback for tests and hardware-less operation) in the framed
// handshake and reference-counted buffer protocol.
func NewConnection(provider verbs.Provider, pool *bufpool.Pool) *Connection {
	if pool == nil {
		pool = bufpool.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		provider:      provider,
		pool:          pool,
		log:           logger.Logger(),
		remoteBuffers: make(map[uint8]ControlMessage),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Connect performs route resolution/QP setup via the verbs provider, then
// transitions to Handshaking; the connection reaches Connected once
// HandleControl observes the peer's first BUFFER_READY message.
func (c *Connection) Connect(ctx context.Context, remote string) error {
	c.setStatus(StatusConnecting, nil)
	if err := c.provider.Connect(ctx, remote); err != nil {
		c.setStatus(StatusError, err)
		return fmt.Errorf("rdmatransport: connect: %w", err)
	}
	c.setStatus(StatusHandshaking, nil)
	return nil
}

// AdvertiseBuffer registers and hands out a new pooled buffer of the given
// size, returning the BUFFER_READY control message the caller sends to the
// peer over its own out-of-band channel (this package does not own that
// channel; it only produces and consumes the framed payloads).
func (c *Connection) AdvertiseBuffer(size int) (*Buffer, ControlMessage, error) {
	buf := newBuffer(c.pool, size)
	if err := c.provider.RegisterBuffer(buf.Data); err != nil {
		return nil, ControlMessage{}, fmt.Errorf("rdmatransport: register buffer: %w", err)
	}
	c.mu.Lock()
	idx := c.nextLocalIdx
	c.nextLocalIdx++
	c.mu.Unlock()
	msg := ControlMessage{Type: BufferReady, BufferIndex: idx, Length: uint32(size)}
	return buf, msg, nil
}

// HandleControl applies an inbound control message from the peer: a
// BUFFER_READY is recorded for future Write calls; a BUFFER_DONE or BYE
// removes the named remote buffer, so later Writes to it fail.
func (c *Connection) HandleControl(msg ControlMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Type {
	case BufferReady:
		c.remoteBuffers[msg.BufferIndex] = msg
		if c.status == StatusHandshaking {
			c.status = StatusConnected
		}
	case BufferDone, Bye:
		delete(c.remoteBuffers, msg.BufferIndex)
	}
}

// Write sends buf to the peer's previously advertised remoteIndex buffer
// via RDMA_WRITE_WITH_IMM, carrying seq as the immediate value so the
// peer's completion-poll goroutine can correlate it without a separate
// control round trip.
func (c *Connection) Write(remoteIndex uint8, buf []byte, seq uint32) error {
	c.mu.RLock()
	_, ok := c.remoteBuffers[remoteIndex]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("rdmatransport: no advertised remote buffer %d", remoteIndex)
	}
	imm := seq
	return c.provider.Write(buf, &imm)
}

// Completions starts the completion-poll goroutine, invoking onImmediate
// for every RDMA_WRITE_WITH_IMM completion observed. The goroutine exits
// when Close cancels the connection's own context, when the provider is
// closed, or on the first Poll error.
func (c *Connection) Completions(onImmediate func(seq uint32, bytes int)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			comp, err := c.provider.Poll(c.ctx)
			if err != nil {
				if c.ctx.Err() != nil || err == verbs.ErrClosed {
					return
				}
				c.log.Error("rdma completion poll error", "error", err)
				return
			}
			if comp.HasImmediate && onImmediate != nil {
				onImmediate(comp.Immediate, comp.Bytes)
			}
		}
	}()
}

// Close cancels the completion-poll goroutine, closes the verbs provider,
// and waits for teardown.
func (c *Connection) Close() error {
	c.cancel()
	err := c.provider.Close()
	c.wg.Wait()
	c.setStatus(StatusDisconnected, nil)
	return err
}

// Status reports the connection's current lifecycle state.
func (c *Connection) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Connection) setStatus(s Status, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
	c.lastErr = err
}
