// Package verbs abstracts the RDMA verbs operations the transport layer
// needs (connection setup, posted writes, completion polling) behind a
// small interface, so the transport can be exercised in tests without a
// real RDMA-capable NIC. Production builds would back Provider with
// cgo bindings to libibverbs; this module ships the interface and a
// software loopback implementation used by tests and by st2110d when run
// without RDMA hardware.
package verbs

import (
	"context"
	"errors"
)

// Completion reports the outcome of one posted work request.
type Completion struct {
	// Immediate is the 32-bit immediate value carried by an
	// RDMA_WRITE_WITH_IMM completion; valid only when HasImmediate.
	Immediate    uint32
	HasImmediate bool
	Bytes        int
	Err          error
}

// ErrClosed is returned by Poll once a Provider has been closed and every
// in-flight completion has been drained.
var ErrClosed = errors.New("verbs: provider closed")

// Provider is the subset of RDMA verbs the transport depends on: address
// resolution and queue-pair setup happen inside Connect; Write posts an
// RDMA_WRITE (or RDMA_WRITE_WITH_IMM when imm != nil) against the peer's
// registered remote buffer; Poll blocks for the next completion.
type Provider interface {
	// Connect performs route resolution and RC queue-pair establishment
	// against remote (an implementation-defined address).
	Connect(ctx context.Context, remote string) error

	// RegisterBuffer registers a local buffer as a memory region, making it
	// eligible as the source or sink of a Write. Implementations that don't
	// need explicit registration (the loopback) may no-op.
	RegisterBuffer(buf []byte) error

	// Write posts an RDMA_WRITE transferring buf to the peer. If imm is
	// non-nil, it is sent as an RDMA_WRITE_WITH_IMM so the peer's next Poll
	// observes the immediate value without a separate control message.
	Write(buf []byte, imm *uint32) error

	// Poll blocks until the next completion queue entry is available or ctx
	// is done.
	Poll(ctx context.Context) (Completion, error)

	// Close tears down the queue pair and completion queue.
	Close() error
}
