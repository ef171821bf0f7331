// Package pipeline implements the session manager: a bounded ring of
// framebuffers shared between an application thread and a tasklet (the
// transport or codec goroutine driving the network), with a small state
// machine governing which side owns a buffer at any moment.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	st2110err "github.com/st2110/core/internal/errors"
	"github.com/st2110/core/internal/logger"
	"github.com/st2110/core/internal/stats"
)

// Session is the pipeline session manager aggregate. One Session backs one
// TX or RX media flow. The session mutex serializes every buffer state
// transition; cond is signaled whenever a transition might unblock a
// waiting GetFrame call.
type Session struct {
	id  string
	cfg Config
	log *slog.Logger

	mu   sync.Mutex
	cond *sync.Cond

	buffers [][]byte
	states  []BufferState
	meta    []Frame // per-slot RTP/interlace metadata, valid when state != StateFree

	// appCursor is where the application's Get/Put pair operates: the next
	// slot to consider FREE (TX) or READY (RX).
	appCursor int
	// taskletCursor is where the transport/codec goroutine claims and
	// releases buffers: the next slot to consider READY (TX, to transmit)
	// or FREE (RX, to decode into).
	taskletCursor int

	ready bool

	counters *stats.Counters
	registry *stats.Registry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Create allocates a session's framebuffer ring and initializes its state
// machine. registry may be nil, in which case no statistics are exported.
func Create(cfg Config, registry *stats.Registry) (*Session, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	frameSize, err := frameByteSize(cfg)
	if err != nil {
		return nil, st2110err.NewConfigError("session.create", err)
	}
	if frameSize <= 0 {
		return nil, st2110err.NewConfigError("session.create", errZeroFrameSize)
	}

	direction := cfg.Direction

	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		buffers: make([][]byte, cfg.FramebufferCount),
		states:  make([]BufferState, cfg.FramebufferCount),
		meta:    make([]Frame, cfg.FramebufferCount),
	}
	s.cond = sync.NewCond(&s.mu)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	for i := range s.buffers {
		buf := make([]byte, frameSize)
		s.buffers[i] = buf
		s.meta[i] = Frame{Index: i, Data: buf}
		if direction == DirectionRX {
			// RX buffers start IN_CONSUMPTION rather than FREE: they only
			// become claimable by the tasklet once the transport's
			// done-handshake announces each one to the peer. The handshake
			// completes synchronously here, as part of session creation,
			// before ready flips true.
			s.states[i] = StateInConsumption
		} else {
			s.states[i] = StateFree
		}
	}
	if direction == DirectionRX {
		s.completeRXHandshakeLocked()
	}

	sessionType := "tx"
	if direction == DirectionRX {
		sessionType = "rx"
	}
	s.log = logger.WithSession(logger.Logger(), s.id, sessionType)

	if registry != nil {
		s.registry = registry
		s.counters = registry.Register(s.id)
	} else {
		s.counters = &stats.Counters{}
	}

	s.ready = true
	s.log.Info("session created", "framebuffers", cfg.FramebufferCount, "frame_bytes", frameSize)
	return s, nil
}

// completeRXHandshakeLocked transitions every RX buffer from IN_CONSUMPTION
// to FREE, the done-handshake step that in the real transport corresponds
// to a BUFFER_DONE message for each framebuffer. Called once during Create,
// before the session's mutex is shared with any other goroutine.
func (s *Session) completeRXHandshakeLocked() {
	for i := range s.states {
		s.states[i] = StateFree
	}
}

// ID returns the session's generated identifier.
func (s *Session) ID() string { return s.id }

// Counters exposes the session's statistics aggregate for callers that want
// to increment packet/byte counters from a transport goroutine.
func (s *Session) Counters() *stats.Counters { return s.counters }

// GetFrame implements the blocking-get scan algorithm (spec.md §4.1): scan
// the ring starting at the application's cursor for a slot in the state the
// application is allowed to acquire (FREE for a TX producer, READY for an
// RX consumer); if none is found and FlagBlockGet is set, wait on the
// session's condition variable for up to BlockGetTimeout and re-scan
// exactly once before giving up.
func (s *Session) GetFrame() (*Frame, error) {
	want := StateFree
	if s.cfg.Direction == DirectionRX {
		want = StateReady
	}
	claim := StateInUser
	if s.cfg.Direction == DirectionRX {
		claim = StateInConsumption
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil, st2110err.NewInvariantError("session.get_frame", errNotReady)
	}

	if f := s.scanAndClaimLocked(&s.appCursor, want, claim); f != nil {
		return f, nil
	}
	if !s.cfg.Flags.Has(FlagBlockGet) {
		return nil, nil
	}

	waited := make(chan struct{})
	timer := time.AfterFunc(s.cfg.BlockGetTimeout, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
		close(waited)
	})
	defer timer.Stop()

	s.cond.Wait()
	select {
	case <-waited:
	default:
	}

	if !s.ready {
		return nil, st2110err.NewInvariantError("session.get_frame", errNotReady)
	}
	if f := s.scanAndClaimLocked(&s.appCursor, want, claim); f != nil {
		return f, nil
	}
	return nil, st2110err.NewTimeoutError("session.get_frame", s.cfg.BlockGetTimeout, nil)
}

// scanAndClaimLocked scans the ring once starting at *cursor (inclusive)
// and claims the first slot found in state `want` by setting it to
// `claim`, then moves *cursor to the slot after it. When nothing matches,
// *cursor is left unchanged. Caller holds s.mu.
func (s *Session) scanAndClaimLocked(cursor *int, want, claim BufferState) *Frame {
	n := len(s.states)
	for i := 0; i < n; i++ {
		idx := (*cursor + i) % n
		if s.states[idx] == want {
			s.states[idx] = claim
			*cursor = (idx + 1) % n
			f := s.meta[idx]
			return &f
		}
	}
	return nil
}

// PutFrame returns a frame the application acquired via GetFrame back to
// the pipeline, advancing it to the state the session's tasklet scans for
// next (READY for TX, FREE for RX).
func (s *Session) PutFrame(f *Frame) error {
	if f == nil {
		return st2110err.NewInvariantError("session.put_frame", errNilFrame)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.Index < 0 || f.Index >= len(s.states) {
		return st2110err.NewInvariantError("session.put_frame", errBadIndex)
	}

	owned := StateInUser
	next := StateReady
	if s.cfg.Direction == DirectionRX {
		owned = StateInConsumption
		next = StateFree
	}
	if s.states[f.Index] != owned {
		return st2110err.NewInvariantError("session.put_frame", errWrongOwnership)
	}

	s.meta[f.Index] = *f
	s.states[f.Index] = next
	s.cond.Broadcast()
	return nil
}

// ClaimForTasklet is called by a session's transport/codec goroutine to
// take the next buffer it is responsible for: a READY slot to transmit
// (TX) or a FREE slot to decode into (RX). It returns nil if nothing is
// currently available; tasklets are expected to poll or wait on their own
// transport's readiness rather than block here.
func (s *Session) ClaimForTasklet() *Frame {
	return s.claimForTasklet()
}

func (s *Session) claimForTasklet() *Frame {
	want := StateReady
	claim := StateInTransmission
	if s.cfg.Direction == DirectionRX {
		want = StateFree
		claim = StateInDecoding
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanAndClaimLocked(&s.taskletCursor, want, claim)
}

// ReleaseFromTasklet returns a buffer the tasklet was holding to the next
// state in its cycle: FREE after a TX send completes, READY after an RX
// codec finishes assembling a frame.
func (s *Session) ReleaseFromTasklet(f *Frame) error {
	return s.releaseFromTasklet(f)
}

func (s *Session) releaseFromTasklet(f *Frame) error {
	if f == nil {
		return st2110err.NewInvariantError("session.release", errNilFrame)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Index < 0 || f.Index >= len(s.states) {
		return st2110err.NewInvariantError("session.release", errBadIndex)
	}

	owned := StateInTransmission
	next := StateFree
	if s.cfg.Direction == DirectionRX {
		owned = StateInDecoding
		next = StateReady
	}
	if s.states[f.Index] != owned {
		return st2110err.NewInvariantError("session.release", errWrongOwnership)
	}

	s.meta[f.Index] = *f
	s.states[f.Index] = next
	s.cond.Broadcast()
	return nil
}

// WakeBlock unblocks any goroutine currently waiting in GetFrame, even if
// no buffer has changed state (used to interrupt a blocked get_frame for
// shutdown). It is a no-op if nothing is waiting.
func (s *Session) WakeBlock() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Free tears the session down: marks it not-ready so in-flight GetFrame
// callers fail fast, wakes any blocked waiter, cancels the tasklet context,
// waits for tasklet goroutines registered via s.wg, and unregisters its
// statistics.
func (s *Session) Free() error {
	s.mu.Lock()
	s.ready = false
	s.cond.Broadcast()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	if s.registry != nil {
		s.registry.Unregister(s.id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers = nil
	s.meta = nil
	s.log.Info("session freed")
	return nil
}

// Context returns the session's lifecycle context; tasklet goroutines
// should select on Done() alongside their transport's own readiness.
func (s *Session) Context() context.Context { return s.ctx }

// WG exposes the session's WaitGroup so a caller launching a tasklet
// goroutine can register it before Free is called.
func (s *Session) WG() *sync.WaitGroup { return &s.wg }

// StateOf reports the current state of a buffer slot, for tests and
// diagnostics; it takes the session lock.
func (s *Session) StateOf(index int) BufferState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[index]
}
