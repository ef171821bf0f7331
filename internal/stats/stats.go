// Package stats implements the per-session statistics aggregate from
// spec.md §4.5 and §5: packets/bytes in and out, completed and dropped
// frames, sequence losses, and parity errors. Counters are plain
// sync/atomic values — the ground truth the spec's lock-free relaxed-
// atomic-increment policy describes — with an optional Prometheus
// read-through exporter registered alongside them (see Registry.Export).
package stats

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters is the per-session statistics aggregate. All fields are
// updated with atomic operations; Reset zeroes them atomically.
type Counters struct {
	PacketsIn     atomic.Uint64
	PacketsOut    atomic.Uint64
	BytesIn       atomic.Uint64
	BytesOut      atomic.Uint64
	FramesDone    atomic.Uint64
	FramesDropped atomic.Uint64
	SeqLost       atomic.Uint64
	ParityErrors  atomic.Uint64
}

// Reset zeroes every counter atomically (each field is reset with its own
// atomic store; callers must not rely on a single point-in-time snapshot
// across fields, consistent with the spec's per-counter atomicity).
func (c *Counters) Reset() {
	c.PacketsIn.Store(0)
	c.PacketsOut.Store(0)
	c.BytesIn.Store(0)
	c.BytesOut.Store(0)
	c.FramesDone.Store(0)
	c.FramesDropped.Store(0)
	c.SeqLost.Store(0)
	c.ParityErrors.Store(0)
}

// Snapshot is a read-only, point-in-time copy of Counters for logging or
// periodic stat-dump consumers.
type Snapshot struct {
	PacketsIn, PacketsOut                 uint64
	BytesIn, BytesOut                     uint64
	FramesDone, FramesDropped             uint64
	SeqLost, ParityErrors                 uint64
}

// Snapshot reads all counters into a plain struct.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		PacketsIn:     c.PacketsIn.Load(),
		PacketsOut:    c.PacketsOut.Load(),
		BytesIn:       c.BytesIn.Load(),
		BytesOut:      c.BytesOut.Load(),
		FramesDone:    c.FramesDone.Load(),
		FramesDropped: c.FramesDropped.Load(),
		SeqLost:       c.SeqLost.Load(),
		ParityErrors:  c.ParityErrors.Load(),
	}
}

// Registry tracks the Counters for every live session, keyed by session
// ID, and exposes them through a Prometheus registry. Structural changes
// (register/unregister) take the registry lock; counter increments never
// do — they go straight to the session's own Counters.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Counters

	packetsIn     *prometheus.GaugeVec
	packetsOut    *prometheus.GaugeVec
	bytesIn       *prometheus.GaugeVec
	bytesOut      *prometheus.GaugeVec
	framesDone    *prometheus.GaugeVec
	framesDropped *prometheus.GaugeVec
	seqLost       *prometheus.GaugeVec
	parityErrors  *prometheus.GaugeVec
}

// NewRegistry creates an empty statistics registry and its Prometheus
// gauge vectors (one label: session_id). Gauges, not counters, are used
// on the Prometheus side because a session's Counters can be Reset
// independently of process restart.
func NewRegistry() *Registry {
	labels := []string{"session_id"}
	return &Registry{
		sessions:      make(map[string]*Counters),
		packetsIn:     gaugeVec("st2110_packets_in", "Packets received.", labels),
		packetsOut:    gaugeVec("st2110_packets_out", "Packets transmitted.", labels),
		bytesIn:       gaugeVec("st2110_bytes_in", "Bytes received.", labels),
		bytesOut:      gaugeVec("st2110_bytes_out", "Bytes transmitted.", labels),
		framesDone:    gaugeVec("st2110_frames_done", "Frames completed.", labels),
		framesDropped: gaugeVec("st2110_frames_dropped", "Frames dropped.", labels),
		seqLost:       gaugeVec("st2110_seq_lost", "RTP sequence number gaps observed.", labels),
		parityErrors:  gaugeVec("st2110_parity_errors", "ANC UDW parity/checksum failures.", labels),
	}
}

func gaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
}

// Register creates (or returns the existing) Counters for sessionID.
func (r *Registry) Register(sessionID string) *Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.sessions[sessionID]; ok {
		return c
	}
	c := &Counters{}
	r.sessions[sessionID] = c
	return c
}

// Unregister drops a session's Counters from the registry and clears its
// Prometheus gauge series.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	labels := prometheus.Labels{"session_id": sessionID}
	r.packetsIn.Delete(labels)
	r.packetsOut.Delete(labels)
	r.bytesIn.Delete(labels)
	r.bytesOut.Delete(labels)
	r.framesDone.Delete(labels)
	r.framesDropped.Delete(labels)
	r.seqLost.Delete(labels)
	r.parityErrors.Delete(labels)
}

// MustRegisterCollectors registers this registry's gauge vectors with the
// given Prometheus registerer (typically prometheus.DefaultRegisterer).
func (r *Registry) MustRegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(r.packetsIn, r.packetsOut, r.bytesIn, r.bytesOut,
		r.framesDone, r.framesDropped, r.seqLost, r.parityErrors)
}

// Export copies every tracked session's atomic Counters into the
// Prometheus gauges. Intended to be called periodically (the spec's
// "periodic stat-dump registration") rather than on every increment, so
// the hot path never touches Prometheus's heavier-weight machinery.
func (r *Registry) Export() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, c := range r.sessions {
		labels := prometheus.Labels{"session_id": id}
		snap := c.Snapshot()
		r.packetsIn.With(labels).Set(float64(snap.PacketsIn))
		r.packetsOut.With(labels).Set(float64(snap.PacketsOut))
		r.bytesIn.With(labels).Set(float64(snap.BytesIn))
		r.bytesOut.With(labels).Set(float64(snap.BytesOut))
		r.framesDone.With(labels).Set(float64(snap.FramesDone))
		r.framesDropped.With(labels).Set(float64(snap.FramesDropped))
		r.seqLost.With(labels).Set(float64(snap.SeqLost))
		r.parityErrors.With(labels).Set(float64(snap.ParityErrors))
	}
}

// Snapshot returns a session's Counters snapshot, or false if unknown.
func (r *Registry) Snapshot(sessionID string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sessions[sessionID]
	if !ok {
		return Snapshot{}, false
	}
	return c.Snapshot(), true
}
