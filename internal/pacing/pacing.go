// Package pacing implements the media clock and packet pacing discipline:
// conversion between TAI wall-clock time and the 90kHz RTP media clock,
// frame-epoch alignment, ST 2110-21 pacing parameter computation, and a
// rate.Limiter-backed packet pacer for the exact and linear sending modes.
package pacing

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	st2110err "github.com/st2110/core/internal/errors"
	"github.com/st2110/core/internal/formats"
)

// MediaClockHz is the RTP media clock rate for all ST 2110 video and
// ancillary essence (ST 2110-30 audio uses the sample rate instead).
const MediaClockHz = 90000

// ToRTPClock converts a TAI nanosecond timestamp into the 32-bit,
// wraparound 90kHz RTP clock value: floor(taiNS * 90000 / 1e9).
func ToRTPClock(taiNS int64) uint32 {
	if taiNS < 0 {
		taiNS = 0
	}
	// Whole seconds and the sub-second remainder are scaled separately so
	// the multiply cannot overflow for present-day TAI values.
	secs := uint64(taiNS) / 1_000_000_000
	rem := uint64(taiNS) % 1_000_000_000
	v := secs*MediaClockHz + rem*MediaClockHz/1_000_000_000
	return uint32(v & 0xffffffff)
}

// RTPDelta returns the signed difference b-a between two 32-bit RTP
// timestamps, correctly handling wraparound (the standard RFC 3550 rule:
// interpret the difference as a 32-bit two's complement value).
func RTPDelta(a, b uint32) int32 {
	return int32(b - a)
}

// EpochSnap rounds t to the nearest frame boundary of the given interval
// since the Unix epoch (round(t/T)*T), so independent senders that start
// at different wall-clock times still emit frames on a shared grid.
func EpochSnap(t time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		return t
	}
	unixNS := t.UnixNano()
	rem := unixNS % int64(interval)
	if rem < 0 {
		rem += int64(interval)
	}
	if rem*2 >= int64(interval) {
		return t.Add(time.Duration(int64(interval) - rem))
	}
	return t.Add(-time.Duration(rem))
}

// Params are the ST 2110-21 pacing parameters for a narrow-linear sender:
// TROffset is the permitted early-send window before a frame's nominal
// presentation time, TRS is the nominal interval between packets within a
// frame, and VRXPackets bounds the receiver buffer in packets.
type Params struct {
	TROffsetNS int64
	TRSNS      int64
	VRXPackets int
}

// ComputeParams derives narrow-linear-sender pacing parameters from a
// frame rate and the packet layout (packets per frame, i.e. frame size
// divided by the transport's payload size).
func ComputeParams(fr formats.FrameRate, packetsPerFrame int) (Params, error) {
	if packetsPerFrame <= 0 {
		return Params{}, st2110err.NewConfigError("pacing.compute_params", errNonPositivePacketsPerFrame)
	}
	frameIntervalNS := int64(fr.IntervalNS())
	trs := (frameIntervalNS * 8 / 10) / int64(packetsPerFrame)
	// Narrow sender: all packets of a frame must land within the first
	// ~80% of the frame interval, leaving headroom before the next frame's
	// nominal boundary (the ST 2110-21 TRoffset budget).
	troffset := frameIntervalNS - (trs * int64(packetsPerFrame))
	if troffset < 0 {
		troffset = 0
	}
	vrx := packetsPerFrame/5 + 1
	return Params{TROffsetNS: troffset, TRSNS: trs, VRXPackets: vrx}, nil
}

// Pacer paces packet emission to a target rate using a token-bucket
// limiter (steady per-packet rate). No packetizer in this repository
// calls it; it is exercised by its own tests.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a Pacer emitting at most one packet every trsInterval
// on average, with a burst of one (no catch-up bursting after a stall).
func NewPacer(trsInterval time.Duration) *Pacer {
	if trsInterval <= 0 {
		trsInterval = time.Nanosecond
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(trsInterval), 1)}
}

// Wait blocks until the next packet is permitted to send, or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// SetInterval retunes the pacer's rate, used when a session renegotiates
// its frame rate without being recreated.
func (p *Pacer) SetInterval(trsInterval time.Duration) {
	if trsInterval <= 0 {
		trsInterval = time.Nanosecond
	}
	p.limiter.SetLimit(rate.Every(trsInterval))
}

// ExactUserPacingTolerance is the maximum amount a user-supplied timestamp
// may already be in the past for SendExactAt to still honor it immediately
// instead of returning a TimingError.
const ExactUserPacingTolerance = 2 * time.Millisecond

// Clock abstracts wall-clock reads and sleeps so exact pacing is testable
// without real waits.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time    { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock is the production Clock implementation.
var RealClock Clock = realClock{}

// SendExactAt blocks until the wall-clock time corresponding to targetRTP
// (relative to epoch) arrives, for sessions using exact user pacing
// (spec.md §4.3, FlagExactUserPacing). A target already more than
// ExactUserPacingTolerance in the past is a TimingError; within tolerance
// it returns immediately.
func SendExactAt(clock Clock, epoch time.Time, targetRTPNS int64) error {
	target := epoch.Add(time.Duration(targetRTPNS))
	now := clock.Now()
	wait := target.Sub(now)
	if wait < -ExactUserPacingTolerance {
		return st2110err.NewTimingError("pacing.send_exact_at", errTimestampInPast)
	}
	if wait > 0 {
		clock.Sleep(wait)
	}
	return nil
}
