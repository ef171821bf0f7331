package integration

import (
	"testing"

	"github.com/st2110/core/internal/pacing"
)

// User-pacing at 25fps (spec.md §8, scenario 3), media-clock arithmetic
// only: three TAI timestamps t0, t1, t2 40ms apart (one 25fps frame each)
// must convert to 90kHz media-clock values 90000, 93600, 97200 with an
// exact 3600-tick inter-frame step. No session is created and no frame is
// sent.
func TestUserPacingAt25FPS(t *testing.T) {
	const (
		t0 = 1_000_000_000
		t1 = 1_040_000_000
		t2 = 1_080_000_000
	)

	rtp0 := pacing.ToRTPClock(t0)
	rtp1 := pacing.ToRTPClock(t1)
	rtp2 := pacing.ToRTPClock(t2)

	if rtp0 != 90000 {
		t.Fatalf("rtp(t0) = %d, want 90000", rtp0)
	}
	if rtp1 != 93600 {
		t.Fatalf("rtp(t1) = %d, want 93600", rtp1)
	}
	if rtp2 != 97200 {
		t.Fatalf("rtp(t2) = %d, want 97200", rtp2)
	}

	if step := pacing.RTPDelta(rtp0, rtp1); step != 3600 {
		t.Fatalf("step(t0,t1) = %d, want 3600", step)
	}
	if step := pacing.RTPDelta(rtp1, rtp2); step != 3600 {
		t.Fatalf("step(t1,t2) = %d, want 3600", step)
	}
}
