package pipeline

import (
	"testing"
	"time"

	st2110err "github.com/st2110/core/internal/errors"
	"github.com/st2110/core/internal/stats"
)

func txConfig() Config {
	return Config{
		Name:             "tx-test",
		Kind:             KindVideo,
		Width:            1280,
		Height:           720,
		FPSCode:          "60",
		PixelFormat:      "UYVY",
		FramebufferCount: 3,
		Direction:        DirectionTX,
		Flags:            FlagBlockGet,
		BlockGetTimeout:  50 * time.Millisecond,
	}
}

func rxConfig() Config {
	c := txConfig()
	c.Name = "rx-test"
	c.Direction = DirectionRX
	return c
}

func TestCreateRejectsBadConfig(t *testing.T) {
	c := txConfig()
	c.FramebufferCount = 1
	if _, err := Create(c, nil); !st2110err.IsConfigError(err) {
		t.Fatalf("expected ConfigError for framebuffer count 1, got %v", err)
	}
}

func TestCreateAllocatesAllFree(t *testing.T) {
	s, err := Create(txConfig(), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Free()
	for i := 0; i < txConfig().FramebufferCount; i++ {
		if st := s.StateOf(i); st != StateFree {
			t.Fatalf("slot %d: expected FREE, got %s", i, st)
		}
	}
}

func TestTXGetPutCycleAdvancesStates(t *testing.T) {
	s, err := Create(txConfig(), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Free()

	f, err := s.GetFrame()
	if err != nil {
		t.Fatalf("GetFrame: %v", err)
	}
	if st := s.StateOf(f.Index); st != StateInUser {
		t.Fatalf("expected IN_USER after GetFrame, got %s", st)
	}

	if err := s.PutFrame(f); err != nil {
		t.Fatalf("PutFrame: %v", err)
	}
	if st := s.StateOf(f.Index); st != StateReady {
		t.Fatalf("expected READY after PutFrame, got %s", st)
	}

	claimed := s.claimForTasklet()
	if claimed == nil || claimed.Index != f.Index {
		t.Fatalf("expected tasklet to claim the same slot, got %+v", claimed)
	}
	if st := s.StateOf(f.Index); st != StateInTransmission {
		t.Fatalf("expected IN_TRANSMISSION after tasklet claim, got %s", st)
	}

	if err := s.releaseFromTasklet(claimed); err != nil {
		t.Fatalf("releaseFromTasklet: %v", err)
	}
	if st := s.StateOf(f.Index); st != StateFree {
		t.Fatalf("expected FREE after tasklet release, got %s", st)
	}
}

func TestRXGetBeforeReadyBlocksThenTimesOut(t *testing.T) {
	s, err := Create(rxConfig(), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Free()

	start := time.Now()
	_, err = s.GetFrame()
	elapsed := time.Since(start)
	if !st2110err.IsTimeout(err) {
		t.Fatalf("expected timeout error with nothing READY, got %v", err)
	}
	if elapsed < s.cfg.BlockGetTimeout {
		t.Fatalf("expected GetFrame to block at least %s, took %s", s.cfg.BlockGetTimeout, elapsed)
	}
}

func TestRXTaskletFillThenAppConsumes(t *testing.T) {
	s, err := Create(rxConfig(), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Free()

	claimed := s.claimForTasklet()
	if claimed == nil {
		t.Fatalf("expected a FREE slot available to the RX tasklet")
	}
	if err := s.releaseFromTasklet(claimed); err != nil {
		t.Fatalf("releaseFromTasklet: %v", err)
	}
	if st := s.StateOf(claimed.Index); st != StateReady {
		t.Fatalf("expected READY after RX tasklet completes, got %s", st)
	}

	f, err := s.GetFrame()
	if err != nil {
		t.Fatalf("GetFrame: %v", err)
	}
	if f.Index != claimed.Index {
		t.Fatalf("expected app to consume the same slot the tasklet filled")
	}
	if st := s.StateOf(f.Index); st != StateInConsumption {
		t.Fatalf("expected IN_CONSUMPTION, got %s", st)
	}

	if err := s.PutFrame(f); err != nil {
		t.Fatalf("PutFrame: %v", err)
	}
	if st := s.StateOf(f.Index); st != StateFree {
		t.Fatalf("expected FREE after app releases RX frame, got %s", st)
	}
}

func TestPutFrameRejectsWrongOwnership(t *testing.T) {
	s, err := Create(txConfig(), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Free()

	f := &Frame{Index: 0}
	if err := s.PutFrame(f); !st2110err.IsInvariantError(err) {
		t.Fatalf("expected InvariantError putting an unowned FREE slot, got %v", err)
	}
}

func TestWakeBlockUnblocksGetFrame(t *testing.T) {
	c := rxConfig()
	c.BlockGetTimeout = 2 * time.Second
	s, err := Create(c, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Free()

	done := make(chan error, 1)
	go func() {
		_, err := s.GetFrame()
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	s.WakeBlock()

	select {
	case err := <-done:
		if !st2110err.IsTimeout(err) {
			t.Fatalf("expected a timeout error after wake with nothing READY, got %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("WakeBlock did not unblock GetFrame")
	}
}

// TestFreeUnblocksInFlightGetAndUnregistersStats covers the
// "pipeline shutdown" scenario: a blocked consumer must observe session
// teardown rather than hang until its timeout, and Free must also drop the
// session's counters from a shared stats registry.
func TestFreeUnblocksInFlightGetAndUnregistersStats(t *testing.T) {
	reg := stats.NewRegistry()
	c := rxConfig()
	c.BlockGetTimeout = 5 * time.Second
	s, err := Create(c, reg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.GetFrame()
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := s.Free(); err != nil {
		t.Fatalf("Free: %v", err)
	}

	select {
	case err := <-done:
		if !st2110err.IsInvariantError(err) {
			t.Fatalf("expected InvariantError (not ready) after Free, got %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("Free did not unblock a pending GetFrame")
	}

	if _, ok := reg.Snapshot(s.ID()); ok {
		t.Fatalf("expected session counters removed from registry after Free")
	}
}
