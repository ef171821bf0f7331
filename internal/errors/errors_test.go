package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"
	"time"
)

// fakeTimeoutErr simulates a net.Error with Timeout semantics.
type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string { return "fake timeout" }
func (fakeTimeoutErr) Timeout() bool { return true }

func TestClassificationByTier(t *testing.T) {
	root := stdErrors.New("root")
	wrapped := fmt.Errorf("adding context: %w", root)

	cfg := NewConfigError("session.create", wrapped)
	if !IsConfigError(cfg) {
		t.Fatalf("expected IsConfigError=true")
	}
	if !stdErrors.Is(cfg, root) {
		t.Fatalf("expected errors.Is to find root cause")
	}
	var ce *ConfigError
	if !stdErrors.As(cfg, &ce) {
		t.Fatalf("expected errors.As to *ConfigError")
	}
	if ce.Op != "session.create" {
		t.Fatalf("unexpected op: %s", ce.Op)
	}

	res := NewResourceError("mr.register", nil)
	if !IsResourceError(res) {
		t.Fatalf("expected resource error classified")
	}

	proto := NewProtocolError("frame.parse", nil)
	if !IsProtocolError(proto) {
		t.Fatalf("expected protocol error classified")
	}

	timing := NewTimingError("pacing.query", nil)
	if !IsTimingError(timing) {
		t.Fatalf("expected timing error classified")
	}

	inv := NewInvariantError("rdma.refcount", nil)
	if !IsInvariantError(inv) {
		t.Fatalf("expected invariant error classified")
	}

	// Cross-tier checks: a config error must not also read as protocol, etc.
	if IsProtocolError(cfg) || IsTimingError(cfg) || IsInvariantError(cfg) || IsResourceError(cfg) {
		t.Fatalf("config error misclassified into another tier")
	}
}

func TestIsTimeout(t *testing.T) {
	root := fakeTimeoutErr{}
	to := NewTimeoutError("get_frame", 1*time.Second, root)
	if !IsTimeout(to) {
		t.Fatalf("expected TimeoutError recognized")
	}
	if IsProtocolError(to) {
		t.Fatalf("timeout should NOT be protocol error")
	}
	if !IsTimeout(context.DeadlineExceeded) {
		t.Fatalf("expected context deadline recognized")
	}
	var ne error = root
	if !IsTimeout(ne) {
		t.Fatalf("expected net-like timeout recognized")
	}
}

func TestUnwrapChains(t *testing.T) {
	base := stdErrors.New("short read")
	l1 := fmt.Errorf("udw extract: %w", base)
	l2 := NewProtocolError("anc.parse_header", l1)
	if !stdErrors.Is(l2, base) {
		t.Fatalf("errors.Is should reach base cause")
	}
	var cm classMarker
	if !stdErrors.As(l2, &cm) {
		t.Fatalf("expected to match classMarker via As")
	}
}

func TestNilSafety(t *testing.T) {
	if IsProtocolError(nil) || IsConfigError(nil) || IsResourceError(nil) ||
		IsTimingError(nil) || IsInvariantError(nil) || IsTimeout(nil) {
		t.Fatalf("nil should not classify as any error tier")
	}
}

func TestErrorStringsNonEmptyWithoutCause(t *testing.T) {
	cases := []error{
		NewConfigError("op1", nil),
		NewResourceError("op2", nil),
		NewProtocolError("op3", nil),
		NewTimingError("op4", nil),
		NewInvariantError("op5", nil),
		NewTimeoutError("op6", 50*time.Millisecond, nil),
	}
	for _, err := range cases {
		if err.Error() == "" {
			t.Fatalf("expected non-empty error string for %T", err)
		}
	}
}

func TestNegativePredicates(t *testing.T) {
	plain := stdErrors.New("plain")
	if IsProtocolError(plain) || IsConfigError(plain) || IsResourceError(plain) ||
		IsTimingError(plain) || IsInvariantError(plain) || IsTimeout(plain) {
		t.Fatalf("plain error shouldn't classify into any tier")
	}
}
