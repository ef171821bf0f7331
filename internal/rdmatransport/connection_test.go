package rdmatransport

import (
	"context"
	"testing"
	"time"

	"github.com/st2110/core/internal/bufpool"
	"github.com/st2110/core/internal/rdmatransport/verbs"
)

func TestConnectTransitionsToHandshaking(t *testing.T) {
	c := NewConnection(verbs.NewLoopback(8), bufpool.New())
	defer c.Close()
	if err := c.Connect(context.Background(), "loopback"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := c.Status(); got != StatusHandshaking {
		t.Fatalf("Status() = %v, want handshaking", got)
	}
}

func TestHandleControlBufferReadyTransitionsToConnected(t *testing.T) {
	c := NewConnection(verbs.NewLoopback(8), bufpool.New())
	defer c.Close()
	if err := c.Connect(context.Background(), "loopback"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c.HandleControl(ControlMessage{Type: BufferReady, BufferIndex: 0, Length: 4096})
	if got := c.Status(); got != StatusConnected {
		t.Fatalf("Status() = %v, want connected", got)
	}
}

func TestWriteWithoutAdvertisedBufferErrors(t *testing.T) {
	c := NewConnection(verbs.NewLoopback(8), bufpool.New())
	defer c.Close()
	if err := c.Write(0, []byte("x"), 1); err == nil {
		t.Fatalf("expected an error writing to an unadvertised remote buffer")
	}
}

func TestWriteDeliversImmediateToCompletions(t *testing.T) {
	lb := verbs.NewLoopback(8)
	c := NewConnection(lb, bufpool.New())
	defer c.Close()
	if err := c.Connect(context.Background(), "loopback"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c.HandleControl(ControlMessage{Type: BufferReady, BufferIndex: 5, Length: 1500})

	got := make(chan uint32, 1)
	c.Completions(func(seq uint32, bytes int) {
		got <- seq
	})

	if err := c.Write(5, []byte("payload"), 77); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case seq := <-got:
		if seq != 77 {
			t.Fatalf("completion seq = %d, want 77", seq)
		}
	case <-time.After(time.Second):
		t.Fatalf("did not observe a completion")
	}
}

func TestBufferRefcountReleasesToPoolAtZero(t *testing.T) {
	c := NewConnection(verbs.NewLoopback(8), bufpool.New())
	defer c.Close()
	buf, _, err := c.AdvertiseBuffer(1500)
	if err != nil {
		t.Fatalf("AdvertiseBuffer: %v", err)
	}
	buf.Retain()
	if err := buf.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if buf.Data == nil {
		t.Fatalf("expected data to survive the first of two releases")
	}
	if err := buf.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if buf.Data != nil {
		t.Fatalf("expected data released back to pool at zero refs")
	}
}

func TestBufferReleasePastZeroReportsUnderflow(t *testing.T) {
	c := NewConnection(verbs.NewLoopback(8), bufpool.New())
	defer c.Close()
	buf, _, err := c.AdvertiseBuffer(1500)
	if err != nil {
		t.Fatalf("AdvertiseBuffer: %v", err)
	}
	if err := buf.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := buf.Release(); err == nil {
		t.Fatalf("expected an error releasing past zero references")
	}
}
