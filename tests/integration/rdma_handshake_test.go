package integration

import (
	"context"
	"testing"
	"time"

	"github.com/st2110/core/internal/pipeline"
	"github.com/st2110/core/internal/rdmatransport"
	"github.com/st2110/core/internal/rdmatransport/verbs"
	"github.com/st2110/core/internal/stats"
)

func txAncConfig(name string) pipeline.Config {
	return pipeline.Config{
		Name:             name,
		Kind:             pipeline.KindAncillary,
		MaxAncBytes:      1500,
		FramebufferCount: 4,
		Direction:        pipeline.DirectionTX,
		PayloadType:      100,
	}
}

// RDMA handshake (spec.md §8, scenario 5): after connect, the transport
// advertises framebuff_cnt buffers to its peer and only reaches Connected
// once the peer's BUFFER_READY is observed; after a write completes, the
// TX-side pipeline buffer that was in flight returns to FREE, not
// IN_CONSUMPTION (TX's next state after IN_TRANSMISSION is FREE, the RX-only
// state is never reachable from a TX session).
func TestRDMAHandshakeBufferExchange(t *testing.T) {
	sess, err := pipeline.Create(txAncConfig("rdma-handshake"), stats.NewRegistry())
	if err != nil {
		t.Fatalf("pipeline.Create: %v", err)
	}
	defer sess.Free()

	const framebuffCnt = 4

	// Drive all framebuff_cnt slots through FREE -> IN_USER -> READY so the
	// tasklet side has something to claim, mirroring the TX dataflow that
	// precedes the first RDMA write.
	claimed := make([]*pipeline.Frame, 0, framebuffCnt)
	for i := 0; i < framebuffCnt; i++ {
		f, err := sess.GetFrame()
		if err != nil {
			t.Fatalf("GetFrame %d: %v", i, err)
		}
		if err := sess.PutFrame(f); err != nil {
			t.Fatalf("PutFrame %d: %v", i, err)
		}
	}
	for i := 0; i < framebuffCnt; i++ {
		f := sess.ClaimForTasklet()
		if f == nil {
			t.Fatalf("ClaimForTasklet %d: expected a READY slot", i)
		}
		claimed = append(claimed, f)
		if got := sess.StateOf(f.Index); got != pipeline.StateInTransmission {
			t.Fatalf("slot %d state = %v, want IN_TRANSMISSION", f.Index, got)
		}
	}

	conn := rdmatransport.NewConnection(verbs.NewLoopback(framebuffCnt), nil)
	defer conn.Close()
	if err := conn.Connect(context.Background(), "loopback-peer"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := conn.Status(); got != rdmatransport.StatusHandshaking {
		t.Fatalf("Status() before any BUFFER_READY = %v, want handshaking", got)
	}

	for i := 0; i < framebuffCnt; i++ {
		_, msg, err := conn.AdvertiseBuffer(1500)
		if err != nil {
			t.Fatalf("AdvertiseBuffer %d: %v", i, err)
		}
		msg.BufferIndex = uint8(i)
		conn.HandleControl(msg)
	}
	if got := conn.Status(); got != rdmatransport.StatusConnected {
		t.Fatalf("Status() after %d BUFFER_READY messages = %v, want connected", framebuffCnt, got)
	}

	completions := make(chan uint32, framebuffCnt)
	conn.Completions(func(seq uint32, bytes int) { completions <- seq })

	if err := conn.Write(0, []byte("anc-frame-0"), 1); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case <-completions:
	case <-time.After(time.Second):
		t.Fatalf("did not observe the write completion")
	}

	if err := sess.ReleaseFromTasklet(claimed[0]); err != nil {
		t.Fatalf("ReleaseFromTasklet: %v", err)
	}
	if got := sess.StateOf(claimed[0].Index); got != pipeline.StateFree {
		t.Fatalf("slot %d state after DONE completion = %v, want FREE (not IN_CONSUMPTION)", claimed[0].Index, got)
	}
}
