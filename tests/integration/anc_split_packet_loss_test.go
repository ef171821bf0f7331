package integration

import (
	"bytes"
	"testing"

	"github.com/st2110/core/internal/st2110_40"
)

// ST40 split-packet loss (spec.md §8, scenario 1): two RTP packets with
// sequence numbers 100 and 102 carrying a 4-byte UDW payload each, same RTP
// timestamp, marker bit on #102. Expect one received frame with two ANC
// packets, one lost sequence number, the marker observed, and a UDW region
// equal to the concatenation of both payloads.
func TestAncSplitPacketLoss(t *testing.T) {
	asm := st2110_40.NewAssembler(st2110_40.AssemblerConfig{})

	payload1 := buildAncPayload(0, 0x41, 0x02, []byte{0x01, 0x02, 0x03, 0x04})
	if f, err := asm.Ingest(100, 5000, false, payload1); err != nil || f != nil {
		t.Fatalf("first packet: frame=%v err=%v, want nil frame and no error", f, err)
	}

	payload2 := buildAncPayload(0, 0x41, 0x02, []byte{0x05, 0x06, 0x07, 0x08})
	frame, err := asm.Ingest(102, 5000, true, payload2)
	if err != nil {
		t.Fatalf("second packet: %v", err)
	}
	if frame == nil {
		t.Fatalf("expected a completed frame on the marker packet")
	}
	if len(frame.Packets) != 2 {
		t.Fatalf("meta_num = %d, want 2", len(frame.Packets))
	}
	if got := asm.LostPackets(); got != 1 {
		t.Fatalf("seq_lost = %d, want 1 (packet 101 missing)", got)
	}
	if frame.State != st2110_40.FrameComplete {
		t.Fatalf("expected FrameComplete, the marker bit was set on #102")
	}

	want := append(append([]byte{}, 0x01, 0x02, 0x03, 0x04), 0x05, 0x06, 0x07, 0x08)
	if got := frame.RawUDW(); !bytes.Equal(got, want) {
		t.Fatalf("RawUDW() = %v, want %v", got, want)
	}
}
