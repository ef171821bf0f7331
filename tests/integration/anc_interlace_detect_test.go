package integration

import (
	"testing"

	"github.com/st2110/core/internal/st2110_40"
)

// ST40 auto-detect interlace (spec.md §8, scenario 2): transmit frames with
// an F-bit pattern alternating field-1 (0b10) / field-2 (0b11) for 128
// frames. Expect interlaced to latch by frame 64 and second_field to keep
// alternating false/true thereafter (the assembler only locks the
// interlaced verdict; it does not stop tracking which field each frame
// carries).
func TestAncAutoDetectInterlace(t *testing.T) {
	asm := st2110_40.NewAssembler(st2110_40.AssemblerConfig{AutoDetectInterlaced: true})

	const frames = 128
	var seq uint16
	var ts uint32 = 10000
	var latchedAtFrame = -1
	var secondFields []bool

	for i := 0; i < frames; i++ {
		field := uint8(0b10)
		if i%2 == 1 {
			field = 0b11
		}
		seq++
		payload := buildAncPayload(field, 0x60, 0x60, []byte{0xaa})
		f, err := asm.Ingest(seq, ts, true, payload)
		ts++
		if err != nil {
			t.Fatalf("Ingest at frame %d: %v", i, err)
		}
		if f == nil {
			t.Fatalf("expected a completed frame at index %d (marker set every packet)", i)
		}
		secondFields = append(secondFields, f.SecondField)
		if f.Interlaced && latchedAtFrame == -1 {
			latchedAtFrame = i
		}
	}

	if latchedAtFrame == -1 {
		t.Fatalf("interlace never latched across %d frames", frames)
	}
	if latchedAtFrame > 64 {
		t.Fatalf("interlace latched at frame %d, want by frame 64", latchedAtFrame)
	}

	for i := latchedAtFrame + 1; i < frames; i++ {
		wantSecondField := i%2 == 1
		if secondFields[i] != wantSecondField {
			t.Fatalf("frame %d: second_field = %v, want %v", i, secondFields[i], wantSecondField)
		}
	}
}
