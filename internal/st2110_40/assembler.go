package st2110_40

import (
	"sync"

	st2110err "github.com/st2110/core/internal/errors"
)

// maxUDWSize is the largest UDW byte count the reserializer's 8-bit
// size field can represent; metas that exceed it are rejected rather
// than silently truncated.
const maxUDWSize = 255

// FrameState is the per-frame reassembly state (spec.md §4.2):
// EMPTY until the first packet of a new RTP timestamp arrives, ASSEMBLING
// while packets accumulate, COMPLETE once a frame boundary is detected.
type FrameState uint8

const (
	FrameEmpty FrameState = iota
	FrameAssembling
	FrameComplete
)

// AncMeta is one reassembled ANC data packet, stripped of its parity bits.
type AncMeta struct {
	C                bool // luma-channel flag
	LineNumber       uint16
	HorizontalOffset uint16
	S                bool // stream-presence flag: StreamNum identifies a specific source
	StreamNum        uint8
	DID              uint8
	SDID             uint8
	UDW              []byte
	ParityOK         bool
	ChecksumOK       bool
}

// Frame is the set of ANC packets carried by all RTP packets sharing one
// RTP timestamp.
type Frame struct {
	RTPTimestamp uint32
	Field        uint8
	Interlaced   bool
	SecondField  bool // true when this frame's F value is 0b11 (field 2)
	Packets      []AncMeta
	State        FrameState
}

// RawUDW concatenates every packet's UDW bytes in arrival order: the
// "raw-UDW" output format (spec.md §4.2), for consumers that only want the
// payload bytes without per-packet framing.
func (f *Frame) RawUDW() []byte {
	var n int
	for _, p := range f.Packets {
		n += len(p.UDW)
	}
	out := make([]byte, 0, n)
	for _, p := range f.Packets {
		out = append(out, p.UDW...)
	}
	return out
}

// Reserialize produces the byte-aligned "RFC-8331-reserializer" output
// format (spec.md §4.2): per meta, an 8-byte header of line number
// (big-endian), horizontal offset (big-endian), a packed C/S/stream-num
// byte, DID, SDID, and a UDW size byte, followed by the meta's raw UDW
// bytes. A meta whose UDW exceeds maxUDWSize is rejected rather than
// truncated.
func (f *Frame) Reserialize() ([]byte, error) {
	out := make([]byte, 0, len(f.Packets)*8)
	for _, p := range f.Packets {
		if len(p.UDW) > maxUDWSize {
			return nil, st2110err.NewProtocolError("st2110_40.reserialize",
				errUDWTooLarge)
		}
		out = append(out,
			byte(p.LineNumber>>8), byte(p.LineNumber),
			byte(p.HorizontalOffset>>8), byte(p.HorizontalOffset),
			packCSStreamNum(p.C, p.S, p.StreamNum),
			p.DID,
			p.SDID,
			byte(len(p.UDW)),
		)
		out = append(out, p.UDW...)
	}
	return out, nil
}

// packCSStreamNum packs the luma-channel flag, stream-presence flag, and
// stream number into a single byte: bit 7 is C, bit 6 is S, and the low
// 6 bits carry StreamNum. StreamNum is a 7-bit RFC 8331 field but only 8
// bits total are available for all three flags in the reserialized
// header, so the top StreamNum bit is dropped; every frame built from
// single-digit stream numbers (the common case) round-trips exactly.
func packCSStreamNum(c, s bool, streamNum uint8) byte {
	var b byte
	if c {
		b |= 1 << 7
	}
	if s {
		b |= 1 << 6
	}
	b |= streamNum & 0x3f
	return b
}

// AssemblerConfig governs optional per-port behavior.
type AssemblerConfig struct {
	// AutoDetectInterlaced enables majority-tally interlace detection over
	// the first 64 packets (spec.md §4.2); when false Interlaced is taken
	// verbatim from each payload's field marker being nonzero.
	AutoDetectInterlaced bool
}

const interlaceDetectWindow = 64

// Assembler reassembles one port's RFC 8331 RTP stream into complete
// ancillary frames, tracking sequence-number gaps and auto-detecting
// interlace across the first packets it sees.
type Assembler struct {
	mu sync.Mutex

	cfg AssemblerConfig

	seqInit    bool
	extSeqHigh uint32 // rollover count << 16
	lastSeq    uint16
	lost       uint64

	interlaceSamples int
	interlaceVotes   int // count of packets observed with field != 0
	interlaceLocked  bool
	interlaced       bool

	cur *Frame
}

// NewAssembler creates an assembler for one ST 2110-40 RTP stream.
func NewAssembler(cfg AssemblerConfig) *Assembler {
	return &Assembler{cfg: cfg}
}

// LostPackets returns the cumulative count of detected sequence-number gaps.
func (a *Assembler) LostPackets() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lost
}

// Ingest processes one RTP packet's ANC payload. It returns a completed
// Frame when this packet closed one out (via the marker bit, a new RTP
// timestamp, or the prior frame already being marked complete), and nil
// while the frame is still assembling.
func (a *Assembler) Ingest(seq uint16, rtpTimestamp uint32, marker bool, payload []byte) (*Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.trackSequenceLocked(seq)

	ancCount, field, packets, err := ParsePayload(payload)
	if err != nil {
		return nil, st2110err.NewProtocolError("st2110_40.ingest", err)
	}
	_ = ancCount

	a.tallyInterlaceLocked(field)

	var closed *Frame
	if a.cur != nil && (a.cur.RTPTimestamp != rtpTimestamp || a.cur.State == FrameComplete) {
		// Either a new RTP timestamp arrived before the previous frame saw
		// its marker bit, or the previous frame is already complete: close
		// the old frame on the frame-boundary rule and start a fresh one.
		a.cur.State = FrameComplete
		closed = a.cur
		a.cur = nil
	}

	if a.cur == nil {
		a.cur = &Frame{
			RTPTimestamp: rtpTimestamp,
			Field:        field,
			Interlaced:   a.currentInterlacedLocked(field),
			SecondField:  field == 0b11,
			State:        FrameAssembling,
		}
	}

	for _, p := range packets {
		a.cur.Packets = append(a.cur.Packets, AncMeta{
			C:                p.C,
			LineNumber:       p.LineNumber,
			HorizontalOffset: p.HorizontalOffset,
			S:                p.S,
			StreamNum:        p.StreamNum,
			DID:              p.DID,
			SDID:             p.SDID,
			UDW:              p.UDW,
			ParityOK:         p.ParityOK,
			ChecksumOK:       p.ChecksumOK,
		})
	}

	if marker {
		a.cur.State = FrameComplete
	}

	// At most one completed frame is reported per Ingest call. If this
	// packet both closed the stale frame (new timestamp) and completed its
	// own (marker bit set), the stale one is reported now; the freshly
	// completed frame is reported on the very next call, before that
	// packet's own payload is processed, via the same "stale frame" path.
	if closed != nil {
		return closed, nil
	}
	if a.cur.State == FrameComplete {
		done := a.cur
		a.cur = nil
		return done, nil
	}
	return nil, nil
}

// trackSequenceLocked extends the 16-bit RTP sequence number into a
// monotonic 32-bit counter and counts any gap as lost packets.
func (a *Assembler) trackSequenceLocked(seq uint16) {
	if !a.seqInit {
		a.seqInit = true
		a.lastSeq = seq
		return
	}
	delta := int32(seq) - int32(a.lastSeq)
	if delta < 0 {
		delta += 1 << 16
	}
	if delta > 1 {
		a.lost += uint64(delta - 1)
	}
	if seq < a.lastSeq {
		a.extSeqHigh += 1 << 16
	}
	a.lastSeq = seq
}

func (a *Assembler) tallyInterlaceLocked(field uint8) {
	if a.interlaceLocked || !a.cfg.AutoDetectInterlaced {
		return
	}
	a.interlaceSamples++
	if field != 0 {
		a.interlaceVotes++
	}
	if a.interlaceSamples >= interlaceDetectWindow {
		a.interlaced = a.interlaceVotes*2 >= a.interlaceSamples
		a.interlaceLocked = true
	}
}

func (a *Assembler) currentInterlacedLocked(field uint8) bool {
	if !a.cfg.AutoDetectInterlaced {
		return field != 0
	}
	if a.interlaceLocked {
		return a.interlaced
	}
	return field != 0
}
