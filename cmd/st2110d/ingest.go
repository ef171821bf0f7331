package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"

	"github.com/st2110/core/internal/pipeline"
	"github.com/st2110/core/internal/st2110_40"
)

const rtpHeaderMinLen = 12

// parseRTPHeader extracts the fields an ST 2110 receiver needs from an RTP
// packet: sequence number, 32-bit timestamp, the marker bit, and the
// payload with any CSRC list and header extension skipped over.
func parseRTPHeader(pkt []byte) (seq uint16, timestamp uint32, marker bool, payload []byte, err error) {
	if len(pkt) < rtpHeaderMinLen {
		return 0, 0, false, nil, fmt.Errorf("rtp packet too short: %d bytes", len(pkt))
	}
	version := pkt[0] >> 6
	if version != 2 {
		return 0, 0, false, nil, fmt.Errorf("unsupported rtp version %d", version)
	}
	seq = binary.BigEndian.Uint16(pkt[2:4])
	timestamp = binary.BigEndian.Uint32(pkt[4:8])
	marker = pkt[1]&0x80 != 0

	headerLen := rtpHeaderMinLen + int(pkt[0]&0x0f)*4
	if pkt[0]&0x10 != 0 {
		if len(pkt) < headerLen+4 {
			return 0, 0, false, nil, fmt.Errorf("rtp extension header truncated")
		}
		extWords := int(binary.BigEndian.Uint16(pkt[headerLen+2 : headerLen+4]))
		headerLen += 4 + extWords*4
	}
	if len(pkt) < headerLen {
		return 0, 0, false, nil, fmt.Errorf("rtp header longer than packet")
	}
	return seq, timestamp, marker, pkt[headerLen:], nil
}

// listenRX opens a UDP socket for ep and, when ep.IP names a multicast
// group, joins it on every up multicast-capable interface via
// golang.org/x/net/ipv4 so delivery is filtered by the kernel rather than
// relying on a unicast-only bind.
func listenRX(ep pipeline.Endpoint) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: int(ep.Port)})
	if err != nil {
		return nil, fmt.Errorf("listen udp :%d: %w", ep.Port, err)
	}

	ip := net.ParseIP(ep.IP)
	if ip == nil || !ip.IsMulticast() {
		return conn, nil
	}

	pc := ipv4.NewPacketConn(conn)
	ifaces, err := net.Interfaces()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	group := &net.UDPAddr{IP: ip}
	joined := false
	for i := range ifaces {
		iface := ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := pc.JoinGroup(&iface, group); err == nil {
			joined = true
		}
	}
	if !joined {
		conn.Close()
		return nil, fmt.Errorf("no interface joined multicast group %s", ip)
	}
	return conn, nil
}

// runAncRX reads RFC 8331 ancillary RTP packets from conn, reassembles
// complete frames with asm, and drives sess's tasklet side of the buffer
// ring: claim a FREE slot, copy the reassembled UDW bytes in, release it
// to READY for the application's GetFrame to pick up.
func runAncRX(ctx context.Context, conn *net.UDPConn, sess *pipeline.Session, asm *st2110_40.Assembler) {
	defer sess.WG().Done()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 9000)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		seq, ts, marker, payload, err := parseRTPHeader(buf[:n])
		if err != nil {
			continue
		}
		sess.Counters().PacketsIn.Add(1)
		sess.Counters().BytesIn.Add(uint64(n))

		frame, err := asm.Ingest(seq, ts, marker, payload)
		if err != nil {
			sess.Counters().ParityErrors.Add(1)
			continue
		}
		if frame == nil {
			continue
		}

		deliverAncFrame(sess, frame)
	}
}

func deliverAncFrame(sess *pipeline.Session, frame *st2110_40.Frame) {
	slot := sess.ClaimForTasklet()
	if slot == nil {
		sess.Counters().FramesDropped.Add(1)
		return
	}
	udw := frame.RawUDW()
	if len(udw) > len(slot.Data) {
		udw = udw[:len(slot.Data)]
	}
	slot.Len = copy(slot.Data, udw)
	slot.RTPTimestamp = frame.RTPTimestamp
	slot.FieldID = 0
	if frame.SecondField {
		slot.FieldID = 1
	}
	slot.Interlaced = frame.Interlaced
	slot.Marker = true

	if err := sess.ReleaseFromTasklet(slot); err != nil {
		sess.Counters().FramesDropped.Add(1)
		return
	}
	sess.Counters().FramesDone.Add(1)
}

// runRawRX reads raw RTP payloads (video/audio essence, no ST 2110-40
// reassembly) straight into the next FREE buffer slot per packet; used for
// -kind video and -kind audio sessions where one RTP packet's payload maps
// directly to a framebuffer write rather than a multi-packet reassembly.
func runRawRX(ctx context.Context, conn *net.UDPConn, sess *pipeline.Session) {
	defer sess.WG().Done()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 1<<16)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		seq, ts, marker, payload, err := parseRTPHeader(buf[:n])
		if err != nil {
			continue
		}
		sess.Counters().PacketsIn.Add(1)
		sess.Counters().BytesIn.Add(uint64(n))
		_ = seq

		slot := sess.ClaimForTasklet()
		if slot == nil {
			sess.Counters().FramesDropped.Add(1)
			continue
		}
		slot.Len = copy(slot.Data, payload)
		slot.RTPTimestamp = ts
		slot.Marker = marker
		if err := sess.ReleaseFromTasklet(slot); err != nil {
			sess.Counters().FramesDropped.Add(1)
			continue
		}
		if marker {
			sess.Counters().FramesDone.Add(1)
		}
	}
}
