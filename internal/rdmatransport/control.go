package rdmatransport

import (
	"encoding/binary"
	"fmt"
)

// controlMagic identifies a framed control message on the RDMA
// out-of-band channel, distinguishing it from raw data-plane traffic.
var controlMagic = [4]byte{'I', 'M', 'T', 'L'}

// ControlType enumerates the buffer-exchange handshake messages.
type ControlType uint8

const (
	// BufferReady announces a registered remote buffer (address + rkey +
	// length) the sender may RDMA_WRITE into.
	BufferReady ControlType = iota + 1
	// BufferDone announces that a previously advertised buffer has been
	// fully written and its immediate value/sequence observed.
	BufferDone
	// Bye requests an orderly teardown of the connection.
	Bye
)

func (t ControlType) String() string {
	switch t {
	case BufferReady:
		return "BUFFER_READY"
	case BufferDone:
		return "BUFFER_DONE"
	case Bye:
		return "BYE"
	default:
		return "UNKNOWN"
	}
}

// ControlMessage is one framed message on the control channel.
// Wire layout: magic(4) type(1) bufferIndex(1) reserved(2) addr(8) rkey(4) length(4) = 24 bytes.
type ControlMessage struct {
	Type        ControlType
	BufferIndex uint8
	Addr        uint64
	RKey        uint32
	Length      uint32
}

const controlMessageSize = 24

// Encode serializes m into a fixed 24-byte frame.
func (m ControlMessage) Encode() []byte {
	buf := make([]byte, controlMessageSize)
	copy(buf[0:4], controlMagic[:])
	buf[4] = byte(m.Type)
	buf[5] = m.BufferIndex
	binary.BigEndian.PutUint64(buf[8:16], m.Addr)
	binary.BigEndian.PutUint32(buf[16:20], m.RKey)
	binary.BigEndian.PutUint32(buf[20:24], m.Length)
	return buf
}

// DecodeControlMessage parses a frame produced by Encode, validating the
// magic and overall length.
func DecodeControlMessage(buf []byte) (ControlMessage, error) {
	if len(buf) < controlMessageSize {
		return ControlMessage{}, fmt.Errorf("rdmatransport: control frame too short (%d bytes)", len(buf))
	}
	if string(buf[0:4]) != string(controlMagic[:]) {
		return ControlMessage{}, fmt.Errorf("rdmatransport: bad control magic %q", buf[0:4])
	}
	return ControlMessage{
		Type:        ControlType(buf[4]),
		BufferIndex: buf[5],
		Addr:        binary.BigEndian.Uint64(buf[8:16]),
		RKey:        binary.BigEndian.Uint32(buf[16:20]),
		Length:      binary.BigEndian.Uint32(buf[20:24]),
	}, nil
}
