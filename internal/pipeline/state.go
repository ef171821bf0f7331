package pipeline

// BufferState is one of the five states a pooled framebuffer can occupy
// (spec.md §3). Exactly one party holds the right to advance a buffer's
// state at any moment; the session mutex (see Session) serializes every
// advance.
type BufferState uint8

const (
	// StateFree: owned by the pool, available for a producer Get.
	StateFree BufferState = iota
	// StateInUser: owned by the application after a producer Get.
	StateInUser
	// StateReady: owned by the pool after a producer Put, awaiting tasklet claim.
	StateReady
	// StateInTransmission: owned by the TX tasklet after claiming a READY buffer.
	StateInTransmission
	// StateInDecoding: owned by the RX tasklet after claiming a FREE buffer to fill.
	StateInDecoding
	// StateInConsumption: owned by the application after an RX consumer Get.
	StateInConsumption
)

func (s BufferState) String() string {
	switch s {
	case StateFree:
		return "FREE"
	case StateInUser:
		return "IN_USER"
	case StateReady:
		return "READY"
	case StateInTransmission:
		return "IN_TRANSMISSION"
	case StateInDecoding:
		return "IN_DECODING"
	case StateInConsumption:
		return "IN_CONSUMPTION"
	default:
		return "UNKNOWN"
	}
}

// Direction distinguishes the two possible cursor disciplines: a TX
// session's producer is the application and its tasklet transmits; an RX
// session's producer is the tasklet (the network) and its consumer is the
// application.
type Direction uint8

const (
	DirectionTX Direction = iota
	DirectionRX
)
