package st2110_40

import "errors"

var (
	errBitWidth     = errors.New("bit width out of range")
	errShortPayload = errors.New("ancillary payload truncated")
	errUDWTooLarge  = errors.New("meta UDW size exceeds 255 bytes")
)
