package pipeline

import "errors"

var (
	errZeroFrameSize  = errors.New("computed frame size is zero")
	errNotReady       = errors.New("session is not ready")
	errNilFrame       = errors.New("nil frame")
	errBadIndex       = errors.New("frame index out of range for this session")
	errWrongOwnership = errors.New("frame is not owned by the expected party")
)
