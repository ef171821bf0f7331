package pacing

import "errors"

var (
	errNonPositivePacketsPerFrame = errors.New("packets per frame must be positive")
	errTimestampInPast            = errors.New("user-supplied timestamp is already in the past")
)
