package adapter

import (
	"errors"

	"netgazer/internal/buffer"
)

var (
	// Registry errors.
	ErrEnumeration     = errors.New("adapter enumeration failed")
	ErrNotFound        = errors.New("adapter not found")
	ErrIndexOutOfRange = errors.New("adapter index out of range")
	ErrStaleHandle     = errors.New("stale adapter handle")

	// Session errors.
	ErrOpen    = errors.New("adapter open failed")
	ErrNotOpen = errors.New("adapter is not opened")
	ErrCapture = errors.New("capture failed")

	// ErrAllocation is returned when a session's frame buffer cannot be sized.
	ErrAllocation = buffer.ErrAllocation
)
