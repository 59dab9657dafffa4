package models

import (
	"fmt"
	"time"
)

// RawFrame is one captured link-layer frame. The payload is owned by the
// frame and never modified after construction.
type RawFrame struct {
	timestamp time.Time
	length    int
	payload   []byte
}

// NewRawFrame copies data into a new frame. originalLen is the length of the
// frame on the wire and must not be smaller than len(data).
func NewRawFrame(ts time.Time, data []byte, originalLen int) (*RawFrame, error) {
	if originalLen < len(data) {
		return nil, fmt.Errorf("captured length %d exceeds original length %d", len(data), originalLen)
	}
	payload := make([]byte, len(data))
	copy(payload, data)
	return &RawFrame{timestamp: ts, length: originalLen, payload: payload}, nil
}

// Timestamp returns the capture time.
func (f *RawFrame) Timestamp() time.Time { return f.timestamp }

// CapturedLength returns the number of bytes stored.
func (f *RawFrame) CapturedLength() int { return len(f.payload) }

// OriginalLength returns the number of bytes seen on the wire.
func (f *RawFrame) OriginalLength() int { return f.length }

// Payload returns the captured bytes. Callers must not modify the slice.
func (f *RawFrame) Payload() []byte { return f.payload }

// Truncated reports whether the capture snapshot cut the frame short.
func (f *RawFrame) Truncated() bool { return len(f.payload) < f.length }
