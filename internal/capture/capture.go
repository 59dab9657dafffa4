// Package capture defines the capture-source contract the adapter layer
// consumes, and a driver that replays saved capture files.
package capture

import (
	"errors"
	"time"

	"github.com/google/gopacket/layers"

	"netgazer/internal/models"
)

const (
	DefaultSnapLen = 65536
	DefaultTimeout = time.Second
)

// ErrTimeout is returned by Source.ReadFrame when no frame arrived within
// the read timeout.
var ErrTimeout = errors.New("capture read timeout")

// Device describes a capture-capable interface.
type Device struct {
	Name        string
	Description string
	Addresses   []string
}

// StatsSource is implemented by sources that can report driver-level
// counters, such as frames the kernel dropped.
type StatsSource interface {
	Stats() (received, dropped int, err error)
}

// Driver enumerates devices and opens capture sources on them.
type Driver interface {
	Devices() ([]Device, error)
	Open(name string, opts OpenOptions) (Source, error)
}

// OpenOptions carries the parameters of a capture open.
type OpenOptions struct {
	Promiscuous bool
	SnapLen     int
	Timeout     time.Duration
}

// Source delivers captured frames. ReadFrame blocks for at most the
// configured timeout and returns ErrTimeout if nothing arrived, io.EOF once
// the source is exhausted, or another error carrying the driver's text.
// Close must be safe to call once while a ReadFrame is in flight.
type Source interface {
	ReadFrame() (*models.RawFrame, error)
	LinkType() layers.LinkType
	Close() error
}
