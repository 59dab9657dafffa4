package adapter

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/gopacket/layers"
	"go.uber.org/zap"

	"netgazer/internal/buffer"
	"netgazer/internal/capture"
	"netgazer/internal/parser"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// Status is the outcome of a successful NextFrame call.
type Status int

const (
	StatusFrame Status = iota + 1
	StatusTimeout
	StatusEndOfStream
)

func (s Status) String() string {
	switch s {
	case StatusFrame:
		return "frame"
	case StatusTimeout:
		return "timeout"
	case StatusEndOfStream:
		return "end of stream"
	default:
		return "none"
	}
}

// Stats counts what a session has read since it was last opened.
type Stats struct {
	Frames    int
	Timeouts  int
	Truncated int
	Bytes     int64
	Evicted   int64
}

// Session owns at most one open capture source on an adapter, plus the
// history of frames decoded from it.
type Session struct {
	mu      sync.Mutex
	handle  *Handle
	driver  capture.Driver
	decoder parser.Decoder
	snapLen int
	logger  *zap.Logger

	src     capture.Source
	promisc bool
	timeout time.Duration
	buffer  *buffer.Bounded[*parser.Frame]
	stats   Stats
}

// Handle returns the adapter the session is bound to.
func (s *Session) Handle() *Handle { return s.handle }

// State returns whether the session is open.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src != nil {
		return StateOpen
	}
	return StateClosed
}

// Promiscuous reports the mode the session was opened with.
func (s *Session) Promiscuous() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promisc
}

// Timeout returns the read timeout the session was opened with.
func (s *Session) Timeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

// Open closes any capture the session holds, then opens a new one.
func (s *Session) Open(promisc bool, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.handle.Valid() {
		return ErrStaleHandle
	}
	if err := s.closeLocked(); err != nil {
		s.logger.Warn("close before open", zap.Error(err))
	}

	name := s.handle.name
	src, err := s.driver.Open(name, capture.OpenOptions{
		Promiscuous: promisc,
		SnapLen:     s.snapLen,
		Timeout:     timeout,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOpen, name, err)
	}
	if lt := src.LinkType(); lt != layers.LinkTypeEthernet {
		src.Close()
		return fmt.Errorf("%w: %s: unsupported link type %s", ErrOpen, name, lt)
	}

	s.src = src
	s.promisc = promisc
	s.timeout = timeout
	s.stats = Stats{}
	s.logger.Info("adapter opened",
		zap.Bool("promiscuous", promisc),
		zap.Duration("timeout", timeout),
		zap.Int("snaplen", s.snapLen))
	return nil
}

// Close releases the capture source and the frame history. Calling it on a
// closed session does nothing.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	s.buffer.Clear()
	s.promisc = false
	if s.src == nil {
		return nil
	}
	err := s.src.Close()
	s.src = nil
	s.logger.Info("adapter closed",
		zap.Int("frames", s.stats.Frames),
		zap.Int("truncated", s.stats.Truncated))
	if err != nil {
		return fmt.Errorf("close %s: %w", s.handle.name, err)
	}
	return nil
}

// NextFrame blocks for the next frame, up to the session's timeout. A
// decoded frame is kept in the session's history until evicted or the
// session closes. Frames too short to decode are reported with
// parser.ErrTruncatedFrame.
func (s *Session) NextFrame() (*parser.Frame, Status, error) {
	s.mu.Lock()
	if !s.handle.Valid() {
		s.mu.Unlock()
		return nil, 0, ErrStaleHandle
	}
	src := s.src
	s.mu.Unlock()
	if src == nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotOpen, s.handle.name)
	}

	raw, err := src.ReadFrame()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src != src {
		return nil, 0, fmt.Errorf("%w: %s closed during read", ErrNotOpen, s.handle.name)
	}
	switch {
	case errors.Is(err, capture.ErrTimeout):
		s.stats.Timeouts++
		return nil, StatusTimeout, nil
	case errors.Is(err, io.EOF):
		return nil, StatusEndOfStream, nil
	case err != nil:
		return nil, 0, fmt.Errorf("%w: %s: %w", ErrCapture, s.handle.name, err)
	}

	f, err := s.decoder.Decode(raw)
	if err != nil {
		s.stats.Truncated++
		return nil, 0, err
	}
	if _, evicted := s.buffer.Push(f); evicted {
		s.stats.Evicted++
	}
	s.stats.Frames++
	s.stats.Bytes += int64(raw.OriginalLength())
	return f, StatusFrame, nil
}

// Frames returns the buffered history, oldest first.
func (s *Session) Frames() []*parser.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.All()
}

// Latest returns the most recently decoded frame still buffered.
func (s *Session) Latest() (*parser.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Newest()
}

// Buffered returns the number of frames in the history.
func (s *Session) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Len()
}

// DriverStats returns the received and dropped counters of the open
// source, when the source reports them.
func (s *Session) DriverStats() (received, dropped int, ok bool) {
	s.mu.Lock()
	src := s.src
	s.mu.Unlock()
	ss, isStats := src.(capture.StatsSource)
	if !isStats {
		return 0, 0, false
	}
	received, dropped, err := ss.Stats()
	if err != nil {
		s.logger.Debug("driver stats", zap.Error(err))
		return 0, 0, false
	}
	return received, dropped, true
}

// Stats returns the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
