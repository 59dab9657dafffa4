// Package live captures from network interfaces through libpcap.
package live

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"netgazer/internal/capture"
	"netgazer/internal/models"
)

// Driver opens live captures. Filter, when set, is installed as a BPF
// program on every opened handle.
type Driver struct {
	Filter string
}

// Devices returns all available capture interfaces.
func (d Driver) Devices() ([]capture.Device, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	out := make([]capture.Device, 0, len(devs))
	for _, dev := range devs {
		info := capture.Device{
			Name:        dev.Name,
			Description: dev.Description,
		}
		for _, addr := range dev.Addresses {
			info.Addresses = append(info.Addresses, addr.IP.String())
		}
		out = append(out, info)
	}
	return out, nil
}

// Open opens a live capture on the given interface.
func (d Driver) Open(name string, opts capture.OpenOptions) (capture.Source, error) {
	snapLen := opts.SnapLen
	if snapLen <= 0 {
		snapLen = capture.DefaultSnapLen
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = pcap.BlockForever
	}
	handle, err := pcap.OpenLive(name, int32(snapLen), opts.Promiscuous, timeout)
	if err != nil {
		return nil, fmt.Errorf("open live capture on %s: %w", name, err)
	}
	if d.Filter != "" {
		if err := handle.SetBPFFilter(d.Filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("set BPF filter %q: %w", d.Filter, err)
		}
	}
	return &Source{handle: handle}, nil
}

var _ capture.StatsSource = (*Source)(nil)

// Source is an open live capture.
type Source struct {
	mu     sync.Mutex
	handle *pcap.Handle
}

// ReadFrame blocks for the next frame, up to the handle's timeout.
func (s *Source) ReadFrame() (*models.RawFrame, error) {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h == nil {
		return nil, errors.New("capture handle closed")
	}

	data, ci, err := h.ReadPacketData()
	switch {
	case errors.Is(err, pcap.NextErrorTimeoutExpired):
		return nil, capture.ErrTimeout
	case err != nil:
		return nil, err
	}
	return models.NewRawFrame(ci.Timestamp, data, ci.Length)
}

// LinkType returns the link-layer type of the interface.
func (s *Source) LinkType() layers.LinkType {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return layers.LinkTypeNull
	}
	return s.handle.LinkType()
}

// Stats returns capture statistics.
func (s *Source) Stats() (received, dropped int, err error) {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h == nil {
		return 0, 0, errors.New("capture handle closed")
	}
	stats, err := h.Stats()
	if err != nil {
		return 0, 0, err
	}
	return stats.PacketsReceived, stats.PacketsDropped, nil
}

// Close stops the capture. pcap.Handle.Close waits for an in-flight read
// to return.
func (s *Source) Close() error {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()
	if h != nil {
		h.Close()
	}
	return nil
}
