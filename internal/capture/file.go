package capture

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"netgazer/internal/models"
)

// pcapng section header block magic.
var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// FileDriver replays saved captures. Each configured path is one device;
// reading past the last frame reports io.EOF.
type FileDriver struct {
	Paths []string
}

// Devices lists the configured files.
func (d FileDriver) Devices() ([]Device, error) {
	out := make([]Device, 0, len(d.Paths))
	for _, p := range d.Paths {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("stat capture file: %w", err)
		}
		out = append(out, Device{Name: p, Description: "saved capture " + filepath.Base(p)})
	}
	return out, nil
}

// Open opens a pcap or pcapng file. Promiscuous mode and timeout have no
// meaning for files; frames longer than the snapshot length are cut.
func (d FileDriver) Open(name string, opts OpenOptions) (Source, error) {
	return OpenFile(name, opts.SnapLen)
}

// FileSource reads frames from a saved capture.
type FileSource struct {
	mu      sync.Mutex
	f       *os.File
	r       gopacket.PacketDataSource
	link    layers.LinkType
	snapLen int
}

// OpenFile opens path, detecting pcap and pcapng formats.
func OpenFile(path string, snapLen int) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file %q: %w", path, err)
	}
	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read capture file %q: %w", path, err)
	}

	src := &FileSource{f: f, snapLen: snapLen}
	if bytes.Equal(magic, ngMagic) {
		r, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("read pcapng header %q: %w", path, err)
		}
		src.r, src.link = r, r.LinkType()
	} else {
		r, err := pcapgo.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("read pcap header %q: %w", path, err)
		}
		src.r, src.link = r, r.LinkType()
	}
	return src, nil
}

// ReadFrame returns the next frame or io.EOF.
func (s *FileSource) ReadFrame() (*models.RawFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil, os.ErrClosed
	}
	data, ci, err := s.r.ReadPacketData()
	if err == io.ErrUnexpectedEOF {
		// A partial record at the tail of a file still ends the stream.
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	if s.snapLen > 0 && len(data) > s.snapLen {
		data = data[:s.snapLen]
	}
	length := ci.Length
	if length < len(data) {
		length = len(data)
	}
	return models.NewRawFrame(ci.Timestamp, data, length)
}

// LinkType returns the file's link-layer type.
func (s *FileSource) LinkType() layers.LinkType { return s.link }

// Close releases the file.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
