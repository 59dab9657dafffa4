// Package capturetest provides a scripted in-memory capture driver.
package capturetest

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/gopacket/layers"

	"netgazer/internal/capture"
	"netgazer/internal/models"
)

// Step is one scripted outcome of ReadFrame.
type Step struct {
	Data   []byte
	Length int // original length; defaults to len(Data)
	Err    error
}

// Frame scripts a successful read.
func Frame(data []byte) Step { return Step{Data: data} }

// Timeout scripts a read timeout.
func Timeout() Step { return Step{Err: capture.ErrTimeout} }

// Fail scripts a driver error.
func Fail(msg string) Step { return Step{Err: errors.New(msg)} }

// Driver is a capture.Driver backed by scripted steps. Once a source's
// script runs out it reports timeouts, or io.EOF when EOF is set.
type Driver struct {
	mu sync.Mutex

	Devs    []capture.Device
	DevErr  error
	OpenErr map[string]error
	Scripts map[string][]Step
	EOF     bool
	Link    layers.LinkType
	// Dropped is reported by every source's Stats.
	Dropped int
	// OpenDelay is slept before each Open, outside the driver lock.
	OpenDelay time.Duration
	Opened    []OpenCall
	openCount map[string]int
	live      map[string]int
}

// OpenCall records the arguments of one Open.
type OpenCall struct {
	Name string
	Opts capture.OpenOptions
}

// NewDriver returns a driver listing the named devices.
func NewDriver(names ...string) *Driver {
	d := &Driver{
		OpenErr:   make(map[string]error),
		Scripts:   make(map[string][]Step),
		Link:      layers.LinkTypeEthernet,
		openCount: make(map[string]int),
		live:      make(map[string]int),
	}
	for _, n := range names {
		d.Devs = append(d.Devs, capture.Device{Name: n, Description: "scripted " + n})
	}
	return d
}

// Devices implements capture.Driver.
func (d *Driver) Devices() ([]capture.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.DevErr != nil {
		return nil, d.DevErr
	}
	return append([]capture.Device(nil), d.Devs...), nil
}

// Open implements capture.Driver.
func (d *Driver) Open(name string, opts capture.OpenOptions) (capture.Source, error) {
	if d.OpenDelay > 0 {
		time.Sleep(d.OpenDelay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Opened = append(d.Opened, OpenCall{Name: name, Opts: opts})
	if err := d.OpenErr[name]; err != nil {
		return nil, err
	}
	found := false
	for _, dev := range d.Devs {
		found = found || dev.Name == name
	}
	if !found {
		return nil, fmt.Errorf("%s: No such device exists", name)
	}
	d.openCount[name]++
	d.live[name]++
	return &source{d: d, name: name, steps: d.Scripts[name], eof: d.EOF, link: d.Link, dropped: d.Dropped}, nil
}

// Live returns how many sources on name are open.
func (d *Driver) Live(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live[name]
}

// Opens returns how many times name was opened.
func (d *Driver) Opens(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openCount[name]
}

type source struct {
	d      *Driver
	name   string
	mu     sync.Mutex
	steps  []Step
	eof    bool
	link   layers.LinkType
	closed bool

	received int
	dropped  int
}

func (s *source) ReadFrame() (*models.RawFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("read on closed handle")
	}
	if len(s.steps) == 0 {
		if s.eof {
			return nil, io.EOF
		}
		return nil, capture.ErrTimeout
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	if st.Err != nil {
		return nil, st.Err
	}
	s.received++
	length := st.Length
	if length == 0 {
		length = len(st.Data)
	}
	return models.NewRawFrame(time.Now(), st.Data, length)
}

func (s *source) LinkType() layers.LinkType { return s.link }

// Stats reports frames handed out so far and the driver's Dropped value.
func (s *source) Stats() (received, dropped int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, 0, errors.New("stats on closed handle")
	}
	return s.received, s.dropped, nil
}

func (s *source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("close called twice")
	}
	s.closed = true
	s.d.mu.Lock()
	s.d.live[s.name]--
	s.d.mu.Unlock()
	return nil
}
