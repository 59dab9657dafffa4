// Package adapter manages capture-capable interfaces and the capture
// sessions opened on them.
package adapter

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"netgazer/internal/buffer"
	"netgazer/internal/capture"
	"netgazer/internal/parser"
)

// Handle refers to one enumerated interface. It is valid until the
// registry that produced it is reset or disposed.
type Handle struct {
	reg         *Registry
	gen         uint64
	index       int
	name        string
	description string
	addresses   []string
}

func (h *Handle) Name() string        { return h.name }
func (h *Handle) Description() string { return h.description }
func (h *Handle) Index() int          { return h.index }
func (h *Handle) Addresses() []string { return h.addresses }

// Valid reports whether the handle still belongs to its registry's current
// enumeration.
func (h *Handle) Valid() bool {
	return h != nil && h.reg != nil && h.reg.gen.Load() == h.gen
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used by the registry and its sessions.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDecoder sets the decoder sessions use.
func WithDecoder(d parser.Decoder) Option {
	return func(r *Registry) { r.decoder = d }
}

// WithSnapLen sets the snapshot length sessions open with.
func WithSnapLen(n int) Option {
	return func(r *Registry) { r.snapLen = n }
}

// WithBufferCapacity sets the per-session frame history size.
func WithBufferCapacity(n int) Option {
	return func(r *Registry) { r.capacity = n }
}

// Registry is the catalog of interfaces a driver exposes. It owns every
// handle and session it produces.
type Registry struct {
	mu       sync.Mutex
	driver   capture.Driver
	gen      atomic.Uint64
	disposed bool
	handles  []*Handle
	cursor   int
	sessions map[*Handle]*Session

	logger   *zap.Logger
	decoder  parser.Decoder
	snapLen  int
	capacity int
}

// New enumerates the driver's devices into a new registry.
func New(driver capture.Driver, opts ...Option) (*Registry, error) {
	r := &Registry{
		driver:   driver,
		sessions: make(map[*Handle]*Session),
		logger:   zap.NewNop(),
		snapLen:  capture.DefaultSnapLen,
		capacity: buffer.DefaultCapacity,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.gen.Store(1)
	if err := r.enumerate(); err != nil {
		return nil, err
	}
	return r, nil
}

// enumerate must be called with mu held or before r is shared.
func (r *Registry) enumerate() error {
	devs, err := r.driver.Devices()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEnumeration, err)
	}
	gen := r.gen.Load()
	r.handles = make([]*Handle, 0, len(devs))
	for i, d := range devs {
		r.handles = append(r.handles, &Handle{
			reg:         r,
			gen:         gen,
			index:       i,
			name:        d.Name,
			description: d.Description,
			addresses:   d.Addresses,
		})
	}
	r.cursor = 0
	r.logger.Debug("enumerated adapters", zap.Int("count", len(r.handles)))
	return nil
}

// Next returns the next enumerated handle, or nil once all were returned.
func (r *Registry) Next() *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed || r.cursor >= len(r.handles) {
		return nil
	}
	h := r.handles[r.cursor]
	r.cursor++
	return h
}

// ByName returns the handle with the given interface name.
func (r *Registry) ByName(name string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil, fmt.Errorf("%w: registry disposed", ErrStaleHandle)
	}
	for _, h := range r.handles {
		if h.name == name {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// ByIndex returns the i-th enumerated handle.
func (r *Registry) ByIndex(i int) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil, fmt.Errorf("%w: registry disposed", ErrStaleHandle)
	}
	if i < 0 || i >= len(r.handles) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, len(r.handles))
	}
	return r.handles[i], nil
}

// Len returns the number of enumerated handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Handles returns every enumerated handle in order.
func (r *Registry) Handles() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Handle(nil), r.handles...)
}

// Session returns the session bound to h, creating it on first use.
func (r *Registry) Session(h *Handle) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed || h == nil || h.reg != r || !h.Valid() {
		return nil, ErrStaleHandle
	}
	if s, ok := r.sessions[h]; ok {
		return s, nil
	}
	buf, err := buffer.New[*parser.Frame](r.capacity)
	if err != nil {
		return nil, err
	}
	s := &Session{
		handle:  h,
		driver:  r.driver,
		decoder: r.decoder,
		snapLen: r.snapLen,
		buffer:  buf,
		logger:  r.logger.With(zap.String("adapter", h.name)),
	}
	r.sessions[h] = s
	return s, nil
}

// SessionByName looks up a handle by name and returns its session.
func (r *Registry) SessionByName(name string) (*Session, error) {
	h, err := r.ByName(name)
	if err != nil {
		return nil, err
	}
	return r.Session(h)
}

// SessionByIndex looks up a handle by index and returns its session.
func (r *Registry) SessionByIndex(i int) (*Session, error) {
	h, err := r.ByIndex(i)
	if err != nil {
		return nil, err
	}
	return r.Session(h)
}

// Reset closes every session, invalidates every handle and enumerates the
// driver's devices again.
func (r *Registry) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return fmt.Errorf("%w: registry disposed", ErrStaleHandle)
	}
	r.releaseLocked()
	return r.enumerate()
}

// Dispose closes every session and invalidates every handle. The registry
// cannot be used afterwards. Safe to call more than once and from another
// goroutine than the one capturing.
func (r *Registry) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return
	}
	r.disposed = true
	r.releaseLocked()
	r.logger.Debug("registry disposed")
}

func (r *Registry) releaseLocked() {
	r.gen.Add(1)
	for h, s := range r.sessions {
		if err := s.Close(); err != nil {
			r.logger.Warn("close session", zap.String("adapter", h.name), zap.Error(err))
		}
	}
	r.sessions = make(map[*Handle]*Session)
	r.handles = nil
	r.cursor = 0
}
