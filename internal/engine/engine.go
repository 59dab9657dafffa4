package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/gopacket/layers"
	"go.uber.org/zap"

	"netgazer/internal/adapter"
	"netgazer/internal/capture"
	"netgazer/internal/flow"
	"netgazer/internal/models"
	"netgazer/internal/parser"
)

// Message types sent to clients.
const (
	MsgFrame           = "frame"
	MsgCaptureStarted  = "capture_started"
	MsgCaptureStopped  = "capture_stopped"
	MsgCaptureFinished = "capture_finished"
	MsgError           = "error"
)

// Client represents a connected WebSocket client that receives frames.
type Client interface {
	SendMessage(msg models.WSMessage) error
}

// Engine runs at most one capture at a time on an adapter registry and
// broadcasts decoded frames to clients.
type Engine struct {
	mu        sync.Mutex
	clients   map[Client]bool
	reg       *adapter.Registry
	decoder   parser.Decoder
	snapLen   int
	logger    *zap.Logger
	flows     *flow.Tracker
	session   *adapter.Session
	stopCh    chan struct{}
	done      chan struct{}
	capturing bool
	starting  bool
	frameNum  int
	startTime time.Time
}

// New creates an Engine capturing through reg. Saved captures decoded by
// the engine are cut to snapLen bytes per frame; zero means the default.
func New(reg *adapter.Registry, dec parser.Decoder, snapLen int, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if snapLen <= 0 {
		snapLen = capture.DefaultSnapLen
	}
	return &Engine{
		clients: make(map[Client]bool),
		reg:     reg,
		decoder: dec,
		snapLen: snapLen,
		logger:  logger.Named("engine"),
		flows:   flow.NewTracker(),
	}
}

// RegisterClient adds a client to receive frame broadcasts.
func (e *Engine) RegisterClient(c Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clients[c] = true
}

// UnregisterClient removes a client.
func (e *Engine) UnregisterClient(c Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.clients, c)
}

// GetInterfaces lists the registry's adapters in enumeration order.
func (e *Engine) GetInterfaces() []models.InterfaceInfo {
	handles := e.reg.Handles()
	out := make([]models.InterfaceInfo, 0, len(handles))
	for _, h := range handles {
		out = append(out, models.InterfaceInfo{
			Index:       h.Index(),
			Name:        h.Name(),
			Description: h.Description(),
			Addresses:   h.Addresses(),
		})
	}
	return out
}

// Refresh re-enumerates adapters. A running capture is stopped first since
// its handle becomes stale.
func (e *Engine) Refresh() error {
	e.StopCapture()
	return e.reg.Reset()
}

// Capturing reports whether a capture loop is running.
func (e *Engine) Capturing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capturing
}

func (e *Engine) selectAdapter(req models.StartCaptureRequest) (*adapter.Handle, error) {
	switch {
	case req.Interface != "":
		return e.reg.ByName(req.Interface)
	case req.Index != nil:
		return e.reg.ByIndex(*req.Index)
	default:
		return nil, errors.New("no adapter selected")
	}
}

// StartCapture opens the requested adapter and starts streaming its frames.
// A start that overlaps another start or a running capture is refused.
func (e *Engine) StartCapture(req models.StartCaptureRequest) (err error) {
	e.mu.Lock()
	if e.capturing || e.starting {
		e.mu.Unlock()
		return fmt.Errorf("capture already running")
	}
	e.starting = true
	e.mu.Unlock()
	defer func() {
		if err != nil {
			e.mu.Lock()
			e.starting = false
			e.mu.Unlock()
		}
	}()

	h, err := e.selectAdapter(req)
	if err != nil {
		return err
	}
	sess, err := e.reg.Session(h)
	if err != nil {
		return err
	}
	promisc := true
	if req.Promiscuous != nil {
		promisc = *req.Promiscuous
	}
	timeout := capture.DefaultTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	if err := sess.Open(promisc, timeout); err != nil {
		return err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	e.mu.Lock()
	e.session = sess
	e.starting = false
	e.capturing = true
	e.frameNum = 0
	e.startTime = time.Now()
	e.stopCh = stop
	e.done = done
	e.mu.Unlock()
	e.flows.Reset()

	e.logger.Info("capture started", zap.String("adapter", h.Name()), zap.Int("index", h.Index()))
	payload, _ := json.Marshal(map[string]any{"interfaceName": h.Name(), "index": h.Index()})
	e.broadcast(models.WSMessage{Type: MsgCaptureStarted, Payload: payload})

	go e.captureLoop(sess, stop, done)
	return nil
}

// StopCapture stops the active capture and waits for its loop to exit.
func (e *Engine) StopCapture() {
	e.mu.Lock()
	if !e.capturing {
		e.mu.Unlock()
		return
	}
	e.capturing = false
	stop, done, sess := e.stopCh, e.done, e.session
	e.mu.Unlock()

	// Clients hear about the stop before the loop has drained.
	e.broadcast(models.WSMessage{Type: MsgCaptureStopped})

	close(stop)
	if err := sess.Close(); err != nil {
		e.logger.Warn("close session", zap.Error(err))
	}
	<-done
}

func (e *Engine) captureLoop(sess *adapter.Session, stop, done chan struct{}) {
	defer close(done)
	name := sess.Handle().Name()
	for {
		select {
		case <-stop:
			return
		default:
		}

		f, status, err := sess.NextFrame()
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			if errors.Is(err, parser.ErrTruncatedFrame) {
				e.logger.Debug("skipping frame", zap.String("adapter", name), zap.Error(err))
				continue
			}
			e.logger.Error("capture failed", zap.String("adapter", name), zap.Error(err))
			e.sendError(err.Error())
			e.finish(sess, stop)
			return
		}

		switch status {
		case adapter.StatusTimeout:
			continue
		case adapter.StatusEndOfStream:
			e.logger.Info("end of stream", zap.String("adapter", name))
			e.finish(sess, stop)
			return
		}

		e.mu.Lock()
		e.frameNum++
		num := e.frameNum
		startTime := e.startTime
		e.mu.Unlock()

		e.flows.TrackFrame(f)
		info := parser.Parse(f, num, startTime)
		payload, _ := json.Marshal(info)
		e.broadcast(models.WSMessage{Type: MsgFrame, Payload: payload})
	}
}

// finish ends a capture the loop itself decided to stop. StopCapture may
// have raced it, in which case there is nothing left to do. The session is
// closed before the capture is released so a new start cannot be closed
// by this loop.
func (e *Engine) finish(sess *adapter.Session, stop chan struct{}) {
	e.mu.Lock()
	owned := e.capturing && e.stopCh == stop
	if owned {
		if err := sess.Close(); err != nil {
			e.logger.Warn("close session", zap.Error(err))
		}
		e.capturing = false
	}
	e.mu.Unlock()
	if !owned {
		return
	}
	e.broadcast(models.WSMessage{Type: MsgCaptureFinished})
}

// Stats returns counters for the current or last capture.
func (e *Engine) Stats() models.CaptureStats {
	e.mu.Lock()
	sess := e.session
	e.mu.Unlock()
	if sess == nil {
		return models.CaptureStats{}
	}
	st := sess.Stats()
	out := models.CaptureStats{
		InterfaceName: sess.Handle().Name(),
		Frames:        st.Frames,
		Timeouts:      st.Timeouts,
		Truncated:     st.Truncated,
		Bytes:         st.Bytes,
		Buffered:      sess.Buffered(),
	}
	if received, dropped, ok := sess.DriverStats(); ok {
		out.Received = received
		out.Dropped = dropped
	}
	return out
}

// Flows returns the IPv4 conversations seen by the current capture.
func (e *Engine) Flows() []*flow.Flow {
	return e.flows.GetFlows()
}

// DecodeFile decodes every Ethernet frame of a saved capture. Frames too
// short to decode are skipped and counted.
func (e *Engine) DecodeFile(path string) (frames []models.FrameInfo, skipped int, err error) {
	err = e.replay(path, func(info models.FrameInfo) {
		frames = append(frames, info)
	}, &skipped)
	return frames, skipped, err
}

// LoadPcapFile reads a saved capture and streams its frames to all clients
// with pacing.
func (e *Engine) LoadPcapFile(path string) error {
	batch := 0
	var skipped int
	return e.replay(path, func(info models.FrameInfo) {
		payload, _ := json.Marshal(info)
		e.broadcast(models.WSMessage{Type: MsgFrame, Payload: payload})

		// Pace: yield every 200 frames so the client can breathe
		batch++
		if batch >= 200 {
			batch = 0
			time.Sleep(5 * time.Millisecond)
		}
	}, &skipped)
}

func (e *Engine) replay(path string, emit func(models.FrameInfo), skipped *int) error {
	src, err := capture.OpenFile(path, e.snapLen)
	if err != nil {
		return err
	}
	defer src.Close()
	if lt := src.LinkType(); lt != layers.LinkTypeEthernet {
		return fmt.Errorf("%w: %s: unsupported link type %s", adapter.ErrOpen, path, lt)
	}

	var firstTS time.Time
	num := 0
	for {
		raw, err := src.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %w", adapter.ErrCapture, path, err)
		}
		f, err := e.decoder.Decode(raw)
		if err != nil {
			*skipped++
			continue
		}
		if firstTS.IsZero() {
			firstTS = raw.Timestamp()
		}
		num++
		emit(parser.Parse(f, num, firstTS))
	}
	e.logger.Info("capture file decoded", zap.String("path", path), zap.Int("frames", num), zap.Int("skipped", *skipped))
	return nil
}

func (e *Engine) sendError(message string) {
	payload, _ := json.Marshal(models.ErrorPayload{Message: message})
	e.broadcast(models.WSMessage{Type: MsgError, Payload: payload})
}

func (e *Engine) broadcast(msg models.WSMessage) {
	e.mu.Lock()
	clients := make([]Client, 0, len(e.clients))
	for c := range e.clients {
		clients = append(clients, c)
	}
	e.mu.Unlock()

	for _, c := range clients {
		if err := c.SendMessage(msg); err != nil {
			e.logger.Debug("send to client", zap.Error(err))
		}
	}
}
