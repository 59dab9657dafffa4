package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"netgazer/internal/engine"
	"netgazer/internal/models"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 512 // frames are dropped once this many are queued
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSClient wraps a WebSocket connection and implements engine.Client.
type WSClient struct {
	conn   *websocket.Conn
	eng    *engine.Engine
	logger *zap.Logger
	sendCh chan models.WSMessage
	done   chan struct{}
}

// NewWSClient creates a WSClient and registers it with the engine.
func NewWSClient(conn *websocket.Conn, eng *engine.Engine, logger *zap.Logger) *WSClient {
	c := &WSClient{
		conn:   conn,
		eng:    eng,
		logger: logger,
		sendCh: make(chan models.WSMessage, sendBuffer),
		done:   make(chan struct{}),
	}
	eng.RegisterClient(c)
	go c.writeLoop()
	return c
}

// SendMessage queues a message for async delivery. Frames are dropped when
// the queue is full; control messages displace the oldest queued entry.
func (c *WSClient) SendMessage(msg models.WSMessage) error {
	select {
	case <-c.done:
		return nil
	default:
	}
	select {
	case c.sendCh <- msg:
		return nil
	default:
		if msg.Type == engine.MsgFrame {
			return nil
		}
		select {
		case <-c.sendCh:
		default:
		}
		select {
		case c.sendCh <- msg:
		default:
		}
		return nil
	}
}

// writeLoop drains the send channel and writes to the WebSocket.
func (c *WSClient) writeLoop() {
	defer c.conn.Close()
	for {
		select {
		case msg := <-c.sendCh:
			if err := c.write(msg); err != nil {
				return
			}

			// Drain and batch-send any queued messages in a single write burst
			n := len(c.sendCh)
			for i := 0; i < n; i++ {
				if err := c.write(<-c.sendCh); err != nil {
					return
				}
			}
		case <-c.done:
			return
		}
	}
}

func (c *WSClient) write(msg models.WSMessage) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug("websocket write", zap.Error(err))
		return err
	}
	return nil
}

// ReadLoop reads messages from the client and dispatches commands.
func (c *WSClient) ReadLoop() {
	defer func() {
		c.eng.UnregisterClient(c)
		close(c.done)
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg models.WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message format")
			continue
		}
		c.handleCommand(msg)
	}
}

func (c *WSClient) handleCommand(msg models.WSMessage) {
	switch msg.Type {
	case "get_interfaces":
		c.sendJSON("interfaces", c.eng.GetInterfaces())

	case "refresh_interfaces":
		if err := c.eng.Refresh(); err != nil {
			c.sendError("failed to list interfaces: " + err.Error())
			return
		}
		c.sendJSON("interfaces", c.eng.GetInterfaces())

	case "start_capture":
		var req models.StartCaptureRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError("invalid start_capture payload")
			return
		}
		if err := c.eng.StartCapture(req); err != nil {
			c.sendError("capture failed: " + err.Error())
			return
		}

	case "stop_capture":
		c.eng.StopCapture()

	case "get_stats":
		c.sendJSON("stats", c.eng.Stats())

	case "get_flows":
		c.sendJSON("flows", c.eng.Flows())

	default:
		c.sendError("unknown command: " + msg.Type)
	}
}

func (c *WSClient) sendJSON(typ string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.SendMessage(models.WSMessage{Type: typ, Payload: payload})
}

func (c *WSClient) sendError(message string) {
	payload, _ := json.Marshal(models.ErrorPayload{Message: message})
	c.SendMessage(models.WSMessage{Type: engine.MsgError, Payload: payload})
}

// HandleWebSocket is the HTTP handler for WebSocket upgrades.
func HandleWebSocket(eng *engine.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade", zap.Error(err))
			return
		}
		logger.Debug("websocket client connected", zap.String("remote", r.RemoteAddr))
		client := NewWSClient(conn, eng, logger)
		client.ReadLoop()
	}
}
