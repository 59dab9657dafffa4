package models

import "encoding/json"

// WSMessage is the envelope for all WebSocket communication.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StartCaptureRequest is sent by the client to begin a capture on an adapter.
// Either Interface or Index selects the adapter; Interface wins when both are set.
type StartCaptureRequest struct {
	Interface   string `json:"interface,omitempty"`
	Index       *int   `json:"index,omitempty"`
	Promiscuous *bool  `json:"promiscuous,omitempty"`
	TimeoutMs   int    `json:"timeoutMs,omitempty"`
}

// InterfaceInfo describes a network interface available for capture.
type InterfaceInfo struct {
	Index       int      `json:"index"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Addresses   []string `json:"addresses,omitempty"`
}

// CaptureStats reports capture statistics.
type CaptureStats struct {
	InterfaceName string `json:"interfaceName"`
	Frames        int    `json:"frames"`
	Timeouts      int    `json:"timeouts"`
	Truncated     int    `json:"truncated"`
	Bytes         int64  `json:"bytes"`
	Buffered      int    `json:"buffered"`
	Received      int    `json:"received"`
	Dropped       int    `json:"dropped"`
}

// ErrorPayload describes an error sent to the client.
type ErrorPayload struct {
	Message string `json:"message"`
}
