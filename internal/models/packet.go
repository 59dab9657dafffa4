package models

// FrameInfo is a decoded frame flattened for display.
type FrameInfo struct {
	Number         int           `json:"number"`
	Timestamp      string        `json:"timestamp"`
	Length         int           `json:"length"`
	CapturedLength int           `json:"capturedLength"`
	EtherType      string        `json:"etherType"`
	SrcMAC         string        `json:"srcMac"`
	DstMAC         string        `json:"dstMac"`
	IPv4           *IPv4Info     `json:"ipv4,omitempty"`
	Layers         []LayerDetail `json:"layers"`
	HexDump        string        `json:"hexDump"`
}

// IPv4Info carries the IPv4 header fields of a frame.
type IPv4Info struct {
	HeaderLength int    `json:"headerLength"`
	TotalLength  int    `json:"totalLength"`
	Protocol     string `json:"protocol"`
	Checksum     uint16 `json:"checksum"`
	SrcAddr      string `json:"srcAddr"`
	DstAddr      string `json:"dstAddr"`
}

// LayerDetail represents one protocol layer in the frame.
type LayerDetail struct {
	Name   string       `json:"name"`
	Fields []LayerField `json:"fields"`
}

// LayerField represents a single field within a protocol layer.
type LayerField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
