package parser

import (
	"errors"
	"fmt"

	"netgazer/internal/models"
)

// ErrTruncatedFrame is returned when a frame is shorter than the header
// being decoded.
var ErrTruncatedFrame = errors.New("truncated frame")

// Frame is a decoded frame. Ethernet is always set; IPv4 is set exactly
// when the Ethernet type classifies as IP.
type Frame struct {
	Ethernet EthernetView
	IPv4     *IPv4View
}

// Raw returns the captured frame the views are built on.
func (f *Frame) Raw() *models.RawFrame { return f.Ethernet.raw }

// Decoder turns captured frames into protocol views. The zero value reads
// the Ethernet type in network byte order only.
type Decoder struct {
	// AcceptSwappedEtherType also classifies byte-swapped type values
	// (0x0008, 0x0608, 0x3508) for traces from drivers that store the
	// field in host order.
	AcceptSwappedEtherType bool
}

// DecodeEthernet builds the Ethernet view of raw.
func (d Decoder) DecodeEthernet(raw *models.RawFrame) (EthernetView, error) {
	b := raw.Payload()
	if len(b) < EthernetHeaderLen {
		return EthernetView{}, truncated("ethernet", EthernetHeaderLen, len(b))
	}
	t := readEtherType(b)
	return EthernetView{
		raw:       raw,
		etherType: t,
		class:     classifyEtherType(t, d.AcceptSwappedEtherType),
	}, nil
}

// DecodeIPv4 builds the IPv4 view of an Ethernet view classified as IP.
func (d Decoder) DecodeIPv4(eth EthernetView) (IPv4View, error) {
	if eth.Class() != EtherIP {
		return IPv4View{}, fmt.Errorf("ethernet type %s is not IP", eth.Class())
	}
	b := eth.Payload()
	if len(b) < IPv4MinHeaderLen {
		return IPv4View{}, truncated("ipv4", IPv4MinHeaderLen, len(b))
	}
	return IPv4View{b: b}, nil
}

// Decode builds every view raw supports.
func (d Decoder) Decode(raw *models.RawFrame) (*Frame, error) {
	eth, err := d.DecodeEthernet(raw)
	if err != nil {
		return nil, err
	}
	f := &Frame{Ethernet: eth}
	if eth.Class() == EtherIP {
		ip, err := d.DecodeIPv4(eth)
		if err != nil {
			return nil, err
		}
		f.IPv4 = &ip
	}
	return f, nil
}

// DecodeEthernet decodes with the default Decoder.
func DecodeEthernet(raw *models.RawFrame) (EthernetView, error) {
	return Decoder{}.DecodeEthernet(raw)
}

// DecodeIPv4 decodes with the default Decoder.
func DecodeIPv4(eth EthernetView) (IPv4View, error) {
	return Decoder{}.DecodeIPv4(eth)
}

// Decode decodes with the default Decoder.
func Decode(raw *models.RawFrame) (*Frame, error) {
	return Decoder{}.Decode(raw)
}

func truncated(layer string, need, have int) error {
	return fmt.Errorf("%w: %s header needs %d bytes, have %d", ErrTruncatedFrame, layer, need, have)
}
