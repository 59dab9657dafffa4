package parser

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket/layers"

	"netgazer/internal/models"
)

// EthernetHeaderLen is the size of an untagged Ethernet II header.
const EthernetHeaderLen = 14

// etherTypeRARP has no constant in gopacket/layers.
const etherTypeRARP layers.EthernetType = 0x8035

// EtherClass is the classification of an Ethernet frame's type field.
type EtherClass uint8

const (
	EtherOther EtherClass = iota
	EtherIP
	EtherARP
	EtherRARP
)

func (c EtherClass) String() string {
	switch c {
	case EtherIP:
		return "IP"
	case EtherARP:
		return "ARP"
	case EtherRARP:
		return "RARP"
	default:
		return "Other"
	}
}

// EthernetView is the Ethernet II header of a RawFrame. It slices into the
// frame's payload and copies nothing.
type EthernetView struct {
	raw       *models.RawFrame
	etherType uint16
	class     EtherClass
}

// Frame returns the underlying captured frame.
func (e EthernetView) Frame() *models.RawFrame { return e.raw }

// DstMAC returns the destination hardware address.
func (e EthernetView) DstMAC() net.HardwareAddr {
	return net.HardwareAddr(e.raw.Payload()[0:6])
}

// SrcMAC returns the source hardware address.
func (e EthernetView) SrcMAC() net.HardwareAddr {
	return net.HardwareAddr(e.raw.Payload()[6:12])
}

// EtherType returns the type field in network byte order.
func (e EthernetView) EtherType() uint16 { return e.etherType }

// Class returns the classification of the type field.
func (e EthernetView) Class() EtherClass { return e.class }

// Payload returns the bytes following the 14-byte header.
func (e EthernetView) Payload() []byte { return e.raw.Payload()[EthernetHeaderLen:] }

func classifyEtherType(v uint16, acceptSwapped bool) EtherClass {
	if c := etherClass(layers.EthernetType(v)); c != EtherOther || !acceptSwapped {
		return c
	}
	return etherClass(layers.EthernetType(v<<8 | v>>8))
}

func etherClass(t layers.EthernetType) EtherClass {
	switch t {
	case layers.EthernetTypeIPv4:
		return EtherIP
	case layers.EthernetTypeARP:
		return EtherARP
	case etherTypeRARP:
		return EtherRARP
	default:
		return EtherOther
	}
}

func readEtherType(b []byte) uint16 {
	return binary.BigEndian.Uint16(b[12:14])
}
