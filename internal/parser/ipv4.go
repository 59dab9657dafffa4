package parser

import (
	"encoding/binary"
	"net/netip"

	"github.com/google/gopacket/layers"
)

// IPv4MinHeaderLen is the size of an IPv4 header without options.
const IPv4MinHeaderLen = 20

// IPClass is the classification of the IPv4 protocol field.
type IPClass uint8

const (
	IPOther IPClass = iota
	IPTCP
	IPUDP
	IPICMP
	IPIGMP
)

func (c IPClass) String() string {
	switch c {
	case IPTCP:
		return "TCP"
	case IPUDP:
		return "UDP"
	case IPICMP:
		return "ICMP"
	case IPIGMP:
		return "IGMP"
	default:
		return "Other"
	}
}

func classifyProtocol(p uint8) IPClass {
	switch layers.IPProtocol(p) {
	case layers.IPProtocolTCP:
		return IPTCP
	case layers.IPProtocolUDP:
		return IPUDP
	case layers.IPProtocolICMPv4:
		return IPICMP
	case layers.IPProtocolIGMP:
		return IPIGMP
	default:
		return IPOther
	}
}

// IPv4View is the IPv4 header carried by an Ethernet frame classified as IP.
type IPv4View struct {
	b []byte // Ethernet payload, at least IPv4MinHeaderLen bytes
}

// Version returns the version nibble.
func (v IPv4View) Version() uint8 { return v.b[0] >> 4 }

// HeaderLength returns the header length in 32-bit words.
func (v IPv4View) HeaderLength() uint8 { return v.b[0] & 0x0f }

// TOS returns the type-of-service byte.
func (v IPv4View) TOS() uint8 { return v.b[1] }

// TotalLength returns the datagram length declared in the header.
func (v IPv4View) TotalLength() uint16 { return binary.BigEndian.Uint16(v.b[2:4]) }

// ID returns the identification field.
func (v IPv4View) ID() uint16 { return binary.BigEndian.Uint16(v.b[4:6]) }

// Flags returns the three flag bits.
func (v IPv4View) Flags() uint8 { return v.b[6] >> 5 }

// FragmentOffset returns the fragment offset in 8-byte units.
func (v IPv4View) FragmentOffset() uint16 { return binary.BigEndian.Uint16(v.b[6:8]) & 0x1fff }

// TTL returns the time-to-live.
func (v IPv4View) TTL() uint8 { return v.b[8] }

// ProtocolNumber returns the raw protocol field.
func (v IPv4View) ProtocolNumber() uint8 { return v.b[9] }

// Protocol returns the classified protocol field.
func (v IPv4View) Protocol() IPClass { return classifyProtocol(v.b[9]) }

// Checksum returns the header checksum as carried on the wire.
func (v IPv4View) Checksum() uint16 { return binary.BigEndian.Uint16(v.b[10:12]) }

// SrcAddr returns the source address.
func (v IPv4View) SrcAddr() netip.Addr { return netip.AddrFrom4([4]byte(v.b[12:16])) }

// DstAddr returns the destination address.
func (v IPv4View) DstAddr() netip.Addr { return netip.AddrFrom4([4]byte(v.b[16:20])) }

// ChecksumValid reports whether the header checksum verifies. It returns
// false when the declared header is shorter than the minimum or was not
// fully captured.
func (v IPv4View) ChecksumValid() bool {
	n := int(v.HeaderLength()) * 4
	if n < IPv4MinHeaderLen || n > len(v.b) {
		return false
	}
	var sum uint32
	for i := 0; i < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(v.b[i : i+2]))
	}
	for sum > 0xffff {
		sum = sum>>16 + sum&0xffff
	}
	return uint16(sum) == 0xffff
}

// Payload returns the bytes after the declared header, bounded by the total
// length and by what was captured. It is empty when the header fields are
// inconsistent.
func (v IPv4View) Payload() []byte {
	start := int(v.HeaderLength()) * 4
	end := int(v.TotalLength())
	if end > len(v.b) {
		end = len(v.b)
	}
	if start < IPv4MinHeaderLen || start > end {
		return nil
	}
	return v.b[start:end]
}
