package capturetest

import (
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var (
	srcMAC = net.HardwareAddr{0x00, 0x1b, 0x21, 0x3a, 0x4f, 0x01}
	dstMAC = net.HardwareAddr{0x00, 0x1b, 0x21, 0x3a, 0x4f, 0x02}
)

// IPv4Frame serializes an Ethernet/IPv4 frame with a valid header checksum.
func IPv4Frame(src, dst string, proto layers.IPProtocol, payload []byte) []byte {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, gopacket.Payload(payload)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// ARPFrame returns a minimal Ethernet frame carrying the ARP type.
func ARPFrame() []byte {
	b := make([]byte, 42)
	copy(b[0:6], dstMAC)
	copy(b[6:12], srcMAC)
	b[12], b[13] = 0x08, 0x06
	return b
}

// WritePcap writes frames to a pcap file at path, one second apart.
func WritePcap(path string, frames ...[]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return err
	}
	for i, data := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000+int64(i), 0),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := w.WritePacket(ci, data); err != nil {
			return err
		}
	}
	return nil
}
