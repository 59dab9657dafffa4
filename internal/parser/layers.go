package parser

import (
	"fmt"

	"netgazer/internal/models"
)

func extractLayers(f *Frame) []models.LayerDetail {
	result := []models.LayerDetail{parseEthernet(f.Ethernet)}
	if f.IPv4 != nil {
		result = append(result, parseIPv4(*f.IPv4))
	}
	return result
}

func parseEthernet(eth EthernetView) models.LayerDetail {
	return models.LayerDetail{
		Name: "Ethernet II",
		Fields: []models.LayerField{
			{Name: "Source", Value: eth.SrcMAC().String()},
			{Name: "Destination", Value: eth.DstMAC().String()},
			{Name: "Type", Value: fmt.Sprintf("%s (0x%04x)", eth.Class(), eth.EtherType())},
		},
	}
}

func parseIPv4(ip IPv4View) models.LayerDetail {
	return models.LayerDetail{
		Name: "IPv4",
		Fields: []models.LayerField{
			{Name: "Version", Value: fmt.Sprintf("%d", ip.Version())},
			{Name: "Header Length", Value: fmt.Sprintf("%d bytes", int(ip.HeaderLength())*4)},
			{Name: "Type of Service", Value: fmt.Sprintf("0x%02x", ip.TOS())},
			{Name: "Total Length", Value: fmt.Sprintf("%d", ip.TotalLength())},
			{Name: "Identification", Value: fmt.Sprintf("0x%04x (%d)", ip.ID(), ip.ID())},
			{Name: "Flags", Value: fmt.Sprintf("0x%x", ip.Flags())},
			{Name: "Fragment Offset", Value: fmt.Sprintf("%d", ip.FragmentOffset())},
			{Name: "TTL", Value: fmt.Sprintf("%d", ip.TTL())},
			{Name: "Protocol", Value: fmt.Sprintf("%s (%d)", ip.Protocol(), ip.ProtocolNumber())},
			{Name: "Checksum", Value: fmt.Sprintf("0x%04x [%s]", ip.Checksum(), boolToStr(ip.ChecksumValid(), "valid", "invalid"))},
			{Name: "Source", Value: ip.SrcAddr().String()},
			{Name: "Destination", Value: ip.DstAddr().String()},
		},
	}
}

func boolToStr(b bool, t, f string) string {
	if b {
		return t
	}
	return f
}
