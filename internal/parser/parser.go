package parser

import (
	"fmt"
	"strings"
	"time"

	"netgazer/internal/models"
)

// TimestampLayout formats capture times with microsecond precision.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Parse flattens a decoded frame into a FrameInfo.
func Parse(f *Frame, number int, startTime time.Time) models.FrameInfo {
	raw := f.Raw()
	info := models.FrameInfo{
		Number:         number,
		Length:         raw.OriginalLength(),
		CapturedLength: raw.CapturedLength(),
		EtherType:      f.Ethernet.Class().String(),
		SrcMAC:         f.Ethernet.SrcMAC().String(),
		DstMAC:         f.Ethernet.DstMAC().String(),
	}

	// Timestamp relative to start
	ts := raw.Timestamp()
	if startTime.IsZero() {
		info.Timestamp = ts.Local().Format(TimestampLayout)
	} else {
		elapsed := ts.Sub(startTime)
		info.Timestamp = fmt.Sprintf("%.6f", elapsed.Seconds())
	}

	if f.IPv4 != nil {
		ip := f.IPv4
		info.IPv4 = &models.IPv4Info{
			HeaderLength: int(ip.HeaderLength()),
			TotalLength:  int(ip.TotalLength()),
			Protocol:     ip.Protocol().String(),
			Checksum:     ip.Checksum(),
			SrcAddr:      ip.SrcAddr().String(),
			DstAddr:      ip.DstAddr().String(),
		}
	}

	info.Layers = extractLayers(f)

	if data := raw.Payload(); len(data) > 0 {
		info.HexDump = formatHexDump(data)
	}

	return info
}

func formatHexDump(data []byte) string {
	var sb strings.Builder
	for offset := 0; offset < len(data); offset += 16 {
		// Offset
		sb.WriteString(fmt.Sprintf("%04x  ", offset))

		// Hex bytes
		end := offset + 16
		if end > len(data) {
			end = len(data)
		}
		for i := offset; i < offset+16; i++ {
			if i < end {
				sb.WriteString(fmt.Sprintf("%02x ", data[i]))
			} else {
				sb.WriteString("   ")
			}
			if i == offset+7 {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(" |")

		// ASCII
		for i := offset; i < end; i++ {
			b := data[i]
			if b >= 0x20 && b <= 0x7e {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('|')
		sb.WriteByte('\n')
	}
	return sb.String()
}
