// Package console prints adapters and decoded frames as plain text
// listings.
package console

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"netgazer/internal/adapter"
	"netgazer/internal/parser"
)

const labelWidth = 20

// Printer writes listings to a terminal or any other writer. Styling is
// dropped when the writer is not a color terminal.
type Printer struct {
	w     io.Writer
	title lipgloss.Style
	label lipgloss.Style
	value lipgloss.Style
	dim   lipgloss.Style
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:     w,
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")),
		label: r.NewStyle().Width(labelWidth).Foreground(lipgloss.Color("240")),
		value: r.NewStyle(),
		dim:   r.NewStyle().Faint(true),
	}
}

// Adapters prints the numbered adapter list.
func (p *Printer) Adapters(handles []*adapter.Handle) {
	if len(handles) == 0 {
		fmt.Fprintln(p.w, "No adapter available.")
		return
	}
	fmt.Fprintln(p.w, p.title.Render("List of available adapters"))
	for _, h := range handles {
		desc := h.Description()
		if desc == "" {
			desc = "none"
		}
		fmt.Fprintf(p.w, "%4d: %20s: %s\n", h.Index(), h.Name(), p.dim.Render(desc))
	}
	fmt.Fprintln(p.w)
}

// Frame prints one decoded frame followed by a blank line.
func (p *Printer) Frame(f *parser.Frame) {
	raw := f.Raw()
	eth := f.Ethernet
	p.field("length:", fmt.Sprint(raw.OriginalLength()))
	p.field("Ethernet type:", fmt.Sprintf("%s (0x%04x)", eth.Class(), eth.EtherType()))
	p.field("Timestamp:", raw.Timestamp().Local().Format(parser.TimestampLayout))
	p.field("Source MAC:", eth.SrcMAC().String())
	p.field("Destination MAC:", eth.DstMAC().String())

	if ip := f.IPv4; ip != nil {
		p.field("IP header length:", fmt.Sprint(ip.HeaderLength()))
		p.field("IP total length:", fmt.Sprint(ip.TotalLength()))
		p.field("IP protocol type:", fmt.Sprintf("%s (%d)", ip.Protocol(), ip.ProtocolNumber()))
		p.field("IP Packet checksum:", fmt.Sprintf("0x%04x", ip.Checksum()))
		p.field("Source IP:", ip.SrcAddr().String())
		p.field("Destination IP:", ip.DstAddr().String())
	}
	fmt.Fprintln(p.w)
}

func (p *Printer) field(label, value string) {
	fmt.Fprintf(p.w, "%s%s\n", p.label.Render(label), p.value.Render(value))
}
