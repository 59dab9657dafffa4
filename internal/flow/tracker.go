package flow

import (
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"

	"netgazer/internal/parser"
)

// FlowKey is a normalized address pair plus protocol. Both directions map
// to the same flow.
type FlowKey struct {
	Addr1    netip.Addr
	Addr2    netip.Addr
	Protocol uint8
}

func MakeFlowKey(src, dst netip.Addr, protocol uint8) FlowKey {
	// Normalize: smaller address first
	if src.Less(dst) || src == dst {
		return FlowKey{Addr1: src, Addr2: dst, Protocol: protocol}
	}
	return FlowKey{Addr1: dst, Addr2: src, Protocol: protocol}
}

// Flow holds statistics for one IPv4 conversation.
type Flow struct {
	ID          uint64 `json:"id"`
	SrcIP       string `json:"srcIp"`
	DstIP       string `json:"dstIp"`
	Protocol    string `json:"protocol"`
	PacketCount int    `json:"packetCount"`
	ByteCount   int64  `json:"byteCount"`
	FirstSeen   int64  `json:"firstSeen"` // unix ms
	LastSeen    int64  `json:"lastSeen"`  // unix ms
	FwdPackets  int    `json:"fwdPackets"`
	FwdBytes    int64  `json:"fwdBytes"`
	RevPackets  int    `json:"revPackets"`
	RevBytes    int64  `json:"revBytes"`

	src netip.Addr
}

// Tracker maintains the flow table.
type Tracker struct {
	mu       sync.Mutex
	flows    map[FlowKey]*Flow
	nextID   uint64
	maxFlows int
	idleTime time.Duration
	now      func() time.Time
}

// NewTracker creates a new flow tracker.
func NewTracker() *Tracker {
	return &Tracker{
		flows:    make(map[FlowKey]*Flow),
		maxFlows: 10000,
		idleTime: 5 * time.Minute,
		now:      time.Now,
	}
}

// TrackFrame records an IPv4 frame. Frames without an IPv4 header are
// ignored and yield a nil flow.
func (t *Tracker) TrackFrame(f *parser.Frame) (uint64, *Flow) {
	if f == nil || f.IPv4 == nil {
		return 0, nil
	}
	ip := f.IPv4
	return t.Track(ip.SrcAddr(), ip.DstAddr(), ip.ProtocolNumber(), ip.Protocol().String(), f.Raw().OriginalLength())
}

// Track records a packet in the flow table and returns the flow ID and a
// snapshot of the flow.
func (t *Tracker) Track(src, dst netip.Addr, proto uint8, protoName string, length int) (uint64, *Flow) {
	key := MakeFlowKey(src, dst, proto)
	now := t.now().UnixMilli()

	t.mu.Lock()
	defer t.mu.Unlock()

	f, exists := t.flows[key]
	if !exists {
		// Evict idle flows if at capacity
		if len(t.flows) >= t.maxFlows {
			t.evictIdle(now)
		}
		t.nextID++
		f = &Flow{
			ID:        t.nextID,
			SrcIP:     src.String(),
			DstIP:     dst.String(),
			Protocol:  protoName,
			FirstSeen: now,
			src:       src,
		}
		t.flows[key] = f
	}

	f.PacketCount++
	f.ByteCount += int64(length)
	f.LastSeen = now

	// Forward is the direction of the first frame seen.
	if src == f.src {
		f.FwdPackets++
		f.FwdBytes += int64(length)
	} else {
		f.RevPackets++
		f.RevBytes += int64(length)
	}

	cp := *f
	return f.ID, &cp
}

// GetFlows returns a snapshot of all active flows, busiest first.
func (t *Tracker) GetFlows() []*Flow {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]*Flow, 0, len(t.flows))
	for _, f := range t.flows {
		cp := *f
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ByteCount != result[j].ByteCount {
			return result[i].ByteCount > result[j].ByteCount
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Len returns the number of tracked flows.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.flows)
}

// Reset clears all flows.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flows = make(map[FlowKey]*Flow)
	t.nextID = 0
}

// evictIdle drops flows idle longer than idleTime. When none are idle the
// least recently seen flow goes, so the table never exceeds maxFlows.
func (t *Tracker) evictIdle(nowMs int64) {
	cutoff := nowMs - t.idleTime.Milliseconds()
	var (
		oldestKey FlowKey
		oldest    *Flow
	)
	for key, f := range t.flows {
		if f.LastSeen < cutoff {
			delete(t.flows, key)
			continue
		}
		if oldest == nil || f.LastSeen < oldest.LastSeen || (f.LastSeen == oldest.LastSeen && f.ID < oldest.ID) {
			oldestKey, oldest = key, f
		}
	}
	if len(t.flows) >= t.maxFlows && oldest != nil {
		delete(t.flows, oldestKey)
	}
}

// String returns a human-readable description of the flow.
func (f *Flow) String() string {
	return fmt.Sprintf("Flow#%d %s <-> %s [%s] pkts=%d bytes=%d",
		f.ID, f.SrcIP, f.DstIP, f.Protocol, f.PacketCount, f.ByteCount)
}
