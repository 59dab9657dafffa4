package engine

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netgazer/internal/adapter"
	"netgazer/internal/capture/capturetest"
	"netgazer/internal/models"
	"netgazer/internal/parser"
)

type fakeClient struct {
	msgs chan models.WSMessage
}

func newFakeClient() *fakeClient {
	return &fakeClient{msgs: make(chan models.WSMessage, 1024)}
}

func (c *fakeClient) SendMessage(msg models.WSMessage) error {
	c.msgs <- msg
	return nil
}

func (c *fakeClient) next(t *testing.T) models.WSMessage {
	t.Helper()
	select {
	case msg := <-c.msgs:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
		return models.WSMessage{}
	}
}

func newEngine(t *testing.T, d *capturetest.Driver) (*Engine, *fakeClient) {
	t.Helper()
	reg, err := adapter.New(d)
	require.NoError(t, err)
	t.Cleanup(reg.Dispose)

	e := New(reg, parser.Decoder{}, 0, nil)
	t.Cleanup(e.StopCapture)
	c := newFakeClient()
	e.RegisterClient(c)
	return e, c
}

func TestGetInterfaces(t *testing.T) {
	e, _ := newEngine(t, capturetest.NewDriver("eth0", "lo"))
	ifaces := e.GetInterfaces()
	require.Len(t, ifaces, 2)
	assert.Equal(t, models.InterfaceInfo{Index: 1, Name: "lo", Description: "scripted lo"}, ifaces[1])
}

func TestCaptureUntilEndOfStream(t *testing.T) {
	d := capturetest.NewDriver("eth0")
	d.EOF = true
	d.Scripts["eth0"] = []capturetest.Step{
		capturetest.Frame(capturetest.IPv4Frame("10.0.0.1", "10.0.0.2", layers.IPProtocolUDP, []byte("hello"))),
		capturetest.Timeout(),
		capturetest.Frame([]byte{1, 2, 3}),
		capturetest.Frame(capturetest.ARPFrame()),
	}
	e, c := newEngine(t, d)

	require.NoError(t, e.StartCapture(models.StartCaptureRequest{Interface: "eth0"}))
	assert.Equal(t, MsgCaptureStarted, c.next(t).Type)

	msg := c.next(t)
	require.Equal(t, MsgFrame, msg.Type)
	var info models.FrameInfo
	require.NoError(t, json.Unmarshal(msg.Payload, &info))
	assert.Equal(t, 1, info.Number)
	assert.Equal(t, "IP", info.EtherType)
	require.NotNil(t, info.IPv4)
	assert.Equal(t, "10.0.0.1", info.IPv4.SrcAddr)
	assert.Equal(t, "UDP", info.IPv4.Protocol)

	msg = c.next(t)
	require.Equal(t, MsgFrame, msg.Type)
	require.NoError(t, json.Unmarshal(msg.Payload, &info))
	assert.Equal(t, 2, info.Number)
	assert.Equal(t, "ARP", info.EtherType)

	assert.Equal(t, MsgCaptureFinished, c.next(t).Type)
	assert.False(t, e.Capturing())
	assert.Equal(t, 0, d.Live("eth0"))

	st := e.Stats()
	assert.Equal(t, "eth0", st.InterfaceName)
	assert.Equal(t, 2, st.Frames)
	assert.Equal(t, 1, st.Truncated)
	assert.Equal(t, 1, st.Timeouts)

	flows := e.Flows()
	require.Len(t, flows, 1)
	assert.Equal(t, 1, flows[0].PacketCount)
}

func TestStartStop(t *testing.T) {
	d := capturetest.NewDriver("eth0", "lo")
	e, c := newEngine(t, d)

	idx := 1
	off := false
	require.NoError(t, e.StartCapture(models.StartCaptureRequest{Index: &idx, Promiscuous: &off, TimeoutMs: 20}))
	assert.Equal(t, MsgCaptureStarted, c.next(t).Type)
	assert.True(t, e.Capturing())
	assert.Equal(t, 1, d.Live("lo"))

	require.Len(t, d.Opened, 1)
	assert.False(t, d.Opened[0].Opts.Promiscuous)
	assert.Equal(t, 20*time.Millisecond, d.Opened[0].Opts.Timeout)

	err := e.StartCapture(models.StartCaptureRequest{Interface: "eth0"})
	assert.ErrorContains(t, err, "already running")

	e.StopCapture()
	assert.Equal(t, MsgCaptureStopped, c.next(t).Type)
	assert.False(t, e.Capturing())
	assert.Equal(t, 0, d.Live("lo"))

	// Stopping twice is harmless.
	e.StopCapture()
}

func TestStartCaptureSelection(t *testing.T) {
	e, _ := newEngine(t, capturetest.NewDriver("eth0"))

	assert.Error(t, e.StartCapture(models.StartCaptureRequest{}))
	assert.ErrorIs(t, e.StartCapture(models.StartCaptureRequest{Interface: "wlan9"}), adapter.ErrNotFound)

	idx := 3
	assert.ErrorIs(t, e.StartCapture(models.StartCaptureRequest{Index: &idx}), adapter.ErrIndexOutOfRange)
	assert.False(t, e.Capturing())
}

func TestCaptureError(t *testing.T) {
	d := capturetest.NewDriver("eth0")
	d.Scripts["eth0"] = []capturetest.Step{capturetest.Fail("device went away")}
	e, c := newEngine(t, d)

	require.NoError(t, e.StartCapture(models.StartCaptureRequest{Interface: "eth0"}))
	assert.Equal(t, MsgCaptureStarted, c.next(t).Type)

	msg := c.next(t)
	require.Equal(t, MsgError, msg.Type)
	var p models.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Contains(t, p.Message, "device went away")

	assert.Equal(t, MsgCaptureFinished, c.next(t).Type)
	assert.False(t, e.Capturing())
}

func TestRefreshStopsCapture(t *testing.T) {
	d := capturetest.NewDriver("eth0")
	e, c := newEngine(t, d)

	require.NoError(t, e.StartCapture(models.StartCaptureRequest{Interface: "eth0"}))
	c.next(t)

	require.NoError(t, e.Refresh())
	assert.False(t, e.Capturing())
	assert.Equal(t, 0, d.Live("eth0"))
	assert.Len(t, e.GetInterfaces(), 1)
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.pcap")
	require.NoError(t, capturetest.WritePcap(path,
		capturetest.IPv4Frame("192.168.1.1", "192.168.1.2", layers.IPProtocolTCP, []byte("abc")),
		[]byte{0xff, 0xff},
		capturetest.ARPFrame(),
	))

	e, _ := newEngine(t, capturetest.NewDriver())
	frames, skipped, err := e.DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, frames, 2)
	assert.Equal(t, "TCP", frames[0].IPv4.Protocol)
	assert.Equal(t, "0.000000", frames[0].Timestamp)
	assert.Equal(t, "ARP", frames[1].EtherType)
	assert.Equal(t, "2.000000", frames[1].Timestamp)
}

func TestLoadPcapFileBroadcasts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.pcap")
	require.NoError(t, capturetest.WritePcap(path, capturetest.ARPFrame(), capturetest.ARPFrame()))

	e, c := newEngine(t, capturetest.NewDriver())
	require.NoError(t, e.LoadPcapFile(path))
	assert.Equal(t, MsgFrame, c.next(t).Type)
	assert.Equal(t, MsgFrame, c.next(t).Type)
}

func TestDecodeFileMissing(t *testing.T) {
	e, _ := newEngine(t, capturetest.NewDriver())
	_, _, err := e.DecodeFile(filepath.Join(t.TempDir(), "missing.pcap"))
	assert.Error(t, err)
}

func TestConcurrentStartKeepsWinner(t *testing.T) {
	for i := 0; i < 20; i++ {
		d := capturetest.NewDriver("eth0")
		d.OpenDelay = time.Millisecond
		e, _ := newEngine(t, d)

		errs := make(chan error, 2)
		for j := 0; j < 2; j++ {
			go func() {
				errs <- e.StartCapture(models.StartCaptureRequest{Interface: "eth0", TimeoutMs: 5})
			}()
		}
		var failed int
		for j := 0; j < 2; j++ {
			if err := <-errs; err != nil {
				assert.ErrorContains(t, err, "already running")
				failed++
			}
		}
		require.Equal(t, 1, failed)

		time.Sleep(10 * time.Millisecond)
		assert.True(t, e.Capturing())
		assert.Equal(t, 1, d.Live("eth0"))
		assert.Equal(t, 1, d.Opens("eth0"))
		e.StopCapture()
	}
}

func TestStartAfterFailedStart(t *testing.T) {
	d := capturetest.NewDriver("eth0")
	d.OpenErr["eth0"] = assert.AnError
	e, _ := newEngine(t, d)

	require.ErrorIs(t, e.StartCapture(models.StartCaptureRequest{Interface: "eth0"}), adapter.ErrOpen)

	delete(d.OpenErr, "eth0")
	require.NoError(t, e.StartCapture(models.StartCaptureRequest{Interface: "eth0"}))
	assert.True(t, e.Capturing())
}

func TestStatsReportDriverCounters(t *testing.T) {
	d := capturetest.NewDriver("eth0")
	d.Dropped = 7
	d.Scripts["eth0"] = []capturetest.Step{capturetest.Frame(capturetest.ARPFrame())}
	e, c := newEngine(t, d)

	require.NoError(t, e.StartCapture(models.StartCaptureRequest{Interface: "eth0"}))
	assert.Equal(t, MsgCaptureStarted, c.next(t).Type)
	assert.Equal(t, MsgFrame, c.next(t).Type)

	st := e.Stats()
	assert.Equal(t, 1, st.Frames)
	assert.Equal(t, 1, st.Received)
	assert.Equal(t, 7, st.Dropped)
}

func TestInterfacesCarryAddresses(t *testing.T) {
	d := capturetest.NewDriver("eth0")
	d.Devs[0].Addresses = []string{"192.168.1.10", "fe80::1"}
	e, _ := newEngine(t, d)

	ifaces := e.GetInterfaces()
	require.Len(t, ifaces, 1)
	assert.Equal(t, []string{"192.168.1.10", "fe80::1"}, ifaces[0].Addresses)
}

func TestDecodeFileHonoursSnapLen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.pcap")
	frame := capturetest.IPv4Frame("10.0.0.1", "10.0.0.2", layers.IPProtocolUDP, make([]byte, 60))
	require.NoError(t, capturetest.WritePcap(path, frame))

	reg, err := adapter.New(capturetest.NewDriver())
	require.NoError(t, err)
	t.Cleanup(reg.Dispose)

	frames, skipped, err := New(reg, parser.Decoder{}, 40, nil).DecodeFile(path)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, frames, 1)
	assert.Equal(t, 40, frames[0].CapturedLength)
	assert.Equal(t, len(frame), frames[0].Length)
	require.NotNil(t, frames[0].IPv4)
	assert.Equal(t, "UDP", frames[0].IPv4.Protocol)
}
