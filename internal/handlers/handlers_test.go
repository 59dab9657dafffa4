package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"netgazer/internal/adapter"
	"netgazer/internal/capture/capturetest"
	"netgazer/internal/engine"
	"netgazer/internal/models"
	"netgazer/internal/parser"
)

func newServer(t *testing.T, d *capturetest.Driver) (*httptest.Server, *engine.Engine) {
	t.Helper()
	reg, err := adapter.New(d)
	require.NoError(t, err)
	t.Cleanup(reg.Dispose)

	logger := zap.NewNop()
	eng := engine.New(reg, parser.Decoder{}, 0, logger)
	t.Cleanup(eng.StopCapture)

	mux := http.NewServeMux()
	RegisterRoutes(mux, eng, logger)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, eng
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg := models.WSMessage{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		msg.Payload = raw
	}
	require.NoError(t, conn.WriteJSON(msg))
}

func recv(t *testing.T, conn *websocket.Conn) models.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg models.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketInterfaces(t *testing.T) {
	srv, _ := newServer(t, capturetest.NewDriver("eth0", "lo"))
	conn := dial(t, srv)

	send(t, conn, "get_interfaces", nil)
	msg := recv(t, conn)
	require.Equal(t, "interfaces", msg.Type)

	var ifaces []models.InterfaceInfo
	require.NoError(t, json.Unmarshal(msg.Payload, &ifaces))
	require.Len(t, ifaces, 2)
	assert.Equal(t, "eth0", ifaces[0].Name)
	assert.Equal(t, 1, ifaces[1].Index)
}

func TestWebSocketCapture(t *testing.T) {
	d := capturetest.NewDriver("eth0")
	d.EOF = true
	d.Scripts["eth0"] = []capturetest.Step{
		capturetest.Frame(capturetest.IPv4Frame("10.1.1.1", "10.1.1.2", layers.IPProtocolICMPv4, nil)),
	}
	srv, eng := newServer(t, d)
	conn := dial(t, srv)

	// The client is registered once the handler runs; a round trip proves it.
	send(t, conn, "get_stats", nil)
	assert.Equal(t, "stats", recv(t, conn).Type)

	send(t, conn, "start_capture", models.StartCaptureRequest{Interface: "eth0"})
	assert.Equal(t, engine.MsgCaptureStarted, recv(t, conn).Type)

	msg := recv(t, conn)
	require.Equal(t, engine.MsgFrame, msg.Type)
	var info models.FrameInfo
	require.NoError(t, json.Unmarshal(msg.Payload, &info))
	require.NotNil(t, info.IPv4)
	assert.Equal(t, "ICMP", info.IPv4.Protocol)

	assert.Equal(t, engine.MsgCaptureFinished, recv(t, conn).Type)
	assert.False(t, eng.Capturing())

	send(t, conn, "get_flows", nil)
	msg = recv(t, conn)
	require.Equal(t, "flows", msg.Type)
	var flows []map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &flows))
	assert.Len(t, flows, 1)
}

func TestWebSocketErrors(t *testing.T) {
	srv, _ := newServer(t, capturetest.NewDriver("eth0"))
	conn := dial(t, srv)

	send(t, conn, "bogus", nil)
	msg := recv(t, conn)
	require.Equal(t, engine.MsgError, msg.Type)
	var p models.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Equal(t, "unknown command: bogus", p.Message)

	send(t, conn, "start_capture", models.StartCaptureRequest{Interface: "nope"})
	msg = recv(t, conn)
	require.Equal(t, engine.MsgError, msg.Type)
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Contains(t, p.Message, "capture failed")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg = recv(t, conn)
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Equal(t, "invalid message format", p.Message)
}

func upload(t *testing.T, url string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "trace.pcap")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestDecodeUpload(t *testing.T) {
	srv, _ := newServer(t, capturetest.NewDriver())

	path := filepath.Join(t.TempDir(), "trace.pcap")
	require.NoError(t, capturetest.WritePcap(path,
		capturetest.ARPFrame(),
		capturetest.IPv4Frame("172.16.0.1", "172.16.0.9", layers.IPProtocolIGMP, nil),
		[]byte{0x01},
	))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	resp := upload(t, srv.URL+"/api/decode", data)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out DecodeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out.Skipped)
	require.Len(t, out.Frames, 2)
	assert.Equal(t, "ARP", out.Frames[0].EtherType)
	assert.Equal(t, "IGMP", out.Frames[1].IPv4.Protocol)
	assert.Equal(t, "172.16.0.9", out.Frames[1].IPv4.DstAddr)
}

func TestDecodeUploadGarbage(t *testing.T) {
	srv, _ := newServer(t, capturetest.NewDriver())
	resp := upload(t, srv.URL+"/api/decode", []byte("definitely not a capture file"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadMethod(t *testing.T) {
	srv, _ := newServer(t, capturetest.NewDriver())
	resp, err := http.Get(srv.URL + "/api/upload")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestInterfacesEndpoint(t *testing.T) {
	srv, _ := newServer(t, capturetest.NewDriver("en0"))
	resp, err := http.Get(srv.URL + "/api/interfaces")
	require.NoError(t, err)
	defer resp.Body.Close()

	var ifaces []models.InterfaceInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ifaces))
	assert.Equal(t, []models.InterfaceInfo{{Index: 0, Name: "en0", Description: "scripted en0"}}, ifaces)
}
