package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("opened", zap.String("adapter", "eth0"))
	require.NoError(t, log.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "opened", entry["msg"])
	assert.Equal(t, "eth0", entry["adapter"])
	assert.Equal(t, "info", entry["level"])
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "debug", Output: &buf})
	require.NoError(t, err)

	log.Debug("decoded", zap.Int("frames", 3))
	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "decoded")
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netgazer.log")
	var buf bytes.Buffer
	log, err := New(Options{Level: "info", Format: "json", File: path, Output: &buf})
	require.NoError(t, err)

	log.Warn("buffer full")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "buffer full")
	assert.Contains(t, buf.String(), "buffer full")
}

func TestBadOptions(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Options{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
