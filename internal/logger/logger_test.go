package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriter_Formats(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, int(slog.LevelInfo), "json").Info("Worker: sync loop started", "interval", "2s")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "Worker: sync loop started", rec["msg"])
	assert.Equal(t, "2s", rec["interval"])

	buf.Reset()
	NewWriter(&buf, int(slog.LevelInfo), "text").Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestNewWriter_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, int(slog.LevelWarn), "text")
	l.Info("dropped")
	l.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, 0, "text").With("instance", "node-1").Info("started")
	assert.Contains(t, buf.String(), "instance=node-1")
}
