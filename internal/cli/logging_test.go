package cli

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinara-hw/stabilizer-go/pkg/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewLoggerJSON(t *testing.T) {
	t.Setenv("ENV", "production")
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("visible", "app", "dual-iir")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"visible"`)
	assert.Contains(t, out, `"app":"dual-iir"`)
	assert.Contains(t, out, `"ts":`)
}

func TestNewLoggerConsole(t *testing.T) {
	t.Setenv("ENV", "development")
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelInfo).Info("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.NotContains(t, buf.String(), `"msg"`)
}

func TestProtocolLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cbor")
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	plog, closeFn, err := ProtocolLogger(logger, path)
	require.NoError(t, err)

	plog.Log(log.Event{
		Timestamp: time.Now(),
		ClientID:  "dual-iir-tlm",
		Layer:     log.LayerPubSub,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			NewState: "CONNECTED",
		},
	})
	require.NoError(t, closeFn())
	assert.Contains(t, buf.String(), "dual-iir-tlm")

	r, err := log.NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	event, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "dual-iir-tlm", event.ClientID)
}

func TestProtocolLoggerWithoutFile(t *testing.T) {
	plog, closeFn, err := ProtocolLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), "")
	require.NoError(t, err)
	plog.Log(log.Event{})
	assert.NoError(t, closeFn())
}
