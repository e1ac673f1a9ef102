package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, int(slog.LevelInfo), "text")

	l.Info("Server: started", "addr", ":8080")
	l.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, `msg="Server: started"`)
	assert.Contains(t, out, "addr=:8080")
	assert.NotContains(t, out, "hidden")
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, int(slog.LevelDebug), "JSON")

	l.With("component", "authn").Debug("Authenticate: no credential supplied")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "authn", record["component"])
	assert.Equal(t, "DEBUG", record["level"])
}
