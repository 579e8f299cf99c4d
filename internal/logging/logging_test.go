package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelError, levelFromString("ERROR"))
	assert.Equal(t, slog.LevelWarn, levelFromString(" warning "))
	assert.Equal(t, slog.LevelInfo, levelFromString("info"))
	assert.Equal(t, slog.LevelDebug, levelFromString(""))
}

func TestNewWithWriterJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "json", "info")
	logger.Debug("hidden")
	logger.With("component", "state-machine").Info("step", "date", "2024-03-01")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "step", line["msg"])
	assert.Equal(t, "state-machine", line["component"])
	assert.Equal(t, "2024-03-01", line["date"])
}
