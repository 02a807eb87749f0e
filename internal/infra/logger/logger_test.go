package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("prod", &buf)
	log.Debug("hidden")
	log.Info("operation committed", "operation", "convert", "lot_id", "lot-1")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "operation committed", entry["msg"])
	assert.Equal(t, "convert", entry["operation"])
	assert.Equal(t, "INFO", entry["level"])

	buf.Reset()
	NewWithWriter("dev", &buf).Debug("shown")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
