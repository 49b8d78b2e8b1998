package telemetry

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_InfoLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, false)

	logger.Debug().Msg("hidden")
	logger.Info().Str("stage", "embed").Msg("visible")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "visible", entry["message"])
	assert.Equal(t, "embed", entry["stage"])
	assert.Equal(t, serviceName, entry["service"])
	assert.Contains(t, entry, "time")
}

func TestNewLogger_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, true)

	logger.Debug().Msg("shown")

	assert.Contains(t, buf.String(), "shown")
}
