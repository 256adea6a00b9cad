package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesComponentJSON(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New("debug", &buf), "engine")
	log.Debug().Int("w", 80).Msg("surface ready")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "engine", line["component"])
	assert.Equal(t, "culturemap", line["service"])
	assert.Equal(t, "surface ready", line["message"])
	assert.Contains(t, line, "time")
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New("warn", &buf)
	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())
	log.Warn().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestNilWriterDiscards(t *testing.T) {
	log := New("debug", nil)
	log.Error().Msg("nothing")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		" WARN ":   zerolog.WarnLevel,
		"trace":    zerolog.TraceLevel,
		"disabled": zerolog.Disabled,
		"":         zerolog.InfoLevel,
		"loud":     zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}
