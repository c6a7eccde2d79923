package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewWritesJSONToNonTerminal(t *testing.T) {
	t.Setenv(EnvLevel, "")

	var buf bytes.Buffer
	log := New(Config{Level: "info"}, &buf)
	log.Info().Str("component", "test").Msg("hello")
	log.Debug().Msg("dropped")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "test", entry["component"])
	assert.NotContains(t, buf.String(), "dropped")
}

func TestEnvOverridesLevel(t *testing.T) {
	t.Setenv(EnvLevel, "debug")

	var buf bytes.Buffer
	log := New(Config{Level: "error"}, &buf)
	log.Debug().Msg("visible")

	assert.Contains(t, buf.String(), "visible")
}
