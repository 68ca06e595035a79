package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json")
	l.Info().Str("delivery_id", "dlv_1").Msg("webhook delivered")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "webhook delivered", entry["message"])
	assert.Equal(t, "dlv_1", entry["delivery_id"])
	assert.Contains(t, entry, "time")
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "text")
	l.Info().Msg("server starting")

	assert.Contains(t, buf.String(), "server starting")
	assert.False(t, json.Valid(buf.Bytes()))
}
