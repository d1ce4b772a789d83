package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", "json", &buf)

	logger.Debug("hidden")
	logger.Info("registration upserted", "registration_id", "abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "registration upserted", line["msg"])
	assert.Equal(t, "abc", line["registration_id"])
}

func TestNew_TextFallback(t *testing.T) {
	var buf bytes.Buffer
	logger := New("debug", "pretty", &buf)

	logger.Debug("poll attempt", "attempt", 2)

	assert.Contains(t, buf.String(), "msg=\"poll attempt\"")
	assert.Contains(t, buf.String(), "attempt=2")
}
