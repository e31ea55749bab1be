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
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, LevelFromString(in), in)
	}
	assert.Equal(t, slog.LevelError, LevelFromFlags("debug", true, true))
	assert.Equal(t, slog.LevelDebug, LevelFromFlags("warn", true, false))
	assert.Equal(t, slog.LevelWarn, LevelFromFlags("warn", false, false))
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo, "json")
	log.Debug("hidden")
	log.Info("digest built", "rows", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "digest built", rec["msg"])
	assert.EqualValues(t, 3, rec["rows"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, slog.LevelWarn, "").Warn("skipped rows", "n", 2)
	assert.Contains(t, buf.String(), "msg=\"skipped rows\" n=2")
	Discard().Error("nothing")
}
