package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledgerbook/internal/infrastructure/config"
)

func TestMavenHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{Level: "info"}).With("system", "importer")

	logger.Info("batch committed", "inserted", 3, "file", "bank statement.csv")

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "[INFO] [importer] ["), line)
	assert.Contains(t, line, " batch committed inserted=3 ")
	assert.Contains(t, line, `file="bank statement.csv"`)
	assert.NotContains(t, line, "system=")
	assert.NotContains(t, line, "\033[", "buffers are not terminals")
}

func TestMavenHandler_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{Level: "warn"})

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[WARN]")
}

func TestMavenHandler_GroupsAndErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{Level: "debug"})

	logger.WithGroup("match").Debug("duplicate", "tier", "payment_id", slog.Group("row", "id", 7))
	logger.Error("lookup failed", "error", errors.New("db locked"))

	out := buf.String()
	assert.Contains(t, out, "match.tier=payment_id")
	assert.Contains(t, out, "match.row.id=7")
	assert.Contains(t, out, `error="db locked"`)
}

func TestNewLoggerTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{Level: "info", Format: "json"})

	logger.Info("hello", "batch_id", "abc")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "abc", rec["batch_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
