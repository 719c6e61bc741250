package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer, level LogLevel) *Logger {
	return NewLogger(&Config{
		Level:            level,
		Format:           JSONFormat,
		Output:           buf,
		Component:        "test",
		EnableSanitizing: true,
	})
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseLogLevel("loud")
	assert.Error(t, err)
}

func TestLoggerLevelsAndComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, InfoLevel)

	logger.Debug("hidden")
	logger.Info("shown", map[string]interface{}{"resource_id": "r1"})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
	assert.Equal(t, "test", lines[0]["component"])
	assert.Equal(t, "r1", lines[0]["resource_id"])

	assert.False(t, logger.IsEnabled(DebugLevel))
	logger.SetLevel(DebugLevel)
	assert.True(t, logger.IsEnabled(DebugLevel))
}

func TestFieldLoggerChaining(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, DebugLevel).WithComponent("vault")

	logger.WithField("user_id", "u1").WithField("resource_id", "r1").WithError(errors.New("boom")).Warn("denied")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "vault", lines[0]["component"])
	assert.Equal(t, "u1", lines[0]["user_id"])
	assert.Equal(t, "r1", lines[0]["resource_id"])
	assert.Equal(t, "boom", lines[0]["error"])
}

func TestSanitizing(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, DebugLevel)

	logger.WithFields(map[string]interface{}{
		"master_key": "supersecret",
		"salt":       []byte{1, 2, 3},
		"object_key": "objects/abc",
	}).Info("loaded master_key=supersecret")

	out := buf.String()
	assert.NotContains(t, out, "supersecret")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, redacted, lines[0]["master_key"])
	assert.Equal(t, redacted, lines[0]["salt"])
	assert.Equal(t, redacted, lines[0]["object_key"])
}

func TestIsSensitiveFieldName(t *testing.T) {
	assert.True(t, IsSensitiveFieldName("password"))
	assert.True(t, IsSensitiveFieldName("sealed_secret"))
	assert.False(t, IsSensitiveFieldName("resource_id"))
	assert.False(t, IsSensitiveFieldName("content_type"))
}
