package util

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"10B", 10},
		{"1KB", 1024},
		{"256MB", 256 << 20},
		{"1.5 GiB", 3 << 29},
		{" 2tb ", 2 << 40},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "MB", "ten", "-5", "-1KB"} {
		_, err := ParseSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "100 B", FormatSize(100))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "256.0 MB", FormatSize(256<<20))
}

func TestErrorSuggestions(t *testing.T) {
	denied := fmt.Errorf("grant: %w", vaulterr.ErrAccessDenied)
	assert.Contains(t, GetErrorSuggestion(denied), "--admin")

	wrapped := WrapErrorWithSuggestion(errors.New("boom"), "try again")
	assert.Equal(t, "try again", GetErrorSuggestion(fmt.Errorf("outer: %w", wrapped)))
	assert.Nil(t, WrapErrorWithSuggestion(nil, "unused"))

	assert.Equal(t, "", GetErrorSuggestion(errors.New("something odd")))
	assert.Equal(t, "Error: something odd", FormatError(errors.New("something odd")))
	assert.Contains(t, FormatError(denied), "Suggestion:")
}

func TestPrintJSONSuccess(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSONSuccess(&buf, map[string]int{"deleted": 3}))

	var out struct {
		Success bool           `json:"success"`
		Data    map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, 3, out.Data["deleted"])

	buf.Reset()
	require.NoError(t, PrintJSONError(&buf, errors.New("nope")))
	assert.Contains(t, buf.String(), `"error": "nope"`)
}
