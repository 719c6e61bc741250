package util

import (
	"encoding/json"
	"io"
)

// JSONOutput provides structured output for CLI operations
type JSONOutput struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// PrintJSON writes data to w as indented JSON
func PrintJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// PrintJSONError writes an error envelope to w
func PrintJSONError(w io.Writer, err error) error {
	return PrintJSON(w, JSONOutput{Success: false, Error: err.Error()})
}

// PrintJSONSuccess writes a success envelope around data to w
func PrintJSONSuccess(w io.Writer, data interface{}) error {
	return PrintJSON(w, JSONOutput{Success: true, Data: data})
}
