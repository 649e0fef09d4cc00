package utils

import (
	"encoding/json"
	"io"
)

const (
	jsonIndentPrefixConstant = ""
	jsonIndentValueConstant  = "  "
)

// WriteJSON writes value as indented JSON followed by a newline. json.RawMessage values are re-indented as-is.
func WriteJSON(writer io.Writer, value any) error {
	encodedValue, encodeError := json.MarshalIndent(value, jsonIndentPrefixConstant, jsonIndentValueConstant)
	if encodeError != nil {
		return encodeError
	}
	encodedValue = append(encodedValue, '\n')
	_, writeError := writer.Write(encodedValue)
	return writeError
}
