package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const indent = "  "

// FormatJSON pretty-prints JSON with two-space indentation, keeping key order.
func FormatJSON(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyInput
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(input), "", indent); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return buf.String(), nil
}

// MinifyJSON removes insignificant whitespace from JSON.
func MinifyJSON(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyInput
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(input)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return buf.String(), nil
}
