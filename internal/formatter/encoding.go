package formatter

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// EncodeBase64 encodes the UTF-8 bytes of input with standard padding.
func EncodeBase64(input string) (string, error) {
	if input == "" {
		return "", ErrEmptyInput
	}
	return base64.StdEncoding.EncodeToString([]byte(input)), nil
}

// DecodeBase64 decodes standard or URL-safe Base64, padded or not.
func DecodeBase64(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyInput
	}

	normalized := strings.NewReplacer("-", "+", "_", "/").Replace(input)
	normalized = strings.TrimRight(normalized, "=")

	out, err := base64.RawStdEncoding.DecodeString(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: malformed base64", ErrInvalidInput)
	}
	if !utf8.Valid(out) {
		return "", fmt.Errorf("%w: decoded data is not UTF-8 text", ErrInvalidInput)
	}
	return string(out), nil
}

// componentUnescaper restores the characters a URI component leaves unescaped.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeURL percent-encodes input as a URI component.
// Only A-Z a-z 0-9 and - _ . ! ~ * ' ( ) are left as is.
func EncodeURL(input string) (string, error) {
	if input == "" {
		return "", ErrEmptyInput
	}
	return componentUnescaper.Replace(url.QueryEscape(input)), nil
}

// DecodeURL decodes a percent-encoded URI component. '+' is left as is.
func DecodeURL(input string) (string, error) {
	if input == "" {
		return "", ErrEmptyInput
	}
	out, err := url.PathUnescape(input)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return out, nil
}
