package formatter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type decodedJWT struct {
	Header    json.RawMessage `json:"header"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// DecodeJWT decodes a token's header and payload without verifying the
// signature, so any signing algorithm is accepted. Output is indented JSON
// with header, payload and signature.
func DecodeJWT(input string) (string, error) {
	token := strings.TrimSpace(input)
	if token == "" || strings.Count(token, ".") != 2 {
		return "", ErrInvalidJWT
	}

	parser := jwt.NewParser(jwt.WithPaddingAllowed())
	parts := strings.Split(token, ".")

	header, err := decodeJWTSegment(parser, parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: malformed header", ErrInvalidJWT)
	}
	payload, err := decodeJWTSegment(parser, parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: malformed payload", ErrInvalidJWT)
	}

	out, err := json.MarshalIndent(decodedJWT{
		Header:    header,
		Payload:   payload,
		Signature: parts[2],
	}, "", indent)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidJWT, err)
	}
	return string(out), nil
}

func decodeJWTSegment(p *jwt.Parser, seg string) (json.RawMessage, error) {
	raw, err := p.DecodeSegment(seg)
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, errors.New("not JSON")
	}
	return raw, nil
}
