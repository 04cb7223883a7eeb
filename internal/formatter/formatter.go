// Package formatter implements the developer tools: pure string transforms
// over JSON, XML, SQL, CSV, JWT, Base64 and URL encodings.
package formatter

import (
	"errors"
	"sort"
)

// Errors returned by formatters. Each formatter wraps one of these.
var (
	ErrEmptyInput   = errors.New("input must be a non-empty string")
	ErrInvalidJSON  = errors.New("invalid JSON")
	ErrInvalidJWT   = errors.New("invalid JWT format")
	ErrInvalidSQL   = errors.New("invalid SQL query")
	ErrInvalidXML   = errors.New("invalid XML document")
	ErrInvalidCSV   = errors.New("CSV conversion error")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnknownTool  = errors.New("unknown tool")
)

// Func transforms an input string.
type Func func(input string) (string, error)

// Tool describes one formatter.
type Tool struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Pro         bool   `json:"pro"`
	Format      Func   `json:"-"`
}

// Registry holds the available tools.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates a registry containing the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.ID]; !exists {
		r.order = append(r.order, t.ID)
	}
	r.tools[t.ID] = t
}

// Get returns the tool with the given ID.
func (r *Registry) Get(id string) (Tool, error) {
	t, ok := r.tools[id]
	if !ok {
		return Tool{}, ErrUnknownTool
	}
	return t, nil
}

// List returns tools in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tools[id])
	}
	return out
}

// IDs returns tool IDs sorted alphabetically.
func (r *Registry) IDs() []string {
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}

// Default returns the registry of built-in tools. JWT, SQL, XML and CSV are pro tools.
func Default() *Registry {
	return NewRegistry(
		Tool{ID: "json", Title: "JSON Formatter", Description: "Format and validate JSON data", Format: FormatJSON},
		Tool{ID: "json-minify", Title: "JSON Minifier", Description: "Strip whitespace from JSON data", Format: MinifyJSON},
		Tool{ID: "base64", Title: "Base64 Encoder", Description: "Encode strings as Base64", Format: EncodeBase64},
		Tool{ID: "base64-decode", Title: "Base64 Decoder", Description: "Decode Base64 strings", Format: DecodeBase64},
		Tool{ID: "url", Title: "URL Encoder", Description: "Percent-encode URL components", Format: EncodeURL},
		Tool{ID: "url-decode", Title: "URL Decoder", Description: "Decode percent-encoded URL components", Format: DecodeURL},
		Tool{ID: "jwt", Title: "JWT Decoder", Description: "Decode JWT header, payload and signature", Pro: true, Format: DecodeJWT},
		Tool{ID: "sql", Title: "SQL Formatter", Description: "Format SQL queries with proper indentation", Pro: true, Format: FormatSQL},
		Tool{ID: "xml", Title: "XML Formatter", Description: "Format XML documents with proper indentation", Pro: true, Format: FormatXML},
		Tool{ID: "csv", Title: "CSV Converter", Description: "Convert between CSV and JSON", Pro: true, Format: ConvertCSV},
	)
}
