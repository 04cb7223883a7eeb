package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ConvertCSV converts JSON to CSV when input starts with '{' or '[' and CSV
// to JSON otherwise. Column order follows first appearance of each key.
func ConvertCSV(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyInput
	}

	if input[0] == '{' || input[0] == '[' {
		return jsonToCSV(input)
	}
	return csvToJSON(input)
}

// orderedObject is a JSON object that remembers key order.
type orderedObject struct {
	keys   []string
	values map[string]json.RawMessage
}

func jsonToCSV(input string) (string, error) {
	var rows []json.RawMessage
	if input[0] == '[' {
		if err := json.Unmarshal([]byte(input), &rows); err != nil {
			return "", fmt.Errorf("%w: invalid JSON format", ErrInvalidCSV)
		}
	} else {
		rows = []json.RawMessage{json.RawMessage(input)}
	}
	if len(rows) == 0 {
		return "", nil
	}

	objects := make([]orderedObject, 0, len(rows))
	var headers []string
	seen := make(map[string]bool)

	for i, raw := range rows {
		obj, err := decodeOrdered(raw)
		if err != nil {
			return "", fmt.Errorf("%w: row %d: %v", ErrInvalidCSV, i+1, err)
		}
		for _, k := range obj.keys {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
		objects = append(objects, obj)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	for _, obj := range objects {
		record := make([]string, len(headers))
		for i, h := range headers {
			record[i] = cellValue(obj.values[h])
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidCSV, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}

	return strings.TrimRight(buf.String(), "\n"), nil
}

func decodeOrdered(raw json.RawMessage) (orderedObject, error) {
	obj := orderedObject{values: make(map[string]json.RawMessage)}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return obj, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return obj, errors.New("expected an object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return obj, err
		}
		key, ok := tok.(string)
		if !ok {
			return obj, errors.New("expected an object key")
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return obj, err
		}
		if _, dup := obj.values[key]; !dup {
			obj.keys = append(obj.keys, key)
		}
		obj.values[key] = value
	}
	return obj, nil
}

// cellValue renders a JSON value as CSV text. Strings are unquoted, null and
// missing values are empty, everything else keeps its compact JSON form.
func cellValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	trimmed := bytes.TrimSpace(raw)
	if string(trimmed) == "null" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}

func csvToJSON(input string) (string, error) {
	r := csv.NewReader(strings.NewReader(input))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return "", fmt.Errorf("%w: invalid CSV format: %v", ErrInvalidCSV, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var out bytes.Buffer
	out.WriteByte('[')
	for n := 0; ; n++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: invalid CSV format: %v", ErrInvalidCSV, err)
		}
		if len(record) != len(header) {
			return "", fmt.Errorf("%w: CSV row has %d values but expected %d", ErrInvalidCSV, len(record), len(header))
		}

		if n > 0 {
			out.WriteByte(',')
		}
		out.WriteByte('{')
		for i, h := range header {
			if i > 0 {
				out.WriteByte(',')
			}
			key, _ := json.Marshal(h)
			val, _ := json.Marshal(strings.TrimSpace(record[i]))
			out.Write(key)
			out.WriteByte(':')
			out.Write(val)
		}
		out.WriteByte('}')
	}
	out.WriteByte(']')

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, out.Bytes(), "", indent); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	return pretty.String(), nil
}
