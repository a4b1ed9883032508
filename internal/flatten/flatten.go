// Package flatten turns lists of JSON objects into CSV tables.
//
// Columns are the union of top-level keys across all records in the order
// they are first seen. Scalars are written as their JSON text (strings
// unquoted), null as an empty cell, and nested objects or arrays as
// compact JSON.
package flatten

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

var ErrNotObject = errors.New("flatten: record is not a JSON object")

// field is one key/value pair of a record in document order
type field struct {
	key   string
	value json.RawMessage
}

// Table is a decoded set of records with a stable column order
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// Decode parses records into a Table
func Decode(records []json.RawMessage) (*Table, error) {
	t := &Table{Rows: make([]map[string]string, 0, len(records))}
	seen := make(map[string]bool)

	for i, rec := range records {
		fields, err := objectFields(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		row := make(map[string]string, len(fields))
		for _, f := range fields {
			if !seen[f.key] {
				seen[f.key] = true
				t.Columns = append(t.Columns, f.key)
			}
			cell, err := cellValue(f.value)
			if err != nil {
				return nil, fmt.Errorf("record %d field %q: %w", i, f.key, err)
			}
			row[f.key] = cell
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// WriteCSV writes the table with a header row
func (t *Table) WriteCSV(w io.Writer) error {
	out := gocsv.NewSafeCSVWriter(csv.NewWriter(w))

	if err := out.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	line := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			line[i] = row[col]
		}
		if err := out.Write(line); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	out.Flush()
	return out.Error()
}

// CSV decodes records and renders them as CSV bytes
func CSV(records []json.RawMessage) ([]byte, error) {
	t, err := Decode(records)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// objectFields reads the top-level members of a JSON object in order.
// Duplicate keys keep the last value, as encoding/json does.
func objectFields(raw json.RawMessage) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}

	var fields []field
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}

		if i, dup := index[key]; dup {
			fields[i].value = value
			continue
		}
		index[key] = len(fields)
		fields = append(fields, field{key: key, value: value})
	}
	return fields, nil
}

func cellValue(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", nil
	}
	switch raw[0] {
	case 'n':
		return "", nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		return string(raw), nil
	}
}
