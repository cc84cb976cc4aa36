package table

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadCSV parses a CSV document with a header row. Empty cells become null,
// cells holding a JSON array become lists, everything else is a string.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	t := New(header...)
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading record %d: %w", line, err)
		}
		if len(rec) > len(header) {
			return nil, fmt.Errorf("record %d has %d fields, header has %d", line, len(rec), len(header))
		}
		vals := make([]Value, len(header))
		for i := range header {
			if i < len(rec) {
				vals[i] = ParseCell(rec[i])
			}
		}
		t.Append(vals...)
	}
	return t, nil
}

// ReadCSVFile reads a CSV file from disk.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// WriteCSV writes t with a header row. Lists are written as JSON arrays and
// nulls as empty cells so ReadCSV restores them.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	rec := make([]string, len(t.Columns))
	for _, r := range t.Rows {
		for i, c := range t.Columns {
			rec[i] = FormatCell(r.Get(c))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes t to path, replacing any existing file.
func WriteCSVFile(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ParseCell converts raw CSV text to a Value.
func ParseCell(s string) Value {
	if s == "" {
		return Null()
	}
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		var items []any
		if err := json.Unmarshal([]byte(trimmed), &items); err == nil {
			return FromAny(items)
		}
	}
	return String(s)
}

// FormatCell renders v as CSV text.
func FormatCell(v Value) string {
	switch v.Kind() {
	case KindNull:
		return ""
	case KindList:
		items := make([]any, 0, v.Len())
		for _, it := range v.Items() {
			switch {
			case it.Kind() == KindNull:
				items = append(items, nil)
			case it.Kind() == KindNumber && !it.IsNull():
				f, _ := it.Float()
				items = append(items, json.Number(strconv.FormatFloat(f, 'f', -1, 64)))
			default:
				items = append(items, it.Text())
			}
		}
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(items); err != nil {
			return v.Text()
		}
		return strings.TrimRight(buf.String(), "\n")
	default:
		return v.Text()
	}
}
