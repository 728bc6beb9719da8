package clickhouse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/prospect/pkg/lookup"
)

type compactResult struct {
	Meta []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"meta"`
	Data [][]any `json:"data"`
}

// ParseResult reads a JSONCompact document ({"meta", "data"}) or
// JSONEachRow lines. Numbers are kept as json.Number so 64-bit IDs survive.
func ParseResult(data []byte) (*lookup.Table, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return lookup.EmptyTable(), nil
	}

	head := trimmed[:min(len(trimmed), 100)]
	if trimmed[0] == '{' && bytes.Contains(head, []byte(`"meta"`)) {
		var res compactResult
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&res); err != nil {
			return nil, fmt.Errorf("decode JSONCompact: %w", err)
		}
		tbl := lookup.EmptyTable()
		for _, m := range res.Meta {
			tbl.Columns = append(tbl.Columns, m.Name)
		}
		if res.Data != nil {
			tbl.Rows = res.Data
		}
		return tbl, nil
	}

	return parseEachRow(trimmed)
}

func parseEachRow(data []byte) (*lookup.Table, error) {
	tbl := lookup.EmptyTable()
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for sc.Scan() {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		line++
		keys, values, err := decodeOrderedObject(raw)
		if err != nil {
			return nil, fmt.Errorf("decode JSONEachRow line %d: %w", line, err)
		}
		if line == 1 {
			tbl.Columns = keys
		}
		tbl.Rows = append(tbl.Rows, values)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return tbl, nil
}

// decodeOrderedObject decodes one JSON object keeping key order.
func decodeOrderedObject(raw []byte) ([]string, []any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}

	var (
		keys   []string
		values []any
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected key, got %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		values = append(values, v)
	}
	return keys, values, nil
}
