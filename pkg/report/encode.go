package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/prospect/pkg/lookup"
)

// File formats a report can be rendered in.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ParseFormat maps a user supplied format to FormatJSON or FormatCSV.
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", s)
	}
}

// Encode renders tbl in format. JSON keeps the {columns, rows} shape of the
// query result.
func Encode(tbl *lookup.Table, format string) ([]byte, error) {
	if tbl == nil {
		tbl = lookup.EmptyTable()
	}
	switch format {
	case FormatJSON:
		return json.Marshal(tbl)
	case FormatCSV:
		return encodeCSV(tbl)
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}

func encodeCSV(tbl *lookup.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(tbl.Columns); err != nil {
		return nil, err
	}
	record := make([]string, 0, len(tbl.Columns))
	for _, row := range tbl.Rows {
		record = record[:0]
		for _, v := range row {
			record = append(record, cell(v))
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
