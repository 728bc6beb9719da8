package lookup

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/prospect/pkg/common"
)

// Table is the raw {columns, rows} shape returned by every backend. The first
// column of a row is the primary ID unless a known ID column is present.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// EmptyTable returns a table with no columns and no rows.
func EmptyTable() *Table {
	return &Table{Columns: []string{}, Rows: [][]any{}}
}

var (
	idColumns        = []string{"comp_id", "title_id", "id"}
	slugColumns      = []string{"comp_slug", "slug"}
	nameColumns      = []string{"comp_name", "title_name", "name"}
	webColumns       = []string{"comp_web", "web"}
	distanceColumns  = []string{"dist", "distance", "score"}
	headcountColumns = []string{"comp_hc", "headcount", "hc"}
	countryColumns   = []string{"comp_cc2", "country", "cc2"}
)

func (t *Table) column(names []string) int {
	for _, name := range names {
		for i, c := range t.Columns {
			if strings.EqualFold(c, name) {
				return i
			}
		}
	}
	return -1
}

// Limit truncates the rows to at most n.
func (t *Table) Limit(n int) {
	if n >= 0 && len(t.Rows) > n {
		t.Rows = t.Rows[:n]
	}
}

// Candidates converts every row into a LookupCandidate in row order. A row
// without a usable primary ID is an error.
func (t *Table) Candidates() ([]common.LookupCandidate, error) {
	if t == nil {
		return []common.LookupCandidate{}, nil
	}

	idIdx := t.column(idColumns)
	if idIdx < 0 {
		idIdx = 0
	}
	slugIdx := t.column(slugColumns)
	nameIdx := t.column(nameColumns)
	webIdx := t.column(webColumns)
	distIdx := t.column(distanceColumns)
	hcIdx := t.column(headcountColumns)
	ccIdx := t.column(countryColumns)

	out := make([]common.LookupCandidate, 0, len(t.Rows))
	for i, row := range t.Rows {
		if idIdx >= len(row) {
			return nil, fmt.Errorf("row %d: missing primary id", i)
		}
		id, ok := toInt64(row[idIdx])
		if !ok {
			return nil, fmt.Errorf("row %d: invalid primary id %v", i, row[idIdx])
		}
		c := common.LookupCandidate{ID: id}
		c.Slug = cellString(row, slugIdx)
		c.Name = cellString(row, nameIdx)
		c.Web = cellString(row, webIdx)
		c.Country = cellString(row, ccIdx)
		if distIdx >= 0 && distIdx < len(row) {
			c.Distance, _ = toFloat64(row[distIdx])
		}
		if hcIdx >= 0 && hcIdx < len(row) {
			c.Headcount, _ = toInt64(row[hcIdx])
		}
		out = append(out, c)
	}
	return out, nil
}

func cellString(row []any, idx int) string {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return ""
	}
	switch v := row[idx].(type) {
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// toInt64 accepts JSON numbers and the quoted 64-bit integers ClickHouse
// emits by default.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// CandidateTable renders candidates back into the company column layout.
func CandidateTable(cands []common.LookupCandidate) *Table {
	tbl := &Table{
		Columns: []string{"comp_id", "comp_slug", "comp_name", "comp_web", "dist", "comp_hc", "comp_cc2"},
		Rows:    make([][]any, 0, len(cands)),
	}
	for _, c := range cands {
		tbl.Rows = append(tbl.Rows, []any{c.ID, c.Slug, c.Name, c.Web, c.Distance, c.Headcount, c.Country})
	}
	return tbl
}
