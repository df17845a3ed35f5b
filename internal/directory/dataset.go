// Package directory holds the tabular person-record model the mediation core
// receives from the external directory collector. The core never mutates a
// dataset in place; every transform returns a copy.
package directory

import "strings"

// Well-known column names supplied by the directory collector. The masking
// heuristics in the policy package match by substring, but row filtering and
// aggregation key off these exact columns.
const (
	ColUID       = "uid"
	ColManager   = "manager"
	ColDept      = "department"
	ColSeniority = "seniority_level"
)

// Dataset is an ordered, columnar collection of person records.
type Dataset struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// New returns a dataset with the given columns and no rows.
func New(columns ...string) *Dataset {
	return &Dataset{Columns: append([]string(nil), columns...)}
}

// Append adds one row. Rows shorter than the column set are padded so that
// later column access never goes out of range.
func (d *Dataset) Append(values ...string) {
	row := append([]string(nil), values...)
	for len(row) < len(d.Columns) {
		row = append(row, "")
	}
	d.Rows = append(d.Rows, row)
}

// Len reports the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// ColumnIndex returns the position of an exactly named column.
func (d *Dataset) ColumnIndex(name string) (int, bool) {
	for i, c := range d.Columns {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

// Value returns the cell at (row, column name), or "" when absent.
func (d *Dataset) Value(row int, name string) string {
	i, ok := d.ColumnIndex(name)
	if !ok || row < 0 || row >= len(d.Rows) {
		return ""
	}
	return d.Rows[row][i]
}

// Clone returns a deep copy. Transforms operate on clones so the caller's
// dataset is never observed mid-mutation.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	out := &Dataset{
		Columns: append([]string(nil), d.Columns...),
		Rows:    make([][]string, len(d.Rows)),
	}
	for i, row := range d.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}

// SelectRows returns a copy retaining only rows whose index passes keep.
func (d *Dataset) SelectRows(keep func(row int) bool) *Dataset {
	out := &Dataset{Columns: append([]string(nil), d.Columns...)}
	for i := range d.Rows {
		if keep(i) {
			out.Rows = append(out.Rows, append([]string(nil), d.Rows[i]...))
		}
	}
	return out
}

// DropColumns returns a copy without the named columns (exact match).
func (d *Dataset) DropColumns(names ...string) *Dataset {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	keep := make([]int, 0, len(d.Columns))
	out := &Dataset{}
	for i, c := range d.Columns {
		if _, gone := drop[c]; !gone {
			keep = append(keep, i)
			out.Columns = append(out.Columns, c)
		}
	}
	for _, row := range d.Rows {
		nr := make([]string, 0, len(keep))
		for _, i := range keep {
			nr = append(nr, row[i])
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// Summary counts rows by the values of one column. Used for the
// presentation-layer aggregate and the viewer rollup.
func (d *Dataset) Summary(column string) map[string]int {
	out := make(map[string]int)
	i, ok := d.ColumnIndex(column)
	if !ok {
		return out
	}
	for _, row := range d.Rows {
		key := strings.TrimSpace(row[i])
		if key == "" {
			key = "Unknown"
		}
		out[key]++
	}
	return out
}
