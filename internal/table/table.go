package table

import (
	"fmt"
	"strings"
)

// Row is an ordered mapping from column name to Value.
type Row struct {
	columns []string
	values  map[string]Value
}

// NewRow builds a row from parallel column and value slices. Missing values
// are null.
func NewRow(columns []string, values []Value) Row {
	r := Row{
		columns: make([]string, len(columns)),
		values:  make(map[string]Value, len(columns)),
	}
	copy(r.columns, columns)
	for i, c := range columns {
		if i < len(values) {
			r.values[c] = values[i]
		} else {
			r.values[c] = Null()
		}
	}
	return r
}

// RowOf builds a row from column/value pairs given as a map and an explicit
// column order.
func RowOf(columns []string, values map[string]Value) Row {
	vals := make([]Value, len(columns))
	for i, c := range columns {
		vals[i] = values[c]
	}
	return NewRow(columns, vals)
}

// Columns returns the row's column order.
func (r Row) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Get returns the value for column, or null if the row has no such column.
func (r Row) Get(column string) Value {
	return r.values[column]
}

// Has reports whether the row carries column.
func (r Row) Has(column string) bool {
	_, ok := r.values[column]
	return ok
}

// Key returns the trimmed text of column, used for identifier comparisons.
func (r Row) Key(column string) string {
	v := r.Get(column)
	if v.IsNull() {
		return ""
	}
	return NormalizeKey(v.Text())
}

// Values returns the row's values in column order.
func (r Row) Values() []Value {
	out := make([]Value, len(r.columns))
	for i, c := range r.columns {
		out[i] = r.values[c]
	}
	return out
}

// Project returns a row restricted to columns, in that order.
func (r Row) Project(columns []string) Row {
	vals := make([]Value, len(columns))
	for i, c := range columns {
		vals[i] = r.values[c]
	}
	return NewRow(columns, vals)
}

// NormalizeKey trims s and renders integral numerics without a fractional
// part so "7" and "7.0" compare equal.
func NormalizeKey(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ".0") {
		head := strings.TrimSuffix(s, ".0")
		if head != "" && strings.Trim(head, "0123456789-") == "" {
			return head
		}
	}
	return s
}

// Table is an ordered collection of rows sharing a column list.
type Table struct {
	Columns []string
	Rows    []Row
}

// New creates an empty table with the given columns.
func New(columns ...string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// HasColumn reports whether the table declares column.
func (t *Table) HasColumn(column string) bool {
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Append adds a row of values in column order.
func (t *Table) Append(values ...Value) {
	t.Rows = append(t.Rows, NewRow(t.Columns, values))
}

// AppendRow adds r projected onto the table's columns.
func (t *Table) AppendRow(r Row) {
	t.Rows = append(t.Rows, r.Project(t.Columns))
}

// Concat appends the rows of other. Columns missing from t are added.
func (t *Table) Concat(other *Table) {
	for _, c := range other.Columns {
		if !t.HasColumn(c) {
			t.Columns = append(t.Columns, c)
		}
	}
	for i := range t.Rows {
		t.Rows[i] = t.Rows[i].Project(t.Columns)
	}
	for _, r := range other.Rows {
		t.AppendRow(r)
	}
}

// Filter returns the rows whose column key is in allow. A nil allow-set keeps
// every row.
func (t *Table) Filter(column string, allow map[string]struct{}) *Table {
	out := New(t.Columns...)
	for _, r := range t.Rows {
		if allow != nil {
			if _, ok := allow[r.Key(column)]; !ok {
				continue
			}
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}

// Where returns the rows matching pred.
func (t *Table) Where(pred func(Row) bool) *Table {
	out := New(t.Columns...)
	for _, r := range t.Rows {
		if pred(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// DedupBy keeps the first row for each distinct key of column.
func (t *Table) DedupBy(column string) *Table {
	out := New(t.Columns...)
	seen := make(map[string]struct{}, len(t.Rows))
	for _, r := range t.Rows {
		k := r.Key(column)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out.Rows = append(out.Rows, r)
	}
	return out
}

// Drop returns a table without the named columns. Unknown names are ignored.
func (t *Table) Drop(columns ...string) *Table {
	drop := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		drop[c] = struct{}{}
	}
	var keep []string
	for _, c := range t.Columns {
		if _, ok := drop[c]; !ok {
			keep = append(keep, c)
		}
	}
	out := New(keep...)
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, r.Project(keep))
	}
	return out
}

// Unique returns the distinct keys of column in first-seen order, skipping
// empty keys.
func (t *Table) Unique(column string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range t.Rows {
		k := r.Key(column)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// LeftMerge joins right onto left by column on. Every left row is kept; each
// matching right row produces one output row, and left rows without a match
// get null right columns. Clashing non-key column names get "_x" and "_y"
// suffixes.
func LeftMerge(left, right *Table, on string) (*Table, error) {
	if !left.HasColumn(on) {
		return nil, fmt.Errorf("left table has no column %q", on)
	}
	if !right.HasColumn(on) {
		return nil, fmt.Errorf("right table has no column %q", on)
	}

	rightCols := make(map[string]struct{}, len(right.Columns))
	for _, c := range right.Columns {
		rightCols[c] = struct{}{}
	}
	leftCols := make(map[string]struct{}, len(left.Columns))
	for _, c := range left.Columns {
		leftCols[c] = struct{}{}
	}

	leftName := func(c string) string {
		if _, clash := rightCols[c]; clash && c != on {
			return c + "_x"
		}
		return c
	}
	rightName := func(c string) string {
		if _, clash := leftCols[c]; clash {
			return c + "_y"
		}
		return c
	}

	var columns []string
	for _, c := range left.Columns {
		columns = append(columns, leftName(c))
	}
	for _, c := range right.Columns {
		if c == on {
			continue
		}
		columns = append(columns, rightName(c))
	}

	index := make(map[string][]Row)
	for _, r := range right.Rows {
		k := r.Key(on)
		index[k] = append(index[k], r)
	}

	out := New(columns...)
	for _, l := range left.Rows {
		base := make(map[string]Value, len(columns))
		for _, c := range left.Columns {
			base[leftName(c)] = l.Get(c)
		}
		matches := index[l.Key(on)]
		if len(matches) == 0 {
			out.Rows = append(out.Rows, RowOf(columns, base))
			continue
		}
		for _, m := range matches {
			vals := make(map[string]Value, len(columns))
			for k, v := range base {
				vals[k] = v
			}
			for _, c := range right.Columns {
				if c == on {
					continue
				}
				vals[rightName(c)] = m.Get(c)
			}
			out.Rows = append(out.Rows, RowOf(columns, vals))
		}
	}
	return out, nil
}

func toString(x any) string {
	if s, ok := x.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(x)
}
