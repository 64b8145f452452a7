package reconcile

import (
	"sort"
)

// Row maps a field name to a raw scalar value (string, number or nil).
type Row map[string]any

// Table is one materialized snapshot of a relational table.
type Table struct {
	Name string
	// Fields is the declared column list in source order. When empty the
	// column set is derived from the rows.
	Fields []string
	Rows   []Row
}

// NewTable builds a table snapshot.
func NewTable(name string, fields []string, rows []Row) Table {
	return Table{Name: name, Fields: fields, Rows: rows}
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// Columns returns the sorted field set of the table.
func (t Table) Columns() []string {
	seen := make(map[string]struct{})
	if len(t.Fields) > 0 {
		for _, f := range t.Fields {
			seen[f] = struct{}{}
		}
	} else {
		for _, row := range t.Rows {
			for f := range row {
				seen[f] = struct{}{}
			}
		}
	}

	cols := make([]string, 0, len(seen))
	for f := range seen {
		cols = append(cols, f)
	}
	sort.Strings(cols)
	return cols
}

// SchemaKnown reports whether the table's field set can be told. A table
// with no declared fields and no rows carries no schema, as happens when an
// empty table is read back from a format that only records rows.
func (t Table) SchemaKnown() bool {
	return len(t.Fields) > 0 || len(t.Rows) > 0
}

// HasColumn reports whether field is part of the table's field set.
func (t Table) HasColumn(field string) bool {
	for _, c := range t.Columns() {
		if c == field {
			return true
		}
	}
	return false
}

// Without returns a copy of the table with the given columns removed. The
// receiver is not modified.
func (t Table) Without(fields ...string) Table {
	if len(fields) == 0 {
		return t
	}
	drop := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		drop[f] = struct{}{}
	}

	out := Table{Name: t.Name}
	for _, f := range t.Fields {
		if _, ok := drop[f]; !ok {
			out.Fields = append(out.Fields, f)
		}
	}
	out.Rows = make([]Row, len(t.Rows))
	for i, row := range t.Rows {
		cp := make(Row, len(row))
		for k, v := range row {
			if _, ok := drop[k]; !ok {
				cp[k] = v
			}
		}
		out.Rows[i] = cp
	}
	return out
}

// diffFields returns the fields present only in a and only in b. Both inputs
// must be sorted.
func diffFields(a, b []string) (onlyA, onlyB []string) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			i++
			j++
		case a[i] < b[j]:
			onlyA = append(onlyA, a[i])
			i++
		default:
			onlyB = append(onlyB, b[j])
			j++
		}
	}
	onlyA = append(onlyA, a[i:]...)
	onlyB = append(onlyB, b[j:]...)
	return onlyA, onlyB
}
