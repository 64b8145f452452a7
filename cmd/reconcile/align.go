package reconcile

import (
	"sort"
)

// AlignedTable is a projection of one snapshot onto the keys shared with the
// other, sorted by key. Two aligned tables produced by Align have the same
// keys and fields in the same order.
type AlignedTable struct {
	Fields []string
	Rows   []KeyedRow
}

// Len returns the number of aligned rows.
func (t AlignedTable) Len() int {
	return len(t.Rows)
}

// Align restricts both unique row sets to the keys they share and sorts them
// by key tuple. fields is the column set shared by both snapshots; it is
// copied and sorted by name. A field absent from a row reads as null.
func Align(res KeyResolution, fields []string) (AlignedTable, AlignedTable) {
	keysA := keySet(res.UniqueA)
	keysB := keySet(res.UniqueB)

	a := matchedRows(res.UniqueA, keysB)
	b := matchedRows(res.UniqueB, keysA)

	sortFields := append([]string(nil), fields...)
	sort.Strings(sortFields)

	return AlignedTable{Fields: sortFields, Rows: a}, AlignedTable{Fields: sortFields, Rows: b}
}

func matchedRows(rows []KeyedRow, other map[string]struct{}) []KeyedRow {
	out := make([]KeyedRow, 0, len(rows))
	for _, kr := range rows {
		if _, ok := other[kr.Key.id()]; ok {
			out = append(out, kr)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Key.Compare(out[j].Key) < 0
	})
	return out
}
