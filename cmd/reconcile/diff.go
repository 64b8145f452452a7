package reconcile

// CellChange is one differing cell. Old and New hold the original values as
// they appeared in each snapshot.
type CellChange struct {
	Key   Key    `json:"key"`
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

// DiffCells compares two aligned tables with the default normalizer.
func DiffCells(a, b AlignedTable) []CellChange {
	return DefaultNormalizer.DiffCells(a, b)
}

// DiffCells walks both aligned tables positionally and records every cell
// whose normalized values differ. Changes are grouped by key in aligned order,
// then by field name. The result is empty iff the tables are equal.
func (n Normalizer) DiffCells(a, b AlignedTable) []CellChange {
	var changes []CellChange

	rows := len(a.Rows)
	if len(b.Rows) < rows {
		rows = len(b.Rows)
	}
	for i := 0; i < rows; i++ {
		ra, rb := a.Rows[i], b.Rows[i]
		for _, field := range a.Fields {
			oldVal, newVal := ra.Row[field], rb.Row[field]
			if n.Normalize(oldVal).Equal(n.Normalize(newVal)) {
				continue
			}
			changes = append(changes, CellChange{
				Key:   ra.Key,
				Field: field,
				Old:   oldVal,
				New:   newVal,
			})
		}
	}
	return changes
}
