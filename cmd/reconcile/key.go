package reconcile

import (
	"strings"
)

// Key is the normalized tuple of a row's key fields.
type Key []Value

// KeyOf builds the normalized key of row.
func (n Normalizer) KeyOf(row Row, fields []string) Key {
	k := make(Key, len(fields))
	for i, f := range fields {
		k[i] = n.Normalize(row[f])
	}
	return k
}

// Compare orders keys component by component.
func (k Key) Compare(o Key) int {
	for i := 0; i < len(k) && i < len(o); i++ {
		if c := k[i].Compare(o[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(k) < len(o):
		return -1
	case len(k) > len(o):
		return 1
	}
	return 0
}

// Equal reports whether both keys are normalization-equal.
func (k Key) Equal(o Key) bool {
	return k.Compare(o) == 0
}

// Strings returns the display form of each component.
func (k Key) Strings() []string {
	out := make([]string, len(k))
	for i, v := range k {
		out[i] = v.String()
	}
	return out
}

// String renders the key as a tuple, e.g. (D_001, 2024).
func (k Key) String() string {
	return "(" + strings.Join(k.Strings(), ", ") + ")"
}

// id is a map-safe encoding of the key; distinct keys never collide.
func (k Key) id() string {
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = v.canonical()
	}
	return strings.Join(parts, "|")
}

// KeyedRow is a source row together with its normalized key.
type KeyedRow struct {
	Key Key `json:"key"`
	Row Row `json:"row"`
}

// KeyResolution partitions the rows of two snapshots by key. Within each
// group, rows keep their source order.
type KeyResolution struct {
	OnlyInA []KeyedRow
	OnlyInB []KeyedRow
	DupsInA []KeyedRow
	DupsInB []KeyedRow
	UniqueA []KeyedRow
	UniqueB []KeyedRow
}

// Matched returns the number of keys unique in both snapshots.
func (r KeyResolution) Matched() int {
	return len(r.UniqueA) - len(r.OnlyInA)
}

// ResolveKeys partitions a and b with the default normalizer.
func ResolveKeys(a, b Table, keyFields []string) KeyResolution {
	return DefaultNormalizer.ResolveKeys(a, b, keyFields)
}

// ResolveKeys splits each table into rows with a unique key and full
// duplicate groups, then computes the only-in sets as a set difference over
// the unique keys. A key duplicated on one side is never part of the other
// side's comparison; if it is unique there, that row lands in the only-in set.
func (n Normalizer) ResolveKeys(a, b Table, keyFields []string) KeyResolution {
	var res KeyResolution
	res.UniqueA, res.DupsInA = n.splitDuplicates(a, keyFields)
	res.UniqueB, res.DupsInB = n.splitDuplicates(b, keyFields)

	keysA := keySet(res.UniqueA)
	keysB := keySet(res.UniqueB)
	for _, kr := range res.UniqueA {
		if _, ok := keysB[kr.Key.id()]; !ok {
			res.OnlyInA = append(res.OnlyInA, kr)
		}
	}
	for _, kr := range res.UniqueB {
		if _, ok := keysA[kr.Key.id()]; !ok {
			res.OnlyInB = append(res.OnlyInB, kr)
		}
	}
	return res
}

func (n Normalizer) splitDuplicates(t Table, keyFields []string) (unique, dups []KeyedRow) {
	keyed := make([]KeyedRow, len(t.Rows))
	counts := make(map[string]int, len(t.Rows))
	for i, row := range t.Rows {
		k := n.KeyOf(row, keyFields)
		keyed[i] = KeyedRow{Key: k, Row: row}
		counts[k.id()]++
	}

	for _, kr := range keyed {
		if counts[kr.Key.id()] > 1 {
			dups = append(dups, kr)
		} else {
			unique = append(unique, kr)
		}
	}
	return unique, dups
}

func keySet(rows []KeyedRow) map[string]struct{} {
	set := make(map[string]struct{}, len(rows))
	for _, kr := range rows {
		set[kr.Key.id()] = struct{}{}
	}
	return set
}
