package reconcile

import (
	"testing"
)

func facilities(rows ...Row) Table {
	return NewTable("facilities", []string{"facilityname", "fixedoperatingcost"}, rows)
}

func fac(name, cost any) Row {
	return Row{"facilityname": name, "fixedoperatingcost": cost}
}

func keyNames(rows []KeyedRow) []string {
	out := make([]string, len(rows))
	for i, kr := range rows {
		out[i] = kr.Key.String()
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestResolveKeys(t *testing.T) {
	t.Run("OnlyInEachSide", func(t *testing.T) {
		a := facilities(fac("D_001", "1"), fac("D_002", "2"), fac("D_099", "9"))
		b := facilities(fac("D_001", "1"), fac("D_002", "2"), fac("D_100", "9"))

		res := ResolveKeys(a, b, []string{"facilityname"})
		if got := keyNames(res.OnlyInA); !equalStrings(got, []string{"(D_099)"}) {
			t.Errorf("OnlyInA = %v", got)
		}
		if got := keyNames(res.OnlyInB); !equalStrings(got, []string{"(D_100)"}) {
			t.Errorf("OnlyInB = %v", got)
		}
		if res.Matched() != 2 {
			t.Errorf("Matched = %d, want 2", res.Matched())
		}
	})

	t.Run("FullDuplicateGroupsKeepSourceOrder", func(t *testing.T) {
		a := facilities(fac("D_002", "first"), fac("D_001", "1"), fac("D_002", "second"))
		b := facilities(fac("D_001", "1"), fac("D_002", "2"))

		res := ResolveKeys(a, b, []string{"facilityname"})
		if len(res.DupsInA) != 2 {
			t.Fatalf("DupsInA = %d rows, want 2", len(res.DupsInA))
		}
		if res.DupsInA[0].Row["fixedoperatingcost"] != "first" || res.DupsInA[1].Row["fixedoperatingcost"] != "second" {
			t.Errorf("duplicate group out of source order: %v", res.DupsInA)
		}
		if len(res.DupsInB) != 0 {
			t.Errorf("DupsInB = %v, want none", res.DupsInB)
		}
		if got := keyNames(res.OnlyInB); !equalStrings(got, []string{"(D_002)"}) {
			t.Errorf("OnlyInB = %v, want the unique D_002 of B", got)
		}
	})

	t.Run("DuplicatedOnBothSides", func(t *testing.T) {
		a := facilities(fac("D_002", "1"), fac("D_002", "2"), fac("D_001", "1"))
		b := facilities(fac("D_002", "3"), fac("D_002", "4"), fac("D_001", "1"))

		res := ResolveKeys(a, b, []string{"facilityname"})
		if len(res.DupsInA) != 2 || len(res.DupsInB) != 2 {
			t.Fatalf("dups = %d/%d, want 2/2", len(res.DupsInA), len(res.DupsInB))
		}
		if len(res.OnlyInA) != 0 || len(res.OnlyInB) != 0 {
			t.Errorf("duplicated key leaked into only-in sets: %v %v", res.OnlyInA, res.OnlyInB)
		}
	})

	t.Run("KeysCompareNormalized", func(t *testing.T) {
		reg := []string{"periodname", "year"}
		a := NewTable("periods", reg, []Row{{"periodname": "P1", "year": "2024"}, {"periodname": "P2", "year": ""}})
		b := NewTable("periods", reg, []Row{{"periodname": " P1", "year": 2024.0}, {"periodname": "P2", "year": nil}})

		res := ResolveKeys(a, b, reg)
		if len(res.OnlyInA)+len(res.OnlyInB) != 0 {
			t.Errorf("normalized keys should match: onlyA=%v onlyB=%v", keyNames(res.OnlyInA), keyNames(res.OnlyInB))
		}
		if res.Matched() != 2 {
			t.Errorf("Matched = %d, want 2", res.Matched())
		}
	})

	t.Run("CompositeKeyPartsDoNotCollide", func(t *testing.T) {
		fields := []string{"a", "b"}
		a := NewTable("t", fields, []Row{{"a": "x|s\"y", "b": "z"}})
		b := NewTable("t", fields, []Row{{"a": "x", "b": "y|s\"z"}})

		res := ResolveKeys(a, b, fields)
		if len(res.OnlyInA) != 1 || len(res.OnlyInB) != 1 {
			t.Errorf("distinct composite keys collided: %+v", res)
		}
	})
}

func TestResolveKeysPartitionIsComplete(t *testing.T) {
	a := facilities(
		fac("D_001", "1"), fac("D_002", "2"), fac("D_002", "3"),
		fac("D_003", "3"), fac("D_004", "4"), fac("", "5"), fac(nil, "6"),
	)
	b := facilities(
		fac("D_001", "1"), fac("D_003", "3"), fac("D_003", "x"),
		fac("D_005", "5"), fac("D_006", "6"),
	)

	res := ResolveKeys(a, b, []string{"facilityname"})
	matched := res.Matched()

	// every A row is either only-in, duplicated, or matched
	if got := len(res.OnlyInA) + len(res.DupsInA) + matched; got != a.Len() {
		t.Errorf("A partition covers %d rows, want %d", got, a.Len())
	}
	if got := len(res.OnlyInB) + len(res.DupsInB) + matched; got != b.Len() {
		t.Errorf("B partition covers %d rows, want %d", got, b.Len())
	}

	// "" and nil share the null key and form a duplicate group
	if len(res.DupsInA) != 4 {
		t.Errorf("DupsInA = %v, want D_002 x2 and null x2", keyNames(res.DupsInA))
	}

	seen := make(map[string]string)
	for label, rows := range map[string][]KeyedRow{"onlyA": res.OnlyInA, "dupsA": res.DupsInA} {
		for _, kr := range rows {
			if prev, ok := seen[kr.Key.id()]; ok && prev != label {
				t.Errorf("key %s in both %s and %s", kr.Key, prev, label)
			}
			seen[kr.Key.id()] = label
		}
	}
}

func TestKeyCompare(t *testing.T) {
	k1 := Key{Normalize("A"), Normalize("1")}
	k2 := Key{Normalize("A"), Normalize("2")}
	k3 := Key{Normalize("B"), Normalize("0")}

	if k1.Compare(k2) >= 0 || k2.Compare(k3) >= 0 || k1.Compare(k3) >= 0 {
		t.Error("keys must order component by component")
	}
	if !k1.Equal(Key{Normalize("A"), Normalize("1.000")}) {
		t.Error("keys with numerically equal parts must be equal")
	}
	if k1.String() != "(A, 1.00)" {
		t.Errorf("String() = %q", k1.String())
	}
}
