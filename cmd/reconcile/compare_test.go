package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
)

func newTestComparer(opts ...Option) *Comparer {
	return NewComparer(DefaultRegistry(), opts...)
}

func TestCompareTableScenarios(t *testing.T) {
	t.Run("NumericRepresentationIsEqual", func(t *testing.T) {
		a := facilities(fac("D_001", "560"))
		b := facilities(fac("D_001", "560.00"))

		rep := newTestComparer().CompareTable("facilities", a, b)
		if rep.Outcome != OutcomeEqual {
			t.Fatalf("outcome = %s, want equal", rep.Outcome)
		}
		if rep.ComparedRows != 1 || len(rep.Changes) != 0 {
			t.Errorf("compared=%d changes=%v", rep.ComparedRows, rep.Changes)
		}
	})

	t.Run("SingleCellChange", func(t *testing.T) {
		a := facilities(fac("D_001", "560"))
		b := facilities(fac("D_001", "561"))

		rep := newTestComparer().CompareTable("facilities", a, b)
		if rep.Outcome != OutcomeCellDiff {
			t.Fatalf("outcome = %s, want cell_diff", rep.Outcome)
		}
		if len(rep.Changes) != 1 {
			t.Fatalf("changes = %v, want exactly one", rep.Changes)
		}
		c := rep.Changes[0]
		if c.Key.String() != "(D_001)" || c.Field != "fixedoperatingcost" || c.Old != "560" || c.New != "561" {
			t.Errorf("unexpected change %+v", c)
		}
	})

	// The row counts differ here, so the duplicates are only reported past
	// the row-count guard; see DuplicateKeyHaltsAtRowCountByDefault.
	t.Run("DuplicateKeyExcludedFromDiff", func(t *testing.T) {
		a := facilities(fac("D_001", "1"), fac("D_002", "2"), fac("D_002", "3"), fac("D_003", "3"))
		b := facilities(fac("D_001", "1"), fac("D_002", "2"), fac("D_003", "4"))

		rep := newTestComparer(WithRowCountPolicy(RowCountContinue)).CompareTable("facilities", a, b)
		if len(rep.DupsInA) != 2 {
			t.Fatalf("DupsInA = %v, want both D_002 rows", keyNames(rep.DupsInA))
		}
		for _, c := range rep.Changes {
			if c.Key.String() == "(D_002)" {
				t.Errorf("duplicated key must not be diffed: %+v", c)
			}
		}
		if len(rep.Changes) != 1 || rep.Changes[0].Key.String() != "(D_003)" {
			t.Errorf("remaining keys must still be diffed, got %+v", rep.Changes)
		}
		if rep.RowCount == nil || rep.RowCount.CountA != 4 || rep.RowCount.CountB != 3 {
			t.Errorf("row count mismatch should be recorded: %+v", rep.RowCount)
		}
	})

	t.Run("DuplicateKeyHaltsAtRowCountByDefault", func(t *testing.T) {
		a := facilities(fac("D_001", "1"), fac("D_002", "2"), fac("D_002", "3"), fac("D_003", "3"))
		b := facilities(fac("D_001", "1"), fac("D_002", "2"), fac("D_003", "4"))

		rep := newTestComparer().CompareTable("facilities", a, b)
		if rep.Outcome != OutcomeRowCountMismatch {
			t.Fatalf("outcome = %s, want row_count_mismatch", rep.Outcome)
		}
		if rep.DupsInA != nil || rep.Changes != nil {
			t.Errorf("halted table must carry no key findings: dups=%v changes=%v", keyNames(rep.DupsInA), rep.Changes)
		}
	})

	t.Run("DuplicateKeyWithBalancedCounts", func(t *testing.T) {
		a := facilities(fac("D_001", "1"), fac("D_002", "2"), fac("D_002", "3"))
		b := facilities(fac("D_001", "1"), fac("D_002", "2"), fac("D_004", "3"))

		rep := newTestComparer().CompareTable("facilities", a, b)
		if rep.Outcome != OutcomeKeyMismatch {
			t.Fatalf("outcome = %s, want key_mismatch", rep.Outcome)
		}
		if len(rep.DupsInA) != 2 {
			t.Errorf("DupsInA = %v", keyNames(rep.DupsInA))
		}
		if rep.ComparedRows != 1 || len(rep.Changes) != 0 {
			t.Errorf("compared=%d changes=%v", rep.ComparedRows, rep.Changes)
		}
	})

	t.Run("ExtraRowOnlyInA", func(t *testing.T) {
		a := facilities(fac("D_001", "1"), fac("D_002", "2"), fac("D_099", "9"))
		b := facilities(fac("D_001", "1"), fac("D_002", "5"))

		rep := newTestComparer(WithRowCountPolicy(RowCountContinue)).CompareTable("facilities", a, b)
		if got := keyNames(rep.OnlyInA); !equalStrings(got, []string{"(D_099)"}) {
			t.Fatalf("OnlyInA = %v", got)
		}
		if rep.OnlyInA[0].Row["fixedoperatingcost"] != "9" {
			t.Errorf("only-in row should carry the source row, got %v", rep.OnlyInA[0].Row)
		}
		if len(rep.Changes) != 1 || rep.Changes[0].Key.String() != "(D_002)" {
			t.Errorf("matched keys must still be diffed, got %+v", rep.Changes)
		}
	})

	t.Run("SchemaMismatchShortCircuits", func(t *testing.T) {
		a := facilities(fac("D_001", "1"))
		b := NewTable("facilities", []string{"facilityname", "variableoperatingcost"},
			[]Row{{"facilityname": "D_001", "variableoperatingcost": "1"}})

		rep := newTestComparer().CompareTable("facilities", a, b)
		if rep.Outcome != OutcomeSchemaMismatch {
			t.Fatalf("outcome = %s, want schema_mismatch", rep.Outcome)
		}
		if !equalStrings(rep.Schema.OnlyInA, []string{"fixedoperatingcost"}) || !equalStrings(rep.Schema.OnlyInB, []string{"variableoperatingcost"}) {
			t.Errorf("schema payload = %+v", rep.Schema)
		}
		if rep.ComparedRows != 0 || rep.Changes != nil || rep.OnlyInA != nil || rep.DupsInA != nil {
			t.Error("no row-level processing may happen after a schema mismatch")
		}
	})
}

func TestCompareTableGuards(t *testing.T) {
	t.Run("RowCountHaltsByDefault", func(t *testing.T) {
		a := facilities(fac("D_001", "1"), fac("D_002", "2"))
		b := facilities(fac("D_001", "9"))

		rep := newTestComparer().CompareTable("facilities", a, b)
		if rep.Outcome != OutcomeRowCountMismatch {
			t.Fatalf("outcome = %s, want row_count_mismatch", rep.Outcome)
		}
		if rep.RowCount.CountA != 2 || rep.RowCount.CountB != 1 {
			t.Errorf("counts = %+v", rep.RowCount)
		}
		if rep.Changes != nil || rep.OnlyInA != nil {
			t.Error("key resolution must not run after the row-count guard halts")
		}
	})

	t.Run("UnregisteredTable", func(t *testing.T) {
		rep := newTestComparer().CompareTable("unknown", facilities(), facilities())
		if rep.Outcome != OutcomeConfigError {
			t.Fatalf("outcome = %s, want config_error", rep.Outcome)
		}
		if rep.Category() != CategoryFailed {
			t.Errorf("category = %s", rep.Category())
		}
	})

	t.Run("KeyFieldMissingFromSchema", func(t *testing.T) {
		reg := Registry{"facilities": {"facilitycode"}}
		rep := NewComparer(reg).CompareTable("facilities", facilities(fac("D_001", "1")), facilities(fac("D_001", "1")))
		if rep.Outcome != OutcomeConfigError {
			t.Fatalf("outcome = %s, want config_error", rep.Outcome)
		}
		if rep.Err == "" {
			t.Error("config error must carry a message")
		}
	})

	t.Run("DuplicatesOnly", func(t *testing.T) {
		a := facilities(fac("D_001", "1"), fac("D_002", "2"), fac("D_002", "3"))
		b := facilities(fac("D_001", "1"), fac("D_002", "2"), fac("D_002", "3"))

		rep := newTestComparer().CompareTable("facilities", a, b)
		if rep.Outcome != OutcomeDuplicateKeys {
			t.Fatalf("outcome = %s, want duplicate_keys", rep.Outcome)
		}
		if rep.ComparedRows != 1 || len(rep.Changes) != 0 {
			t.Errorf("compared=%d changes=%v", rep.ComparedRows, rep.Changes)
		}
	})

	t.Run("DuplicateHaltPolicySkipsDiff", func(t *testing.T) {
		a := facilities(fac("D_001", "1"), fac("D_002", "2"), fac("D_002", "3"))
		b := facilities(fac("D_001", "7"), fac("D_002", "2"), fac("D_002", "3"))

		rep := newTestComparer(WithDuplicatePolicy(DuplicatesHalt)).CompareTable("facilities", a, b)
		if rep.Outcome != OutcomeDuplicateKeys {
			t.Fatalf("outcome = %s, want duplicate_keys", rep.Outcome)
		}
		if rep.Changes != nil {
			t.Errorf("halt policy must skip the cell diff, got %v", rep.Changes)
		}
	})

	t.Run("MissingCellReadsAsNull", func(t *testing.T) {
		a := facilities(Row{"facilityname": "D_001"})
		b := facilities(fac("D_001", ""))

		rep := newTestComparer().CompareTable("facilities", a, b)
		if rep.Outcome != OutcomeEqual {
			t.Errorf("outcome = %s, want equal", rep.Outcome)
		}
	})
}

func TestCompareTableWithoutSchema(t *testing.T) {
	empty := NewTable("facilities", nil, nil)

	t.Run("EmptyMatchesEmptyWithFields", func(t *testing.T) {
		for _, pair := range [][2]Table{{empty, facilities()}, {facilities(), empty}} {
			rep := newTestComparer().CompareTable("facilities", pair[0], pair[1])
			if rep.Outcome != OutcomeEqual {
				t.Errorf("outcome = %s (%s), want equal", rep.Outcome, rep.Err)
			}
			if !equalStrings(rep.Fields, []string{"facilityname", "fixedoperatingcost"}) {
				t.Errorf("fields = %v", rep.Fields)
			}
		}
	})

	t.Run("EmptyAgainstRows", func(t *testing.T) {
		rep := newTestComparer().CompareTable("facilities", empty, facilities(fac("D_001", "1")))
		if rep.Outcome != OutcomeRowCountMismatch {
			t.Errorf("outcome = %s (%s), want row_count_mismatch", rep.Outcome, rep.Err)
		}

		rep = newTestComparer(WithRowCountPolicy(RowCountContinue)).CompareTable("facilities", empty, facilities(fac("D_001", "1")))
		if got := keyNames(rep.OnlyInB); !equalStrings(got, []string{"(D_001)"}) {
			t.Errorf("OnlyInB = %v", got)
		}
	})

	t.Run("KeyFieldsCheckedAgainstKnownSide", func(t *testing.T) {
		reg := Registry{"facilities": {"facilitycode"}}
		rep := NewComparer(reg).CompareTable("facilities", empty, facilities())
		if rep.Outcome != OutcomeConfigError {
			t.Errorf("outcome = %s, want config_error", rep.Outcome)
		}
	})
}

func TestCompareTableKeyFieldsAreCopied(t *testing.T) {
	reg := Registry{"facilities": {"facilityname"}}
	rep := NewComparer(reg).CompareTable("facilities", facilities(fac("D_001", "1")), facilities(fac("D_001", "1")))
	rep.KeyFields[0] = "changed"

	keys, err := reg.Keys("facilities")
	if err != nil || keys[0] != "facilityname" {
		t.Errorf("registry keys = %v, %v", keys, err)
	}
}

func TestCompareTableOrdersChanges(t *testing.T) {
	fields := []string{"facilityname", "b_cost", "a_cost"}
	mk := func(name, a, b string) Row { return Row{"facilityname": name, "a_cost": a, "b_cost": b} }
	a := NewTable("facilities", fields, []Row{mk("Z", "1", "1"), mk("A", "1", "1"), mk("M", "1", "1")})
	b := NewTable("facilities", fields, []Row{mk("M", "2", "2"), mk("Z", "2", "1"), mk("A", "1", "2")})

	rep := newTestComparer().CompareTable("facilities", a, b)

	var got []string
	for _, c := range rep.Changes {
		got = append(got, c.Key.String()+"."+c.Field)
	}
	want := []string{"(A).b_cost", "(M).a_cost", "(M).b_cost", "(Z).a_cost"}
	if !equalStrings(got, want) {
		t.Errorf("changes order = %v, want %v", got, want)
	}
}

func TestCompareTableProperties(t *testing.T) {
	a := facilities(fac("D_001", "560"), fac("D_002", "1.5"), fac("D_003", ""), fac("D_004", "abc"))
	b := facilities(fac("D_001", "561"), fac("D_002", "1.50"), fac("D_003", "0"), fac("D_004", "abd"))

	t.Run("Reflexive", func(t *testing.T) {
		tests := []struct {
			name  string
			table Table
		}{
			{"Populated", a},
			{"Empty", NewTable("facilities", nil, nil)},
			{"EmptyWithFields", facilities()},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rep := newTestComparer().CompareTable("facilities", tt.table, tt.table)
				if rep.Outcome != OutcomeEqual || rep.HasDuplicates() || rep.HasKeyMismatch() {
					t.Errorf("self comparison = %s (%s), dups=%v keys=%v", rep.Outcome, rep.Err, rep.HasDuplicates(), rep.HasKeyMismatch())
				}
			})
		}
	})

	t.Run("Symmetric", func(t *testing.T) {
		ab := newTestComparer().CompareTable("facilities", a, b)
		ba := newTestComparer().CompareTable("facilities", b, a)

		if len(ab.Changes) != 3 || len(ab.Changes) != len(ba.Changes) {
			t.Fatalf("changes ab=%d ba=%d, want 3 each", len(ab.Changes), len(ba.Changes))
		}
		for i := range ab.Changes {
			x, y := ab.Changes[i], ba.Changes[i]
			if !x.Key.Equal(y.Key) || x.Field != y.Field || x.Old != y.New || x.New != y.Old {
				t.Errorf("change %d not symmetric: %+v vs %+v", i, x, y)
			}
		}
	})
}

type panicValue struct{}

func (panicValue) String() string { panic("boom") }

func TestRun(t *testing.T) {
	ok := Pair{Table: "facilities", A: facilities(fac("D_001", "1")), B: facilities(fac("D_001", "1.0"))}
	diff := Pair{Table: "inventorypolicies",
		A: NewTable("inventorypolicies", []string{"facilityname", "productname", "qty"}, []Row{{"facilityname": "F", "productname": "P", "qty": "1"}}),
		B: NewTable("inventorypolicies", []string{"facilityname", "productname", "qty"}, []Row{{"facilityname": "F", "productname": "P", "qty": "2"}}),
	}
	blocked := Pair{Table: "customers",
		A: NewTable("customers", []string{"customername"}, []Row{{"customername": "C1"}}),
		B: NewTable("customers", []string{"customername", "city"}, []Row{{"customername": "C1", "city": "X"}}),
	}
	loadErr := Pair{Table: "periods", Err: errors.New("connection refused")}
	panicking := Pair{Table: "groups",
		A: NewTable("groups", []string{"groupname", "grouptype", "membername"}, []Row{{"groupname": panicValue{}, "grouptype": "t", "membername": "m"}}),
		B: NewTable("groups", []string{"groupname", "grouptype", "membername"}, []Row{{"groupname": "g", "grouptype": "t", "membername": "m"}}),
	}

	var mu sync.Mutex
	var done []string
	c := newTestComparer(WithWorkers(2), WithProgress(func(r *Report) {
		mu.Lock()
		done = append(done, r.Table)
		mu.Unlock()
	}))

	run := c.Run(context.Background(), []Pair{ok, diff, blocked, loadErr, panicking})

	if len(run.Tables) != 5 {
		t.Fatalf("run has %d reports, want 5", len(run.Tables))
	}
	if !equalStrings(run.Order, []string{"facilities", "inventorypolicies", "customers", "periods", "groups"}) {
		t.Errorf("order = %v", run.Order)
	}

	want := map[string]Outcome{
		"facilities":        OutcomeEqual,
		"inventorypolicies": OutcomeCellDiff,
		"customers":         OutcomeSchemaMismatch,
		"periods":           OutcomeError,
		"groups":            OutcomeError,
	}
	for name, outcome := range want {
		if got := run.Report(name).Outcome; got != outcome {
			t.Errorf("%s outcome = %s, want %s", name, got, outcome)
		}
	}
	if run.Report("groups").Err == "" {
		t.Error("recovered panic must be recorded")
	}

	sum := run.Summary()
	if !equalStrings(sum[CategoryIdentical], []string{"facilities"}) ||
		!equalStrings(sum[CategoryBlocked], []string{"customers"}) ||
		!equalStrings(sum[CategoryDifferences], []string{"inventorypolicies"}) ||
		!equalStrings(sum[CategoryFailed], []string{"groups", "periods"}) {
		t.Errorf("summary = %v", sum)
	}
	if run.Identical() {
		t.Error("run with differences must not be identical")
	}

	sort.Strings(done)
	if len(done) != 5 {
		t.Errorf("progress called %d times, want 5", len(done))
	}
}

func TestRunProgressPanic(t *testing.T) {
	pairs := []Pair{
		{Table: "facilities", A: facilities(fac("D_001", "1")), B: facilities(fac("D_001", "1"))},
		{Table: "customers", Err: errors.New("connection refused")},
	}
	c := newTestComparer(WithProgress(func(r *Report) {
		if r.Table == "facilities" {
			panic("display closed")
		}
	}))

	run := c.Run(context.Background(), pairs)
	if len(run.Tables) != 2 {
		t.Fatalf("run has %d reports, want 2", len(run.Tables))
	}
	if got := run.Report("facilities").Outcome; got != OutcomeEqual {
		t.Errorf("facilities outcome = %s, want equal", got)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var pairs []Pair
	for i := 0; i < 3; i++ {
		pairs = append(pairs, Pair{Table: fmt.Sprintf("t%d", i)})
	}
	run := newTestComparer().Run(ctx, pairs)
	for _, rep := range run.Reports() {
		if rep.Outcome != OutcomeError {
			t.Errorf("%s outcome = %s, want error", rep.Table, rep.Outcome)
		}
	}
}

func TestOutcomeText(t *testing.T) {
	for o := OutcomeEqual; o <= OutcomeError; o++ {
		text, _ := o.MarshalText()
		var back Outcome
		if err := back.UnmarshalText(text); err != nil || back != o {
			t.Errorf("outcome %d round trip gave %d (%v)", o, back, err)
		}
	}
	var o Outcome
	if err := o.UnmarshalText([]byte("nope")); err == nil {
		t.Error("unknown outcome name should fail")
	}
}
