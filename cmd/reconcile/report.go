package reconcile

import (
	"fmt"
	"sort"
	"time"
)

// Outcome is the terminal state of one table's comparison, ordered by the
// guard that produced it.
type Outcome int

const (
	OutcomeEqual Outcome = iota
	OutcomeSchemaMismatch
	OutcomeRowCountMismatch
	OutcomeKeyMismatch
	OutcomeDuplicateKeys
	OutcomeCellDiff
	OutcomeConfigError
	OutcomeError
)

var outcomeNames = map[Outcome]string{
	OutcomeEqual:            "equal",
	OutcomeSchemaMismatch:   "schema_mismatch",
	OutcomeRowCountMismatch: "row_count_mismatch",
	OutcomeKeyMismatch:      "key_mismatch",
	OutcomeDuplicateKeys:    "duplicate_keys",
	OutcomeCellDiff:         "cell_diff",
	OutcomeConfigError:      "config_error",
	OutcomeError:            "error",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(text []byte) error {
	for k, name := range outcomeNames {
		if name == string(text) {
			*o = k
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// Category groups outcomes for triage.
type Category string

const (
	CategoryIdentical   Category = "identical"
	CategoryBlocked     Category = "blocked"
	CategoryDifferences Category = "differences"
	CategoryFailed      Category = "failed"
)

// SchemaMismatch lists the fields present in only one snapshot.
type SchemaMismatch struct {
	OnlyInA []string `json:"only_in_a"`
	OnlyInB []string `json:"only_in_b"`
}

// RowCountMismatch records both row counts.
type RowCountMismatch struct {
	CountA int `json:"count_a"`
	CountB int `json:"count_b"`
}

// Report is the result of comparing one table. It is built once by the
// Comparer and not modified afterwards.
type Report struct {
	Table     string   `json:"table"`
	Outcome   Outcome  `json:"outcome"`
	KeyFields []string `json:"key_fields,omitempty"`

	Schema   *SchemaMismatch   `json:"schema,omitempty"`
	RowCount *RowCountMismatch `json:"row_count,omitempty"`

	OnlyInA []KeyedRow `json:"only_in_a,omitempty"`
	OnlyInB []KeyedRow `json:"only_in_b,omitempty"`
	DupsInA []KeyedRow `json:"dups_in_a,omitempty"`
	DupsInB []KeyedRow `json:"dups_in_b,omitempty"`

	Fields       []string     `json:"fields,omitempty"`
	ComparedRows int          `json:"compared_rows"`
	Changes      []CellChange `json:"changes,omitempty"`

	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Category triages the report: identical tables, tables whose structure
// blocked comparison, tables with findings, and tables that failed to run.
func (r *Report) Category() Category {
	switch r.Outcome {
	case OutcomeEqual:
		return CategoryIdentical
	case OutcomeSchemaMismatch, OutcomeRowCountMismatch:
		return CategoryBlocked
	case OutcomeKeyMismatch, OutcomeDuplicateKeys, OutcomeCellDiff:
		return CategoryDifferences
	default:
		return CategoryFailed
	}
}

// HasKeyMismatch reports whether rows were found in only one snapshot.
func (r *Report) HasKeyMismatch() bool {
	return len(r.OnlyInA) > 0 || len(r.OnlyInB) > 0
}

// HasDuplicates reports whether either snapshot contained duplicate keys.
func (r *Report) HasDuplicates() bool {
	return len(r.DupsInA) > 0 || len(r.DupsInB) > 0
}

// ChangedKeys returns the number of distinct keys with at least one changed cell.
func (r *Report) ChangedKeys() int {
	seen := make(map[string]struct{})
	for _, c := range r.Changes {
		seen[c.Key.id()] = struct{}{}
	}
	return len(seen)
}

// Run aggregates the reports of one comparison, one per table.
type Run struct {
	Tables   map[string]*Report `json:"tables"`
	Order    []string           `json:"order"`
	Started  time.Time          `json:"started"`
	Finished time.Time          `json:"finished"`
}

// Report returns the report for table, or nil.
func (r *Run) Report(table string) *Report {
	return r.Tables[table]
}

// Reports returns all reports in run order.
func (r *Run) Reports() []*Report {
	out := make([]*Report, 0, len(r.Order))
	for _, name := range r.Order {
		if rep, ok := r.Tables[name]; ok {
			out = append(out, rep)
		}
	}
	return out
}

// Summary groups the run's table names by category, each list sorted.
func (r *Run) Summary() map[Category][]string {
	sum := map[Category][]string{
		CategoryIdentical:   {},
		CategoryBlocked:     {},
		CategoryDifferences: {},
		CategoryFailed:      {},
	}
	for name, rep := range r.Tables {
		c := rep.Category()
		sum[c] = append(sum[c], name)
	}
	for _, names := range sum {
		sort.Strings(names)
	}
	return sum
}

// Identical reports whether every table in the run compared equal.
func (r *Run) Identical() bool {
	for _, rep := range r.Tables {
		if rep.Outcome != OutcomeEqual {
			return false
		}
	}
	return true
}
