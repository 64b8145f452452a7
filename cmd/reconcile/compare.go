package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/errgroup"
)

// DuplicatePolicy decides what happens after duplicate keys are found.
type DuplicatePolicy string

const (
	// DuplicatesExclude reports duplicate groups and compares the rest.
	DuplicatesExclude DuplicatePolicy = "exclude"
	// DuplicatesHalt reports duplicate groups and skips the cell diff.
	DuplicatesHalt DuplicatePolicy = "halt"
)

// RowCountPolicy decides what happens when row counts differ.
type RowCountPolicy string

const (
	// RowCountHalt stops at the row-count guard.
	RowCountHalt RowCountPolicy = "halt"
	// RowCountContinue records the mismatch and resolves keys anyway.
	RowCountContinue RowCountPolicy = "continue"
)

// Pair holds both snapshots of one table. A non-nil Err means the snapshots
// could not be materialized; the table is reported as failed.
type Pair struct {
	Table string
	A, B  Table
	Err   error
}

// Option configures a Comparer.
type Option func(*Comparer)

// WithNormalizer sets the value normalizer.
func WithNormalizer(n Normalizer) Option {
	return func(c *Comparer) { c.normalizer = n }
}

// WithDuplicatePolicy sets the duplicate-key policy.
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(c *Comparer) { c.duplicates = p }
}

// WithRowCountPolicy sets the row-count policy.
func WithRowCountPolicy(p RowCountPolicy) Option {
	return func(c *Comparer) { c.rowCount = p }
}

// WithWorkers bounds the number of tables compared at once.
func WithWorkers(n int) Option {
	return func(c *Comparer) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Comparer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithProgress registers a callback invoked once per finished table. It is
// called from worker goroutines and must be safe for concurrent use.
func WithProgress(fn func(*Report)) Option {
	return func(c *Comparer) { c.progress = fn }
}

// Comparer runs the guard sequence for each table of a run.
type Comparer struct {
	registry   Registry
	normalizer Normalizer
	duplicates DuplicatePolicy
	rowCount   RowCountPolicy
	workers    int
	logger     *slog.Logger
	progress   func(*Report)
}

// NewComparer creates a Comparer for the tables in reg.
func NewComparer(reg Registry, opts ...Option) *Comparer {
	c := &Comparer{
		registry:   reg,
		normalizer: DefaultNormalizer,
		duplicates: DuplicatesExclude,
		rowCount:   RowCountHalt,
		workers:    4,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompareTable runs the guards for one table and returns its report:
// schema, key-field presence, row count, keys and duplicates, then the cell
// diff on the rows that survive. The outcome is the first guard that did not
// pass; findings of the advisory key and duplicate guards are kept alongside
// the cell diff.
func (c *Comparer) CompareTable(name string, a, b Table) *Report {
	start := time.Now()
	rep := c.compareTable(name, a, b)
	rep.Duration = time.Since(start)
	return rep
}

func (c *Comparer) compareTable(name string, a, b Table) *Report {
	rep := &Report{Table: name}

	keyFields, err := c.registry.Keys(name)
	if err != nil {
		rep.Outcome = OutcomeConfigError
		rep.Err = err.Error()
		return rep
	}
	rep.KeyFields = append([]string(nil), keyFields...)

	// A side without a schema is an empty table; the other side decides
	// the field set.
	schema := a
	switch {
	case a.SchemaKnown() && b.SchemaKnown():
		if onlyA, onlyB := diffFields(a.Columns(), b.Columns()); len(onlyA) > 0 || len(onlyB) > 0 {
			c.logger.Debug(fmt.Sprintf("%s: schema mismatch (%d only in A, %d only in B)", name, len(onlyA), len(onlyB)))
			rep.Outcome = OutcomeSchemaMismatch
			rep.Schema = &SchemaMismatch{OnlyInA: onlyA, OnlyInB: onlyB}
			return rep
		}
	case !a.SchemaKnown():
		schema = b
		c.logger.Debug(fmt.Sprintf("%s: no schema in A, using the fields of B", name))
	default:
		c.logger.Debug(fmt.Sprintf("%s: no schema in B, using the fields of A", name))
	}
	rep.Fields = schema.Columns()

	if schema.SchemaKnown() {
		for _, f := range keyFields {
			if !schema.HasColumn(f) {
				rep.Outcome = OutcomeConfigError
				rep.Err = fmt.Errorf("%w: %s.%s", ErrKeyFieldMissing, name, f).Error()
				return rep
			}
		}
	}

	if a.Len() != b.Len() {
		c.logger.Debug(fmt.Sprintf("%s: row count mismatch (%d vs %d)", name, a.Len(), b.Len()))
		rep.RowCount = &RowCountMismatch{CountA: a.Len(), CountB: b.Len()}
		if c.rowCount != RowCountContinue {
			rep.Outcome = OutcomeRowCountMismatch
			return rep
		}
	}

	res := c.normalizer.ResolveKeys(a, b, keyFields)
	rep.OnlyInA, rep.OnlyInB = res.OnlyInA, res.OnlyInB
	rep.DupsInA, rep.DupsInB = res.DupsInA, res.DupsInB
	if rep.HasDuplicates() {
		c.logger.Debug(fmt.Sprintf("%s: %d duplicate rows in A, %d in B", name, len(res.DupsInA), len(res.DupsInB)))
	}

	if !(rep.HasDuplicates() && c.duplicates == DuplicatesHalt) {
		alignedA, alignedB := Align(res, rep.Fields)
		rep.ComparedRows = alignedA.Len()
		rep.Changes = c.normalizer.DiffCells(alignedA, alignedB)
	}

	switch {
	case rep.RowCount != nil:
		rep.Outcome = OutcomeRowCountMismatch
	case rep.HasKeyMismatch():
		rep.Outcome = OutcomeKeyMismatch
	case rep.HasDuplicates():
		rep.Outcome = OutcomeDuplicateKeys
	case len(rep.Changes) > 0:
		rep.Outcome = OutcomeCellDiff
	default:
		rep.Outcome = OutcomeEqual
	}
	return rep
}

// Run compares every pair concurrently and returns a report for each, in
// the order given. A panic or load error in one table is recorded in that
// table's report and never affects the others. Tables not yet started when
// ctx is cancelled are reported as failed.
func (c *Comparer) Run(ctx context.Context, pairs []Pair) *Run {
	run := &Run{
		Tables:  make(map[string]*Report, len(pairs)),
		Order:   make([]string, len(pairs)),
		Started: time.Now(),
	}

	reports := make([]*Report, len(pairs))
	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, pair := range pairs {
		i, pair := i, pair
		run.Order[i] = pair.Table
		g.Go(func() error {
			reports[i] = c.runPair(ctx, pair)
			c.notify(reports[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, rep := range reports {
		run.Tables[rep.Table] = rep
		c.logger.Debug(fmt.Sprintf("%s: %s (%d changes) in %s", rep.Table, rep.Outcome, len(rep.Changes), rep.Duration))
	}
	run.Finished = time.Now()
	return run
}

// notify passes a finished report to the progress callback. A panicking
// callback is logged and does not stop the run.
func (c *Comparer) notify(rep *Report) {
	if c.progress == nil {
		return
	}
	var pc panics.Catcher
	pc.Try(func() { c.progress(rep) })
	if r := pc.Recovered(); r != nil {
		c.logger.Error(fmt.Sprintf("%s: progress callback panicked: %v", rep.Table, r.Value))
	}
}

func (c *Comparer) runPair(ctx context.Context, pair Pair) *Report {
	if err := ctx.Err(); err != nil {
		return &Report{Table: pair.Table, Outcome: OutcomeError, Err: err.Error()}
	}
	if pair.Err != nil {
		return &Report{Table: pair.Table, Outcome: OutcomeError, Err: pair.Err.Error()}
	}

	var rep *Report
	var pc panics.Catcher
	pc.Try(func() {
		rep = c.CompareTable(pair.Table, pair.A, pair.B)
	})
	if r := pc.Recovered(); r != nil {
		c.logger.Error(fmt.Sprintf("%s: comparison panicked: %v", pair.Table, r.Value))
		return &Report{Table: pair.Table, Outcome: OutcomeError, Err: fmt.Sprintf("panic: %v", r.Value)}
	}
	return rep
}
