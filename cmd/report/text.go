package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/airframesio/table-reconciler/cmd/reconcile"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

var (
	headingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#04B575"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00")).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
)

// IsTerminal reports whether w is a terminal, so callers can decide on
// styled output.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// TextWriter renders the run as a triage report: identical tables first,
// then tables whose structure blocked the comparison, tables with findings
// and tables that failed to run.
type TextWriter struct {
	MaxChanges int
	Color      bool
}

func (tw *TextWriter) paint(style lipgloss.Style, s string) string {
	if !tw.Color {
		return s
	}
	return style.Render(s)
}

func (tw *TextWriter) Write(w io.Writer, run *reconcile.Run) error {
	bw := bufio.NewWriter(w)
	sum := run.Summary()

	fmt.Fprintf(bw, "\n%s\n", rule)
	fmt.Fprintf(bw, "%s\n", tw.paint(headingStyle, "RECONCILIATION RESULTS"))
	fmt.Fprintf(bw, "%s\n", rule)
	fmt.Fprintf(bw, "Tables: %d  identical: %d  blocked: %d  differences: %d  failed: %d\n",
		len(run.Tables),
		len(sum[reconcile.CategoryIdentical]),
		len(sum[reconcile.CategoryBlocked]),
		len(sum[reconcile.CategoryDifferences]),
		len(sum[reconcile.CategoryFailed]))
	if !run.Finished.IsZero() && !run.Started.IsZero() {
		fmt.Fprintf(bw, "Duration: %s\n", run.Finished.Sub(run.Started).Round(time.Millisecond))
	}

	if names := sum[reconcile.CategoryIdentical]; len(names) > 0 {
		fmt.Fprintf(bw, "\n%s\n", tw.paint(okStyle, "✅ IDENTICAL"))
		for _, name := range names {
			rep := run.Report(name)
			fmt.Fprintf(bw, "  • %s (%d rows)\n", name, rep.ComparedRows)
		}
	}

	if names := sum[reconcile.CategoryBlocked]; len(names) > 0 {
		fmt.Fprintf(bw, "\n%s\n", tw.paint(warnStyle, "⛔ BLOCKED"))
		for _, name := range names {
			tw.writeBlocked(bw, run.Report(name))
		}
	}

	if names := sum[reconcile.CategoryDifferences]; len(names) > 0 {
		fmt.Fprintf(bw, "\n%s\n", tw.paint(warnStyle, "⚠️  DIFFERENCES"))
		for _, name := range names {
			tw.writeDifferences(bw, run.Report(name))
		}
	}

	if names := sum[reconcile.CategoryFailed]; len(names) > 0 {
		fmt.Fprintf(bw, "\n%s\n", tw.paint(failStyle, "❌ FAILED"))
		for _, name := range names {
			rep := run.Report(name)
			fmt.Fprintf(bw, "  • %s: %s: %s\n", name, rep.Outcome, rep.Err)
		}
	}

	fmt.Fprintf(bw, "\n%s\n", rule)
	return bw.Flush()
}

func (tw *TextWriter) writeBlocked(w io.Writer, rep *reconcile.Report) {
	switch {
	case rep.Schema != nil:
		fmt.Fprintf(w, "  • %s: schema mismatch\n", rep.Table)
		if len(rep.Schema.OnlyInA) > 0 {
			fmt.Fprintf(w, "      columns only in source 1: %s\n", strings.Join(rep.Schema.OnlyInA, ", "))
		}
		if len(rep.Schema.OnlyInB) > 0 {
			fmt.Fprintf(w, "      columns only in source 2: %s\n", strings.Join(rep.Schema.OnlyInB, ", "))
		}
	case rep.RowCount != nil:
		fmt.Fprintf(w, "  • %s: row count mismatch (source 1: %d rows, source 2: %d rows)\n",
			rep.Table, rep.RowCount.CountA, rep.RowCount.CountB)
	default:
		fmt.Fprintf(w, "  • %s: %s\n", rep.Table, rep.Outcome)
	}
}

func (tw *TextWriter) writeDifferences(w io.Writer, rep *reconcile.Report) {
	fmt.Fprintf(w, "\n  Table: %s (keys: %s)\n", rep.Table, strings.Join(rep.KeyFields, ", "))

	if rep.RowCount != nil {
		fmt.Fprintf(w, "    Row counts differ: source 1 has %d, source 2 has %d\n",
			rep.RowCount.CountA, rep.RowCount.CountB)
	}

	tw.writeKeyedRows(w, "Rows only in source 1", rep.OnlyInA)
	tw.writeKeyedRows(w, "Rows only in source 2", rep.OnlyInB)
	tw.writeKeyedRows(w, "Duplicate key rows in source 1", rep.DupsInA)
	tw.writeKeyedRows(w, "Duplicate key rows in source 2", rep.DupsInB)

	if len(rep.Changes) == 0 {
		fmt.Fprintf(w, "    Compared rows: %d, no changed cells\n", rep.ComparedRows)
		return
	}
	fmt.Fprintf(w, "    Compared rows: %d, changed cells: %d in %d rows\n",
		rep.ComparedRows, len(rep.Changes), rep.ChangedKeys())

	shown := rep.Changes
	if tw.MaxChanges > 0 && len(shown) > tw.MaxChanges {
		shown = shown[:tw.MaxChanges]
	}
	for _, c := range shown {
		fmt.Fprintf(w, "      • %s %s: %s → %s\n", c.Key, c.Field, display(c.Old), display(c.New))
	}
	if rest := len(rep.Changes) - len(shown); rest > 0 {
		fmt.Fprintf(w, "      %s\n", tw.paint(mutedStyle, fmt.Sprintf("... and %d more changes", rest)))
	}
}

func (tw *TextWriter) writeKeyedRows(w io.Writer, label string, rows []reconcile.KeyedRow) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(w, "    %s: %d\n", label, len(rows))

	shown := rows
	if tw.MaxChanges > 0 && len(shown) > tw.MaxChanges {
		shown = shown[:tw.MaxChanges]
	}
	for _, r := range shown {
		fmt.Fprintf(w, "      • %s\n", r.Key)
	}
	if rest := len(rows) - len(shown); rest > 0 {
		fmt.Fprintf(w, "      %s\n", tw.paint(mutedStyle, fmt.Sprintf("... and %d more", rest)))
	}
}
