// Package report renders a reconciliation run for people: a terminal
// summary, a JSON document for tooling and an Excel workbook for review.
package report

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/airframesio/table-reconciler/cmd/reconcile"
)

// Report format constants
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatExcel = "excel"
)

// ErrUnsupportedFormat is returned for unknown report formats
var ErrUnsupportedFormat = errors.New("unsupported report format")

// Writer renders a run to w.
type Writer interface {
	Write(w io.Writer, run *reconcile.Run) error
}

// Options tune the writers built by New.
type Options struct {
	// MaxChanges caps the listed cell changes and only-in keys per table
	// in the text report (0 = unlimited)
	MaxChanges int
	// Color enables lipgloss styling in the text report
	Color bool
}

// New returns the writer for format.
func New(format string, opts Options) (Writer, error) {
	switch format {
	case FormatText, "":
		return &TextWriter{MaxChanges: opts.MaxChanges, Color: opts.Color}, nil
	case FormatJSON:
		return &JSONWriter{Indent: true}, nil
	case FormatExcel, "xlsx":
		return &ExcelWriter{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// display renders a raw cell value the way it was read.
func display(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// rowColumns returns the union of the rows' columns with the key fields
// first and the rest sorted.
func rowColumns(rows []reconcile.KeyedRow, keyFields []string) []string {
	seen := make(map[string]struct{})
	for _, k := range keyFields {
		seen[k] = struct{}{}
	}
	var rest []string
	for _, r := range rows {
		for c := range r.Row {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				rest = append(rest, c)
			}
		}
	}
	sort.Strings(rest)
	return append(append([]string{}, keyFields...), rest...)
}
