package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/airframesio/table-reconciler/cmd/reconcile"
	"github.com/xuri/excelize/v2"
)

// Excel limits sheet names to 31 characters.
const maxSheetName = 31

const summarySheet = "summary"

var summaryHeader = []any{
	"table", "outcome", "category", "key_fields", "compared_rows",
	"only_in_source1", "only_in_source2", "dups_in_source1", "dups_in_source2",
	"changed_cells", "error",
}

// ExcelWriter produces a workbook with a summary sheet and, per table,
// sheets for rows present on one side (<table>_keys_0/1), duplicate key
// groups (<table>_dups_0/1) and changed cells (<table>_diff).
type ExcelWriter struct{}

func (ew *ExcelWriter) Write(w io.Writer, run *reconcile.Run) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	sb := &sheetBook{file: f, bold: bold, used: map[string]bool{summarySheet: true}}

	summary := [][]any{summaryHeader}
	for _, rep := range run.Reports() {
		summary = append(summary, []any{
			rep.Table,
			rep.Outcome.String(),
			string(rep.Category()),
			strings.Join(rep.KeyFields, ", "),
			rep.ComparedRows,
			len(rep.OnlyInA),
			len(rep.OnlyInB),
			len(rep.DupsInA),
			len(rep.DupsInB),
			len(rep.Changes),
			rep.Err,
		})
	}
	if err := sb.fill(summarySheet, summary); err != nil {
		return err
	}

	for _, rep := range run.Reports() {
		if err := sb.addKeyedRows(rep.Table, "_keys_0", rep.OnlyInA, rep.KeyFields); err != nil {
			return err
		}
		if err := sb.addKeyedRows(rep.Table, "_keys_1", rep.OnlyInB, rep.KeyFields); err != nil {
			return err
		}
		if err := sb.addKeyedRows(rep.Table, "_dups_0", rep.DupsInA, rep.KeyFields); err != nil {
			return err
		}
		if err := sb.addKeyedRows(rep.Table, "_dups_1", rep.DupsInB, rep.KeyFields); err != nil {
			return err
		}
		if err := sb.addChanges(rep.Table, rep); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

type sheetBook struct {
	file *excelize.File
	bold int
	used map[string]bool
}

func (sb *sheetBook) addKeyedRows(table, suffix string, rows []reconcile.KeyedRow, keyFields []string) error {
	if len(rows) == 0 {
		return nil
	}
	cols := rowColumns(rows, keyFields)

	data := make([][]any, 0, len(rows)+1)
	data = append(data, toAny(cols))
	for _, r := range rows {
		line := make([]any, len(cols))
		for i, c := range cols {
			line[i] = cellValue(r.Row[c])
		}
		data = append(data, line)
	}
	return sb.newSheet(table, suffix, data)
}

func (sb *sheetBook) addChanges(table string, rep *reconcile.Report) error {
	if len(rep.Changes) == 0 {
		return nil
	}

	header := toAny(rep.KeyFields)
	header = append(header, "field", "old", "new")

	data := make([][]any, 0, len(rep.Changes)+1)
	data = append(data, header)
	for _, c := range rep.Changes {
		line := toAny(c.Key.Strings())
		line = append(line, c.Field, cellValue(c.Old), cellValue(c.New))
		data = append(data, line)
	}
	return sb.newSheet(table, "_diff", data)
}

func (sb *sheetBook) newSheet(table, suffix string, data [][]any) error {
	name := sb.uniqueName(table, suffix)
	if _, err := sb.file.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", name, err)
	}
	return sb.fill(name, data)
}

func (sb *sheetBook) fill(sheet string, data [][]any) error {
	for i, line := range data {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := line
		if err := sb.file.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write sheet %s: %w", sheet, err)
		}
	}
	if len(data) > 0 {
		if err := sb.file.SetRowStyle(sheet, 1, 1, sb.bold); err != nil {
			return fmt.Errorf("failed to style sheet %s: %w", sheet, err)
		}
	}
	return nil
}

// uniqueName builds the sheet name for a table and a suffix such as
// _keys_0. The table part is truncated so the suffix survives, and the name
// is numbered when the truncated form is already taken.
func (sb *sheetBook) uniqueName(table, suffix string) string {
	candidate := sheetName(table, suffix)
	for i := 2; sb.used[candidate]; i++ {
		candidate = sheetName(table, suffix+"~"+strconv.Itoa(i))
	}
	sb.used[candidate] = true
	return candidate
}

func sheetName(table, suffix string) string {
	if limit := maxSheetName - len(suffix); len(table) > limit {
		table = table[:limit]
	}
	return table + suffix
}

func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string, int, int64, float64, bool:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
