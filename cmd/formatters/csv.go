package formatters

import (
	"encoding/csv"
	"fmt"
	"io"
)

// CSVFormatter handles CSV format output
type CSVFormatter struct{}

// NewCSVFormatter creates a new CSV formatter
func NewCSVFormatter() *CSVFormatter {
	return &CSVFormatter{}
}

// NewWriter creates a new CSV stream writer and writes the header row
func (f *CSVFormatter) NewWriter(w io.Writer, columns []string) (RowWriter, error) {
	csvWriter := csv.NewWriter(w)

	// Write header immediately
	if err := csvWriter.Write(columns); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	return &csvStreamWriter{
		writer:  csvWriter,
		columns: append([]string(nil), columns...),
	}, nil
}

// NewReader creates a new CSV reader
func (f *CSVFormatter) NewReader(r io.Reader) (RowReader, error) {
	return NewCSVReader(r)
}

// Extension returns the file extension for CSV files
func (f *CSVFormatter) Extension() string {
	return ".csv"
}

// MIMEType returns the MIME type for CSV
func (f *CSVFormatter) MIMEType() string {
	return "text/csv"
}

// csvStreamWriter implements RowWriter for CSV format
type csvStreamWriter struct {
	writer  *csv.Writer
	columns []string
}

// WriteRows writes a chunk of rows in CSV format. Null cells are written as
// empty fields.
func (w *csvStreamWriter) WriteRows(rows []map[string]any) error {
	for _, row := range rows {
		record := make([]string, len(w.columns))
		for i, col := range w.columns {
			record[i], _ = cellText(row[col])
		}

		if err := w.writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	return nil
}

// Close finalizes the CSV output by flushing the writer
func (w *csvStreamWriter) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}
