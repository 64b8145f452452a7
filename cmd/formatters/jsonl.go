package formatters

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONLFormatter handles JSONL (JSON Lines) format, one object per line
type JSONLFormatter struct{}

// NewJSONLFormatter creates a new JSONL formatter
func NewJSONLFormatter() *JSONLFormatter {
	return &JSONLFormatter{}
}

// NewWriter creates a new JSONL stream writer. Columns are not recorded, so
// a table without rows reads back without a schema.
func (f *JSONLFormatter) NewWriter(w io.Writer, _ []string) (RowWriter, error) {
	return &jsonlStreamWriter{encoder: json.NewEncoder(w)}, nil
}

// NewReader creates a new JSONL reader
func (f *JSONLFormatter) NewReader(r io.Reader) (RowReader, error) {
	return NewJSONLReader(r), nil
}

// Extension returns the file extension for JSONL files
func (f *JSONLFormatter) Extension() string {
	return ".jsonl"
}

// MIMEType returns the MIME type for JSONL
func (f *JSONLFormatter) MIMEType() string {
	return "application/x-ndjson"
}

// jsonlStreamWriter implements RowWriter for JSONL format
type jsonlStreamWriter struct {
	encoder *json.Encoder
}

// WriteRows writes a chunk of rows in JSONL format
func (w *jsonlStreamWriter) WriteRows(rows []map[string]any) error {
	for _, row := range rows {
		// Encoder appends the newline
		if err := w.encoder.Encode(row); err != nil {
			return fmt.Errorf("failed to encode JSON line: %w", err)
		}
	}
	return nil
}

// Close finalizes the JSONL output (no-op for JSONL)
func (w *jsonlStreamWriter) Close() error {
	return nil
}
