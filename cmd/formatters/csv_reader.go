package formatters

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// CSVReader reads CSV format with a header row. Cells are returned as text;
// empty fields are returned as nil.
type CSVReader struct {
	reader   *csv.Reader
	closer   io.Closer
	headers  []string
	readOnce bool
}

// NewCSVReader creates a new CSV reader
func NewCSVReader(r io.Reader) (*CSVReader, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	cr := &CSVReader{reader: reader}
	if c, ok := r.(io.Closer); ok {
		cr.closer = c
	}
	return cr, nil
}

// readHeaders reads the header row if not already read
func (r *CSVReader) readHeaders() error {
	if r.readOnce {
		return nil
	}

	headers, err := r.reader.Read()
	if errors.Is(err, io.EOF) {
		// empty file: no columns, no rows
		r.readOnce = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	r.headers = headers
	r.readOnce = true
	return nil
}

// Columns returns the header row
func (r *CSVReader) Columns() []string {
	_ = r.readHeaders()
	return r.headers
}

// ReadChunk reads up to chunkSize rows; a short or empty result means the
// stream is exhausted
func (r *CSVReader) ReadChunk(chunkSize int) ([]map[string]any, error) {
	if err := r.readHeaders(); err != nil {
		return nil, err
	}

	var rows []map[string]any
	for chunkSize <= 0 || len(rows) < chunkSize {
		record, err := r.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		row := make(map[string]any, len(r.headers))
		for i, header := range r.headers {
			if i >= len(record) || record[i] == "" {
				row[header] = nil
				continue
			}
			row[header] = record[i]
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// ReadAll reads all remaining rows from the CSV stream
func (r *CSVReader) ReadAll() ([]map[string]any, error) {
	return r.ReadChunk(0)
}

// Close closes the underlying reader if it's closable
func (r *CSVReader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
