package formatters

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// JSONLReader reads JSONL format (one JSON object per line). Numbers are
// kept as json.Number so their text is not altered by float conversion.
type JSONLReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	columns map[string]struct{}
}

// NewJSONLReader creates a new JSONL reader
func NewJSONLReader(r io.Reader) *JSONLReader {
	scanner := bufio.NewScanner(r)
	// model rows can be wide
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	jr := &JSONLReader{scanner: scanner, columns: make(map[string]struct{})}
	if c, ok := r.(io.Closer); ok {
		jr.closer = c
	}
	return jr
}

// Columns returns the sorted union of keys of all rows read so far
func (r *JSONLReader) Columns() []string {
	cols := make([]string, 0, len(r.columns))
	for c := range r.columns {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// ReadChunk reads up to chunkSize rows from the JSONL stream
func (r *JSONLReader) ReadChunk(chunkSize int) ([]map[string]any, error) {
	var rows []map[string]any

	for (chunkSize <= 0 || len(rows) < chunkSize) && r.scanner.Scan() {
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue // Skip empty lines
		}

		decoder := json.NewDecoder(bytes.NewReader(line))
		decoder.UseNumber()

		var row map[string]any
		if err := decoder.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to parse JSON line: %w", err)
		}
		for c := range row {
			r.columns[c] = struct{}{}
		}

		rows = append(rows, row)
	}

	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}

	return rows, nil
}

// ReadAll reads all remaining rows from the JSONL stream
func (r *JSONLReader) ReadAll() ([]map[string]any, error) {
	return r.ReadChunk(0)
}

// Close closes the underlying reader if it's closable
func (r *JSONLReader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
