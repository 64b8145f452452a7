package formatters

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// ParquetReader reads Parquet format
type ParquetReader struct {
	file    *parquet.File
	closer  io.Closer
	columns []string
	done    bool
}

// NewParquetReader creates a new Parquet reader
// Note: Parquet requires io.ReaderAt, so we read the entire file into memory
func NewParquetReader(r io.Reader) (*ParquetReader, error) {
	var closer io.Closer
	if c, ok := r.(io.Closer); ok {
		closer = c
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet data: %w", err)
	}

	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	// Use the last path component as the column name
	var columns []string
	for _, path := range file.Schema().Columns() {
		if len(path) > 0 {
			columns = append(columns, path[len(path)-1])
		}
	}

	return &ParquetReader{file: file, closer: closer, columns: columns}, nil
}

// Columns returns the leaf column names in schema order
func (r *ParquetReader) Columns() []string {
	return r.columns
}

// ReadChunk returns all rows on the first call and nothing afterwards;
// row groups are already fully in memory
func (r *ParquetReader) ReadChunk(_ int) ([]map[string]any, error) {
	return r.ReadAll()
}

// ReadAll reads every row of every row group
func (r *ParquetReader) ReadAll() ([]map[string]any, error) {
	if r.done {
		return nil, nil
	}
	r.done = true

	var rows []map[string]any
	for _, rowGroup := range r.file.RowGroups() {
		groupRows, err := r.readGroup(rowGroup)
		if err != nil {
			return nil, err
		}
		rows = append(rows, groupRows...)
	}
	return rows, nil
}

func (r *ParquetReader) readGroup(rowGroup parquet.RowGroup) ([]map[string]any, error) {
	rowReader := rowGroup.Rows()
	defer rowReader.Close()

	var rows []map[string]any
	batch := make([]parquet.Row, 1000)
	for {
		n, err := rowReader.ReadRows(batch)
		for _, prow := range batch[:n] {
			rows = append(rows, r.toMap(prow))
		}
		if errors.Is(err, io.EOF) || (err == nil && n == 0) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
}

// toMap converts a parquet row into a map keyed by column name
func (r *ParquetReader) toMap(prow parquet.Row) map[string]any {
	row := make(map[string]any, len(r.columns))
	for _, val := range prow {
		i := val.Column()
		if i < 0 || i >= len(r.columns) {
			continue
		}
		name := r.columns[i]
		if val.IsNull() {
			row[name] = nil
			continue
		}
		switch val.Kind() {
		case parquet.Boolean:
			row[name] = val.Boolean()
		case parquet.Int32:
			row[name] = val.Int32()
		case parquet.Int64:
			row[name] = val.Int64()
		case parquet.Float:
			row[name] = val.Float()
		case parquet.Double:
			row[name] = val.Double()
		default:
			row[name] = string(val.ByteArray())
		}
	}
	return row
}

// Close closes the underlying reader
func (r *ParquetReader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
