package formatters

import (
	"fmt"
	"io"
	"sort"

	"github.com/parquet-go/parquet-go"
)

// ParquetFormatter handles Parquet format. Every column is written as an
// optional UTF-8 string, matching how the model store keeps its values.
type ParquetFormatter struct {
	compression string
}

// NewParquetFormatter creates a new Parquet formatter
func NewParquetFormatter() *ParquetFormatter {
	return &ParquetFormatter{
		compression: "snappy", // Default Parquet compression
	}
}

// NewParquetFormatterWithCompression creates a Parquet formatter with specified compression
func NewParquetFormatterWithCompression(compression string) *ParquetFormatter {
	return &ParquetFormatter{
		compression: compression,
	}
}

// NewWriter creates a Parquet writer for the given columns
func (f *ParquetFormatter) NewWriter(w io.Writer, columns []string) (RowWriter, error) {
	schema := buildStringSchema(columns)

	// Group fields are laid out in name order; map each leaf to its index
	index := make(map[string]int, len(columns))
	for i, path := range schema.Columns() {
		if len(path) > 0 {
			index[path[len(path)-1]] = i
		}
	}

	writer := parquet.NewWriter(w, schema, f.codec())
	return &parquetStreamWriter{writer: writer, index: index, width: len(index)}, nil
}

// NewReader creates a Parquet reader
func (f *ParquetFormatter) NewReader(r io.Reader) (RowReader, error) {
	reader, err := NewParquetReader(r)
	if err != nil {
		return nil, err
	}
	return reader, nil
}

// codec maps the compression name to a parquet codec
func (f *ParquetFormatter) codec() parquet.WriterOption {
	switch f.compression {
	case "zstd":
		return parquet.Compression(&parquet.Zstd)
	case "gzip":
		return parquet.Compression(&parquet.Gzip)
	case "lz4":
		return parquet.Compression(&parquet.Lz4Raw)
	case "none":
		return parquet.Compression(&parquet.Uncompressed)
	default:
		// Default to Snappy (standard for Parquet)
		return parquet.Compression(&parquet.Snappy)
	}
}

// buildStringSchema creates a flat schema with one optional string leaf per column
func buildStringSchema(columns []string) *parquet.Schema {
	sorted := append([]string(nil), columns...)
	sort.Strings(sorted)

	fields := make(parquet.Group, len(sorted))
	for _, col := range sorted {
		fields[col] = parquet.Optional(parquet.String())
	}
	return parquet.NewSchema("model_table", fields)
}

// Extension returns the file extension for Parquet files
func (f *ParquetFormatter) Extension() string {
	return ".parquet"
}

// MIMEType returns the MIME type for Parquet
func (f *ParquetFormatter) MIMEType() string {
	return "application/vnd.apache.parquet"
}

// parquetStreamWriter implements RowWriter for Parquet format
type parquetStreamWriter struct {
	writer *parquet.Writer
	index  map[string]int
	width  int
}

// WriteRows converts each map into a parquet row and writes it
func (w *parquetStreamWriter) WriteRows(rows []map[string]any) error {
	batch := make([]parquet.Row, 0, len(rows))
	for _, row := range rows {
		prow := make(parquet.Row, w.width)
		for i := range prow {
			prow[i] = parquet.NullValue().Level(0, 0, i)
		}
		for col, i := range w.index {
			if text, ok := cellText(row[col]); ok {
				prow[i] = parquet.ByteArrayValue([]byte(text)).Level(0, 1, i)
			}
		}
		batch = append(batch, prow)
	}

	if _, err := w.writer.WriteRows(batch); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	return nil
}

// Close flushes row groups and writes the footer
func (w *parquetStreamWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}
