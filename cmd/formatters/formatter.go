package formatters

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Format type constants
const (
	FormatJSONL   = "jsonl"
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// ErrUnsupportedFormat is returned for unknown format names or extensions
var ErrUnsupportedFormat = errors.New("unsupported format")

// RowWriter writes rows to an underlying stream. Close flushes buffered
// output but does not close the stream.
type RowWriter interface {
	WriteRows(rows []map[string]any) error
	Close() error
}

// RowReader reads rows from an underlying stream
type RowReader interface {
	// Columns returns the column names known to the reader, in file order
	// where the format records one
	Columns() []string
	ReadChunk(chunkSize int) ([]map[string]any, error)
	ReadAll() ([]map[string]any, error)
	Close() error
}

// Formatter encodes and decodes one file format
type Formatter interface {
	// NewWriter starts a stream of rows with the given column order
	NewWriter(w io.Writer, columns []string) (RowWriter, error)

	// NewReader opens a stream of rows
	NewReader(r io.Reader) (RowReader, error)

	// Extension returns the file extension for this format (e.g., ".jsonl", ".csv", ".parquet")
	Extension() string

	// MIMEType returns the MIME type for this format
	MIMEType() string
}

// GetFormatter returns the appropriate formatter based on the format string
func GetFormatter(format string) (Formatter, error) {
	return GetFormatterWithCompression(format, "")
}

// GetFormatterWithCompression returns the appropriate formatter with compression settings
// For Parquet, this enables internal compression. For other formats, compression parameter is ignored.
func GetFormatterWithCompression(format string, compression string) (Formatter, error) {
	switch format {
	case FormatJSONL, "":
		return NewJSONLFormatter(), nil
	case FormatCSV:
		return NewCSVFormatter(), nil
	case FormatParquet:
		if compression == "" {
			return NewParquetFormatter(), nil
		}
		return NewParquetFormatterWithCompression(compression), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// UsesInternalCompression returns true if the format handles compression internally
func UsesInternalCompression(format string) bool {
	return format == FormatParquet
}

// DetectFormat returns the format implied by a file name's extension. Any
// compression extension must already be stripped.
func DetectFormat(filename string) (string, error) {
	switch {
	case strings.HasSuffix(filename, ".jsonl"), strings.HasSuffix(filename, ".ndjson"):
		return FormatJSONL, nil
	case strings.HasSuffix(filename, ".csv"):
		return FormatCSV, nil
	case strings.HasSuffix(filename, ".parquet"):
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
}

// cellText renders a cell the way the model store keeps it: as text. The
// second return is false for nil.
func cellText(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	default:
		return fmt.Sprintf("%v", t), true
	}
}
