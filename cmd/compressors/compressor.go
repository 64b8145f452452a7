package compressors

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrUnsupportedCompression is returned when an unsupported compression type is requested
var ErrUnsupportedCompression = errors.New("unsupported compression type")

// Compression names accepted by GetCompressor
const (
	Zstd = "zstd"
	LZ4  = "lz4"
	Gzip = "gzip"
	None = "none"
)

// Compressor defines the interface for compression handlers
type Compressor interface {
	// Compress compresses the input data
	Compress(data []byte, level int) ([]byte, error)

	// NewWriter wraps w so that everything written to it is compressed
	NewWriter(w io.Writer, level int) (io.WriteCloser, error)

	// NewReader wraps r so that reads return decompressed data
	NewReader(r io.Reader) (io.ReadCloser, error)

	// Extension returns the file extension for this compression (e.g., ".zst", ".lz4", ".gz")
	Extension() string

	// DefaultLevel returns the default compression level
	DefaultLevel() int
}

// GetCompressor returns the appropriate compressor based on the compression string
func GetCompressor(compression string) (Compressor, error) {
	switch compression {
	case Zstd:
		return NewZstdCompressor(), nil
	case LZ4:
		return NewLZ4Compressor(), nil
	case Gzip:
		return NewGzipCompressor(), nil
	case None, "":
		return NewNoneCompressor(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, compression)
	}
}

// DetectCompression returns the compression implied by a file name's final
// extension and the name with that extension removed.
func DetectCompression(filename string) (string, string) {
	for _, c := range []Compressor{NewZstdCompressor(), NewLZ4Compressor(), NewGzipCompressor()} {
		if strings.HasSuffix(filename, c.Extension()) {
			name := Zstd
			switch c.(type) {
			case *LZ4Compressor:
				name = LZ4
			case *GzipCompressor:
				name = Gzip
			}
			return name, strings.TrimSuffix(filename, c.Extension())
		}
	}
	return None, filename
}
