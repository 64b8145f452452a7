// Package snapshot materializes model tables from a database, a local
// directory or an S3 bucket, and writes them back.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/airframesio/table-reconciler/cmd/compressors"
	"github.com/airframesio/table-reconciler/cmd/formatters"
	"github.com/airframesio/table-reconciler/cmd/reconcile"
)

var (
	ErrSnapshotNotFound  = errors.New("snapshot file not found")
	ErrAmbiguousSnapshot = errors.New("more than one snapshot file matches table")
)

// Fetcher returns every row of a named table.
type Fetcher interface {
	Fetch(ctx context.Context, table string) (reconcile.Table, error)
}

// Sink fully replaces the stored contents of a table.
type Sink interface {
	Put(ctx context.Context, table reconcile.Table) error
}

// Codec is the file format and compression of a snapshot file.
type Codec struct {
	Format      string
	Compression string
	Level       int
}

// Extension returns the file suffix for the codec, e.g. ".jsonl.zst".
// Parquet compresses internally and never gets an outer extension.
func (c Codec) Extension() (string, error) {
	f, err := c.formatter()
	if err != nil {
		return "", err
	}
	if formatters.UsesInternalCompression(c.Format) {
		return f.Extension(), nil
	}
	comp, err := compressors.GetCompressor(c.Compression)
	if err != nil {
		return "", err
	}
	return f.Extension() + comp.Extension(), nil
}

// Filename returns the snapshot file name of table.
func (c Codec) Filename(table string) (string, error) {
	ext, err := c.Extension()
	if err != nil {
		return "", err
	}
	return table + ext, nil
}

func (c Codec) formatter() (formatters.Formatter, error) {
	if formatters.UsesInternalCompression(c.Format) {
		return formatters.GetFormatterWithCompression(c.Format, c.Compression)
	}
	return formatters.GetFormatter(c.Format)
}

// DetectCodec derives the codec from a file name such as
// "facilities.csv.zst". Overrides, when non-empty, win over detection.
func DetectCodec(filename, overrideFormat, overrideCompression string) (Codec, error) {
	compression, rest := compressors.DetectCompression(filename)
	format, err := formatters.DetectFormat(rest)
	if err != nil && overrideFormat == "" {
		return Codec{}, err
	}
	if overrideFormat != "" {
		format = overrideFormat
	}
	if overrideCompression != "" {
		compression = overrideCompression
	}
	return Codec{Format: format, Compression: compression}, nil
}

// tableName strips the codec extension from a file's base name.
func tableName(base string) string {
	_, rest := compressors.DetectCompression(base)
	for _, ext := range []string{".jsonl", ".ndjson", ".csv", ".parquet"} {
		if len(rest) > len(ext) && rest[len(rest)-len(ext):] == ext {
			return rest[:len(rest)-len(ext)]
		}
	}
	return ""
}

// Decode reads a whole snapshot file into a table.
func Decode(name string, r io.Reader, codec Codec) (reconcile.Table, error) {
	f, err := codec.formatter()
	if err != nil {
		return reconcile.Table{}, err
	}

	src := r
	if !formatters.UsesInternalCompression(codec.Format) {
		comp, err := compressors.GetCompressor(codec.Compression)
		if err != nil {
			return reconcile.Table{}, err
		}
		dr, err := comp.NewReader(r)
		if err != nil {
			return reconcile.Table{}, fmt.Errorf("failed to create decompression reader: %w", err)
		}
		defer dr.Close()
		src = dr
	}

	reader, err := f.NewReader(src)
	if err != nil {
		return reconcile.Table{}, fmt.Errorf("failed to open %s reader: %w", codec.Format, err)
	}
	raw, err := reader.ReadAll()
	if err != nil {
		return reconcile.Table{}, fmt.Errorf("failed to read %s: %w", codec.Format, err)
	}

	rows := make([]reconcile.Row, len(raw))
	for i, m := range raw {
		rows[i] = reconcile.Row(m)
	}
	return reconcile.NewTable(name, reader.Columns(), rows), nil
}

// Encode writes a table as one snapshot file.
func Encode(w io.Writer, t reconcile.Table, codec Codec) error {
	f, err := codec.formatter()
	if err != nil {
		return err
	}

	dst := io.Writer(w)
	var cw io.WriteCloser
	if !formatters.UsesInternalCompression(codec.Format) {
		comp, err := compressors.GetCompressor(codec.Compression)
		if err != nil {
			return err
		}
		level := codec.Level
		if level == 0 {
			level = comp.DefaultLevel()
		}
		cw, err = comp.NewWriter(w, level)
		if err != nil {
			return fmt.Errorf("failed to create compression writer: %w", err)
		}
		dst = cw
	}

	columns := t.Fields
	if len(columns) == 0 {
		columns = t.Columns()
	}
	rw, err := f.NewWriter(dst, columns)
	if err != nil {
		return fmt.Errorf("failed to create %s writer: %w", codec.Format, err)
	}

	rows := make([]map[string]any, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = r
	}
	if err := rw.WriteRows(rows); err != nil {
		return err
	}
	if err := rw.Close(); err != nil {
		return err
	}
	if cw != nil {
		if err := cw.Close(); err != nil {
			return fmt.Errorf("failed to close compression writer: %w", err)
		}
	}
	return nil
}

// pickFile selects the single candidate whose base name is table's snapshot
// file. candidates maps the base name to the full location.
func pickFile(table string, candidates map[string]string) (string, error) {
	var matches []string
	for base, loc := range candidates {
		if tableName(base) == table {
			matches = append(matches, loc)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrSnapshotNotFound, table)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: %s (%v)", ErrAmbiguousSnapshot, table, matches)
	}
}
