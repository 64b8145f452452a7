package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/airframesio/table-reconciler/cmd/reconcile"
)

// DirFetcher reads snapshot files named <table>.<format>[.<compression>]
// from a local directory.
type DirFetcher struct {
	dir    string
	ignore []string
}

// NewDirFetcher creates a fetcher over dir.
func NewDirFetcher(dir string, ignore []string) *DirFetcher {
	return &DirFetcher{dir: dir, ignore: ignore}
}

// Fetch decodes the snapshot file of table.
func (f *DirFetcher) Fetch(ctx context.Context, table string) (reconcile.Table, error) {
	if err := ctx.Err(); err != nil {
		return reconcile.Table{}, err
	}

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return reconcile.Table{}, fmt.Errorf("failed to list %s: %w", f.dir, err)
	}
	candidates := make(map[string]string)
	for _, e := range entries {
		if !e.IsDir() {
			candidates[e.Name()] = filepath.Join(f.dir, e.Name())
		}
	}

	path, err := pickFile(table, candidates)
	if err != nil {
		return reconcile.Table{}, err
	}
	codec, err := DetectCodec(filepath.Base(path), "", "")
	if err != nil {
		return reconcile.Table{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		return reconcile.Table{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	t, err := Decode(table, file, codec)
	if err != nil {
		return reconcile.Table{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return t.Without(f.ignore...), nil
}

// DirSink writes one snapshot file per table into a local directory.
type DirSink struct {
	dir   string
	codec Codec
}

// NewDirSink creates a sink writing into dir with the given codec.
func NewDirSink(dir string, codec Codec) *DirSink {
	return &DirSink{dir: dir, codec: codec}
}

// Put writes the table through a temporary file and renames it into place,
// replacing any previous snapshot of the same table.
func (s *DirSink) Put(ctx context.Context, t reconcile.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.dir, err)
	}

	name, err := s.codec.Filename(t.Name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+t.Name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, t, s.codec); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode %s: %w", t.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}

	// drop snapshots of the same table written with another codec
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", s.dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() && e.Name() != name && tableName(e.Name()) == t.Name {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
				return fmt.Errorf("failed to remove stale snapshot %s: %w", e.Name(), err)
			}
		}
	}
	return nil
}
