package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/airframesio/table-reconciler/cmd/reconcile"
)

func testTable() reconcile.Table {
	return reconcile.NewTable("facilities", []string{"id", "facilityname", "fixedoperatingcost"}, []reconcile.Row{
		{"id": "1", "facilityname": "D_001", "fixedoperatingcost": "560"},
		{"id": "2", "facilityname": "D_002", "fixedoperatingcost": nil},
	})
}

func TestDetectCodec(t *testing.T) {
	tests := []struct {
		filename    string
		format      string
		compression string
		wantErr     bool
	}{
		{"facilities.jsonl.zst", "jsonl", "zstd", false},
		{"facilities.csv", "csv", "none", false},
		{"facilities.parquet", "parquet", "none", false},
		{"facilities.csv.gz", "csv", "gzip", false},
		{"facilities.txt", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			codec, err := DetectCodec(tt.filename, "", "")
			if (err != nil) != tt.wantErr {
				t.Fatalf("DetectCodec error = %v", err)
			}
			if codec.Format != tt.format || codec.Compression != tt.compression {
				t.Errorf("DetectCodec(%q) = %+v", tt.filename, codec)
			}
		})
	}

	codec, err := DetectCodec("facilities.txt", "csv", "lz4")
	if err != nil || codec.Format != "csv" || codec.Compression != "lz4" {
		t.Errorf("overrides not applied: %+v, %v", codec, err)
	}
}

func TestTableName(t *testing.T) {
	tests := map[string]string{
		"facilities.jsonl.zst":     "facilities",
		"customers.csv":            "customers",
		"groups.parquet":           "groups",
		"inventorypolicies.csv.gz": "inventorypolicies",
		"readme.md":                "",
		".csv":                     "",
	}
	for base, want := range tests {
		if got := tableName(base); got != want {
			t.Errorf("tableName(%q) = %q, want %q", base, got, want)
		}
	}
}

func TestDirRoundTrip(t *testing.T) {
	for _, codec := range []Codec{
		{Format: "jsonl", Compression: "zstd"},
		{Format: "csv", Compression: "gzip"},
		{Format: "parquet", Compression: "snappy"},
	} {
		t.Run(codec.Format, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()

			if err := NewDirSink(dir, codec).Put(ctx, testTable()); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			got, err := NewDirFetcher(dir, []string{"id"}).Fetch(ctx, "facilities")
			if err != nil {
				t.Fatalf("Fetch failed: %v", err)
			}
			if got.Len() != 2 {
				t.Fatalf("fetched %d rows, want 2", got.Len())
			}
			if got.HasColumn("id") {
				t.Error("ignored column should be dropped")
			}

			want := testTable().Without("id")
			rep := reconcile.NewComparer(reconcile.DefaultRegistry()).CompareTable("facilities", want, got)
			if rep.Outcome != reconcile.OutcomeEqual {
				t.Errorf("round trip changed the table: %s %+v", rep.Outcome, rep.Changes)
			}
		})
	}
}

func TestDirRoundTripEmptyTable(t *testing.T) {
	live := reconcile.NewTable("facilities", []string{"id", "facilityname", "fixedoperatingcost"}, nil)

	for _, codec := range []Codec{
		{Format: "jsonl", Compression: "zstd"},
		{Format: "jsonl", Compression: "none"},
		{Format: "csv", Compression: "gzip"},
		{Format: "parquet", Compression: "snappy"},
	} {
		t.Run(codec.Format+"/"+codec.Compression, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()

			if err := NewDirSink(dir, codec).Put(ctx, live); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			got, err := NewDirFetcher(dir, []string{"id"}).Fetch(ctx, "facilities")
			if err != nil {
				t.Fatalf("Fetch failed: %v", err)
			}
			if got.Len() != 0 {
				t.Fatalf("fetched %d rows, want 0", got.Len())
			}

			comparer := reconcile.NewComparer(reconcile.DefaultRegistry())
			for _, rep := range []*reconcile.Report{
				comparer.CompareTable("facilities", live.Without("id"), got),
				comparer.CompareTable("facilities", got, live.Without("id")),
			} {
				if rep.Outcome != reconcile.OutcomeEqual {
					t.Errorf("empty snapshot vs empty table = %s %+v %s", rep.Outcome, rep.Schema, rep.Err)
				}
			}
		})
	}
}

func TestDirSinkReplacesOtherCodec(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	if err := NewDirSink(dir, Codec{Format: "csv", Compression: "none"}).Put(ctx, testTable()); err != nil {
		t.Fatalf("Put csv failed: %v", err)
	}
	if err := NewDirSink(dir, Codec{Format: "jsonl", Compression: "lz4"}).Put(ctx, testTable()); err != nil {
		t.Fatalf("Put jsonl failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "facilities.csv")); !os.IsNotExist(err) {
		t.Error("stale csv snapshot should be removed")
	}
	if _, err := NewDirFetcher(dir, nil).Fetch(ctx, "facilities"); err != nil {
		t.Errorf("Fetch after replace failed: %v", err)
	}
}

func TestDirFetcherErrors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	if _, err := NewDirFetcher(dir, nil).Fetch(ctx, "facilities"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}

	for _, name := range []string{"facilities.csv", "facilities.jsonl"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(""), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := NewDirFetcher(dir, nil).Fetch(ctx, "facilities"); !errors.Is(err, ErrAmbiguousSnapshot) {
		t.Errorf("expected ErrAmbiguousSnapshot, got %v", err)
	}
}
