package formatters

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func sampleRows() []map[string]any {
	return []map[string]any{
		{"facilityname": "D_001", "fixedoperatingcost": "560", "status": "Include"},
		{"facilityname": "D_002", "fixedoperatingcost": nil, "status": "Exclude"},
	}
}

func TestWriteThenRead(t *testing.T) {
	columns := []string{"facilityname", "fixedoperatingcost", "status"}

	for _, format := range []string{FormatJSONL, FormatCSV, FormatParquet} {
		t.Run(format, func(t *testing.T) {
			f, err := GetFormatter(format)
			if err != nil {
				t.Fatalf("GetFormatter failed: %v", err)
			}

			var buf bytes.Buffer
			w, err := f.NewWriter(&buf, columns)
			if err != nil {
				t.Fatalf("NewWriter failed: %v", err)
			}
			if err := w.WriteRows(sampleRows()); err != nil {
				t.Fatalf("WriteRows failed: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			r, err := f.NewReader(&buf)
			if err != nil {
				t.Fatalf("NewReader failed: %v", err)
			}
			rows, err := r.ReadAll()
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}

			if len(rows) != 2 {
				t.Fatalf("read %d rows, want 2", len(rows))
			}
			if rows[0]["facilityname"] != "D_001" || rows[0]["fixedoperatingcost"] != "560" {
				t.Errorf("first row = %v", rows[0])
			}
			if rows[1]["fixedoperatingcost"] != nil {
				t.Errorf("null cell read back as %#v", rows[1]["fixedoperatingcost"])
			}

			got := strings.Join(r.Columns(), ",")
			if got != "facilityname,fixedoperatingcost,status" {
				t.Errorf("Columns() = %s", got)
			}
		})
	}
}

func TestCSVKeepsText(t *testing.T) {
	r, err := NewCSVReader(strings.NewReader("code,qty\n007,1.50\n"))
	if err != nil {
		t.Fatalf("NewCSVReader failed: %v", err)
	}
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if rows[0]["code"] != "007" || rows[0]["qty"] != "1.50" {
		t.Errorf("CSV cells must stay text, got %v", rows[0])
	}
}

func TestCSVEmptyFile(t *testing.T) {
	r, _ := NewCSVReader(strings.NewReader(""))
	rows, err := r.ReadAll()
	if err != nil || len(rows) != 0 || len(r.Columns()) != 0 {
		t.Errorf("empty CSV: rows=%v cols=%v err=%v", rows, r.Columns(), err)
	}
}

func TestJSONLKeepsNumberText(t *testing.T) {
	r := NewJSONLReader(strings.NewReader(`{"qty": 12345678901234567890}` + "\n\n" + `{"qty": 1.0}` + "\n"))
	rows, err := r.ReadChunk(10)
	if err != nil {
		t.Fatalf("ReadChunk failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	if n, ok := rows[0]["qty"].(json.Number); !ok || n.String() != "12345678901234567890" {
		t.Errorf("large number lost precision: %#v", rows[0]["qty"])
	}
}

func TestJSONLReadChunk(t *testing.T) {
	var input strings.Builder
	for i := 0; i < 5; i++ {
		input.WriteString(`{"a":"x"}` + "\n")
	}
	r := NewJSONLReader(strings.NewReader(input.String()))

	first, _ := r.ReadChunk(3)
	second, _ := r.ReadChunk(3)
	third, _ := r.ReadChunk(3)
	if len(first) != 3 || len(second) != 2 || len(third) != 0 {
		t.Errorf("chunks = %d/%d/%d, want 3/2/0", len(first), len(second), len(third))
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     string
		wantErr  bool
	}{
		{"facilities.jsonl", FormatJSONL, false},
		{"facilities.csv", FormatCSV, false},
		{"facilities.parquet", FormatParquet, false},
		{"facilities.xlsx", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := DetectFormat(tt.filename)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DetectFormat(%q) error = %v", tt.filename, err)
			}
			if got != tt.want {
				t.Errorf("DetectFormat(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}

	if _, err := GetFormatter("xml"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}
