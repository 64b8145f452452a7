package snapshot

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/airframesio/table-reconciler/cmd/reconcile"
)

func TestPostgresFetcher(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "facilityname", "fixedoperatingcost"}).
		AddRow(1, []byte("D_001"), []byte("560")).
		AddRow(2, []byte("D_002"), nil)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."facilities"`)).WillReturnRows(rows)

	got, err := NewPostgresFetcher(db, "public", []string{"id"}, nil).Fetch(context.Background(), "facilities")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if got.Len() != 2 {
		t.Fatalf("fetched %d rows, want 2", got.Len())
	}
	if got.Rows[0]["facilityname"] != "D_001" || got.Rows[0]["fixedoperatingcost"] != "560" {
		t.Errorf("byte columns should be returned as strings: %v", got.Rows[0])
	}
	if got.Rows[1]["fixedoperatingcost"] != nil {
		t.Errorf("NULL should stay nil: %#v", got.Rows[1]["fixedoperatingcost"])
	}
	if got.HasColumn("id") {
		t.Error("ignored column should be dropped")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresFetcherTypedColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	updated := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"facilityname", "capacity", "fixedoperatingcost", "active", "updated_at", "notes"}).
		AddRow("D_001", int64(40), 560.25, true, updated, nil)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."facilities"`)).WillReturnRows(rows)

	got, err := NewPostgresFetcher(db, "public", nil, nil).Fetch(context.Background(), "facilities")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	want := reconcile.Row{
		"facilityname":       "D_001",
		"capacity":           "40",
		"fixedoperatingcost": "560.25",
		"active":             "true",
		"updated_at":         "2024-03-01T12:30:00Z",
		"notes":              nil,
	}
	for col, v := range want {
		if got.Rows[0][col] != v {
			t.Errorf("%s = %#v, want %#v", col, got.Rows[0][col], v)
		}
	}
}

func TestPostgresFetcherQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "customers"`)).WillReturnError(errors.New("relation does not exist"))

	if _, err := NewPostgresFetcher(db, "", nil, nil).Fetch(context.Background(), "customers"); err == nil {
		t.Fatal("expected error from failing query")
	}
}

func TestPostgresSink(t *testing.T) {
	table := reconcile.NewTable("facilities", []string{"facilityname", "fixedoperatingcost"}, []reconcile.Row{
		{"facilityname": "D_001", "fixedoperatingcost": "560"},
		{"facilityname": "D_002", "fixedoperatingcost": nil},
	})

	t.Run("ReplacesRowsInTransaction", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("failed to create sqlmock: %v", err)
		}
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "facilities"`)).WillReturnResult(sqlmock.NewResult(0, 5))
		prep := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO "facilities" ("facilityname", "fixedoperatingcost") VALUES ($1, $2)`))
		prep.ExpectExec().WithArgs("D_001", "560").WillReturnResult(sqlmock.NewResult(0, 1))
		prep.ExpectExec().WithArgs("D_002", nil).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		if err := NewPostgresSink(db, "", false, nil).Put(context.Background(), table); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("RollsBackOnInsertFailure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("failed to create sqlmock: %v", err)
		}
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "facilities"`)).WillReturnResult(sqlmock.NewResult(0, 5))
		prep := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO "facilities"`))
		prep.ExpectExec().WillReturnError(errors.New("value too long"))
		mock.ExpectRollback()

		if err := NewPostgresSink(db, "", false, nil).Put(context.Background(), table); err == nil {
			t.Fatal("expected insert error")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("DryRunWritesNothing", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("failed to create sqlmock: %v", err)
		}
		defer db.Close()

		if err := NewPostgresSink(db, "", true, nil).Put(context.Background(), table); err != nil {
			t.Fatalf("dry run failed: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("dry run touched the database: %v", err)
		}
	})
}

func TestConnString(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "model"}
	want := "host=db port=5432 user=u password=p dbname=model sslmode=disable search_path=public"
	if got := cfg.ConnString(); got != want {
		t.Errorf("ConnString() = %q, want %q", got, want)
	}
}
