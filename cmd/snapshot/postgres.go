package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/airframesio/table-reconciler/cmd/reconcile"
	"github.com/lib/pq"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	Schema   string
}

// ConnString builds a lib/pq key=value connection string.
func (c DatabaseConfig) ConnString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	schema := c.Schema
	if schema == "" {
		schema = "public"
	}
	// lib/pq handles password escaping internally
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s search_path=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslMode, schema)
}

// OpenDatabase connects to PostgreSQL and verifies the connection.
func OpenDatabase(ctx context.Context, cfg DatabaseConfig) (*sql.DB, error) {
	conn, err := sql.Open("postgres", cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Verify we're connected to the correct database
	var currentDB string
	if err := conn.QueryRowContext(ctx, "SELECT current_database()").Scan(&currentDB); err == nil && currentDB != cfg.Name {
		conn.Close()
		return nil, fmt.Errorf("connected to database '%s' but expected '%s'", currentDB, cfg.Name)
	}

	return conn, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func qualified(schema, table string) string {
	if schema == "" {
		return pq.QuoteIdentifier(table)
	}
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

// PostgresFetcher reads model tables from PostgreSQL.
type PostgresFetcher struct {
	db     *sql.DB
	schema string
	ignore []string
	logger *slog.Logger
}

// NewPostgresFetcher creates a fetcher. Columns named in ignore (typically
// the surrogate "id") are dropped from every fetched table.
func NewPostgresFetcher(db *sql.DB, schema string, ignore []string, logger *slog.Logger) *PostgresFetcher {
	if logger == nil {
		logger = discardLogger()
	}
	return &PostgresFetcher{db: db, schema: schema, ignore: ignore, logger: logger}
}

// Fetch selects every row of table. Every non-NULL value is returned as
// text, the way the model stores it.
func (f *PostgresFetcher) Fetch(ctx context.Context, table string) (reconcile.Table, error) {
	query := fmt.Sprintf("SELECT * FROM %s", qualified(f.schema, table))
	f.logger.Debug(fmt.Sprintf("Querying %s", query))

	rows, err := f.db.QueryContext(ctx, query)
	if err != nil {
		return reconcile.Table{}, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return reconcile.Table{}, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	var result []reconcile.Row
	for rows.Next() {
		if err := rows.Scan(valuePtrs...); err != nil {
			return reconcile.Table{}, fmt.Errorf("failed to scan %s: %w", table, err)
		}

		row := make(reconcile.Row, len(columns))
		for i, col := range columns {
			row[col] = textValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return reconcile.Table{}, fmt.Errorf("failed to read %s: %w", table, err)
	}

	f.logger.Debug(fmt.Sprintf("Fetched %d rows from %s", len(result), table))
	return reconcile.NewTable(table, columns, result).Without(f.ignore...), nil
}

// textValue renders a scanned column value as text. NULL stays nil.
func textValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// PostgresSink replaces model tables in PostgreSQL.
type PostgresSink struct {
	db     *sql.DB
	schema string
	dryRun bool
	logger *slog.Logger
}

// NewPostgresSink creates a sink. In dry-run mode nothing is written.
func NewPostgresSink(db *sql.DB, schema string, dryRun bool, logger *slog.Logger) *PostgresSink {
	if logger == nil {
		logger = discardLogger()
	}
	return &PostgresSink{db: db, schema: schema, dryRun: dryRun, logger: logger}
}

// Put deletes the table's rows and inserts the snapshot rows in a single
// transaction. Columns are taken from the snapshot; columns the table has
// but the snapshot lacks keep their defaults.
func (s *PostgresSink) Put(ctx context.Context, t reconcile.Table) error {
	columns := t.Fields
	if len(columns) == 0 {
		columns = t.Columns()
	}
	target := qualified(s.schema, t.Name)

	if s.dryRun {
		s.logger.Info(fmt.Sprintf("[DRY RUN] Would replace %s with %d rows", t.Name, t.Len()))
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", target)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", t.Name, err)
	}

	if len(columns) > 0 && t.Len() > 0 {
		quoted := make([]string, len(columns))
		placeholders := make([]string, len(columns))
		for i, col := range columns {
			quoted[i] = pq.QuoteIdentifier(col)
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
		insertQuery := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			target, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

		stmt, err := tx.PrepareContext(ctx, insertQuery)
		if err != nil {
			return fmt.Errorf("failed to prepare insert into %s: %w", t.Name, err)
		}
		defer stmt.Close()

		values := make([]any, len(columns))
		for _, row := range t.Rows {
			for i, col := range columns {
				values[i] = row[col]
			}
			if _, err := stmt.ExecContext(ctx, values...); err != nil {
				return fmt.Errorf("failed to insert into %s: %w", t.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", t.Name, err)
	}
	s.logger.Debug(fmt.Sprintf("Replaced %s with %d rows", t.Name, t.Len()))
	return nil
}
