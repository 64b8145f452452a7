package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/airframesio/table-reconciler/cmd/reconcile"
	"github.com/airframesio/table-reconciler/cmd/snapshot"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// sourceFlag maps a per-source flag suffix to its config key suffix.
type sourceFlag struct {
	flag string
	key  string
}

var sourceFlags = []sourceFlag{
	{"type", "type"},
	{"path", "path"},
	{"snapshot", "snapshot"},
	{"date", "date"},
	{"db-host", "db.host"},
	{"db-port", "db.port"},
	{"db-user", "db.user"},
	{"db-password", "db.password"},
	{"db-name", "db.name"},
	{"db-sslmode", "db.sslmode"},
	{"db-schema", "db.schema"},
	{"s3-endpoint", "s3.endpoint"},
	{"s3-bucket", "s3.bucket"},
	{"s3-access-key", "s3.access_key"},
	{"s3-secret-key", "s3.secret_key"},
	{"s3-region", "s3.region"},
}

// addSourceFlags registers the flags describing one source, e.g.
// --source1-type and --source1-db-host for prefix "source1-".
func addSourceFlags(cmd *cobra.Command, prefix, label, defaultType string) {
	f := cmd.Flags()
	f.String(prefix+"type", defaultType, label+" type: db, dir or s3")
	f.String(prefix+"path", "", label+" directory or S3 key prefix; placeholders: {table}, {snapshot}, {YYYY}, {MM}, {DD}, {HH}")
	f.String(prefix+"snapshot", "", label+" snapshot name substituted for {snapshot}")
	f.String(prefix+"date", "", label+" date for the date placeholders (YYYY-MM-DD or YYYY-MM-DDTHH, default now)")
	f.String(prefix+"db-host", "localhost", label+" PostgreSQL host")
	f.Int(prefix+"db-port", 5432, label+" PostgreSQL port")
	f.String(prefix+"db-user", "", label+" PostgreSQL user")
	f.String(prefix+"db-password", "", label+" PostgreSQL password")
	f.String(prefix+"db-name", "", label+" PostgreSQL database name")
	f.String(prefix+"db-sslmode", "disable", label+" PostgreSQL SSL mode (disable, require, verify-ca, verify-full)")
	f.String(prefix+"db-schema", "public", label+" PostgreSQL schema holding the model tables")
	f.String(prefix+"s3-endpoint", "", label+" S3-compatible endpoint URL")
	f.String(prefix+"s3-bucket", "", label+" S3 bucket name")
	f.String(prefix+"s3-access-key", "", label+" S3 access key")
	f.String(prefix+"s3-secret-key", "", label+" S3 secret key")
	f.String(prefix+"s3-region", regionAuto, label+" S3 region")
}

// bindSourceFlags binds the flags of addSourceFlags under key. Bindings are
// made when the command runs so commands sharing config keys do not
// override each other.
func bindSourceFlags(cmd *cobra.Command, v *viper.Viper, prefix, key string) {
	for _, sf := range sourceFlags {
		_ = v.BindPFlag(key+"."+sf.key, cmd.Flags().Lookup(prefix+sf.flag))
	}
}

// lookupString returns the first of keys set by a flag, the environment or
// the config file, falling back to the first key's default.
func lookupString(v *viper.Viper, keys ...string) string {
	for _, k := range keys {
		if v.IsSet(k) {
			return v.GetString(k)
		}
	}
	return v.GetString(keys[0])
}

func lookupInt(v *viper.Viper, keys ...string) int {
	for _, k := range keys {
		if v.IsSet(k) {
			return v.GetInt(k)
		}
	}
	return v.GetInt(keys[0])
}

// sourceFromViper reads the source under key. Database and S3 settings fall
// back to the top-level db and s3 sections shared by all commands.
func sourceFromViper(v *viper.Viper, key string) SourceConfig {
	get := func(field string) string {
		if strings.HasPrefix(field, "db.") || strings.HasPrefix(field, "s3.") {
			return lookupString(v, key+"."+field, field)
		}
		return lookupString(v, key+"."+field)
	}

	return SourceConfig{
		Type: get("type"),
		Database: snapshot.DatabaseConfig{
			Host:     get("db.host"),
			Port:     lookupInt(v, key+".db.port", "db.port"),
			User:     get("db.user"),
			Password: get("db.password"),
			Name:     get("db.name"),
			SSLMode:  get("db.sslmode"),
			Schema:   get("db.schema"),
		},
		S3: snapshot.S3Config{
			Endpoint:  get("s3.endpoint"),
			Bucket:    get("s3.bucket"),
			AccessKey: get("s3.access_key"),
			SecretKey: get("s3.secret_key"),
			Region:    get("s3.region"),
		},
		Path:     get("path"),
		Snapshot: get("snapshot"),
		Date:     get("date"),
	}
}

// stringList reads a list given either as a config list or a
// comma-separated flag value.
func stringList(v *viper.Viper, key string) []string {
	switch val := v.Get(key).(type) {
	case nil:
		return nil
	case string:
		return splitList(val)
	default:
		return splitList(strings.Join(v.GetStringSlice(key), ","))
	}
}

// openFetcher connects to the source. The returned function releases the
// connection.
func openFetcher(ctx context.Context, src SourceConfig, ignore []string, log *slog.Logger) (snapshot.Fetcher, func(), error) {
	prefix := NewPathTemplate(src.Path).Prefix(src.Snapshot, src.Timestamp())

	switch src.Type {
	case sourceDB:
		db, err := snapshot.OpenDatabase(ctx, src.Database)
		if err != nil {
			return nil, nil, err
		}
		return snapshot.NewPostgresFetcher(db, src.Database.Schema, ignore, log), func() { db.Close() }, nil
	case sourceDir:
		return &dirFetcher{prefix: prefix, ignore: ignore}, func() {}, nil
	case sourceS3:
		clients, err := snapshot.ConnectS3(src.S3)
		if err != nil {
			return nil, nil, err
		}
		return snapshot.NewS3Fetcher(clients, src.S3.Bucket, prefix, ignore), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: '%s'", ErrSourceTypeInvalid, src.Type)
	}
}

// openSink connects to the destination. File sinks honour dryRun by
// logging instead of writing; the database sink handles it itself.
func openSink(ctx context.Context, dst SourceConfig, codec snapshot.Codec, dryRun bool, log *slog.Logger) (snapshot.Sink, func(), error) {
	prefix := NewPathTemplate(dst.Path).Prefix(dst.Snapshot, dst.Timestamp())

	var sink snapshot.Sink
	cleanup := func() {}
	switch dst.Type {
	case sourceDB:
		db, err := snapshot.OpenDatabase(ctx, dst.Database)
		if err != nil {
			return nil, nil, err
		}
		return snapshot.NewPostgresSink(db, dst.Database.Schema, dryRun, log), func() { db.Close() }, nil
	case sourceDir:
		sink = &dirSink{prefix: prefix, codec: codec}
	case sourceS3:
		clients, err := snapshot.ConnectS3(dst.S3)
		if err != nil {
			return nil, nil, err
		}
		sink = snapshot.NewS3Sink(clients, dst.S3.Bucket, prefix, codec)
	default:
		return nil, nil, fmt.Errorf("%w: '%s'", ErrSourceTypeInvalid, dst.Type)
	}

	if dryRun {
		sink = &dryRunSink{logger: log}
	}
	return sink, cleanup, nil
}

// dirFetcher resolves the directory of each table through the path template.
type dirFetcher struct {
	prefix snapshot.PrefixFunc
	ignore []string
}

func (d *dirFetcher) Fetch(ctx context.Context, table string) (reconcile.Table, error) {
	return snapshot.NewDirFetcher(d.prefix(table), d.ignore).Fetch(ctx, table)
}

type dirSink struct {
	prefix snapshot.PrefixFunc
	codec  snapshot.Codec
}

func (d *dirSink) Put(ctx context.Context, t reconcile.Table) error {
	return snapshot.NewDirSink(d.prefix(t.Name), d.codec).Put(ctx, t)
}

type dryRunSink struct {
	logger *slog.Logger
}

func (d *dryRunSink) Put(_ context.Context, t reconcile.Table) error {
	d.logger.Info(fmt.Sprintf("  [DRY RUN] would write %s (%d rows, %d columns)", t.Name, t.Len(), len(t.Columns())))
	return nil
}

// transferResult records one copied table.
type transferResult struct {
	Table string
	Rows  int
}

// transferTables copies every table from src to dst, up to workers at a
// time. The first failure cancels the remaining tables.
func transferTables(ctx context.Context, src snapshot.Fetcher, dst snapshot.Sink, tables []string, workers int, log *slog.Logger) ([]transferResult, error) {
	results := make([]transferResult, len(tables))
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, table := range tables {
		i, table := i, table
		g.Go(func() error {
			t, err := src.Fetch(gctx, table)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", table, err)
			}
			if err := dst.Put(gctx, t); err != nil {
				return fmt.Errorf("failed to write %s: %w", table, err)
			}
			results[i] = transferResult{Table: table, Rows: t.Len()}

			mu.Lock()
			done++
			log.Info(fmt.Sprintf("  ✅ [%d/%d] %s: %d rows", done, len(tables), table, t.Len()))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// copyTables opens from and to, then copies tables between them. Captured
// and loaded tables keep every column; ignore_columns only applies when
// comparing.
func copyTables(ctx context.Context, from, to SourceConfig, codec snapshot.Codec, tables []string, workers int, dryRun bool, log *slog.Logger) ([]transferResult, error) {
	src, closeSrc, err := openFetcher(ctx, from, nil, log)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	defer closeSrc()

	dst, closeDst, err := openSink(ctx, to, codec, dryRun, log)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	defer closeDst()

	return transferTables(ctx, src, dst, tables, workers, log)
}

// totalRows sums the rows of a transfer.
func totalRows(results []transferResult) int {
	n := 0
	for _, r := range results {
		n += r.Rows
	}
	return n
}
