package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/airframesio/table-reconciler/cmd/reconcile"
	"github.com/airframesio/table-reconciler/cmd/report"
	"github.com/airframesio/table-reconciler/cmd/snapshot"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// Exit codes of the compare command
const (
	exitFailure     = 1
	exitDifferences = 2
	exitCancelled   = 130
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare two snapshots of the model tables",
	Long: `Compare two snapshots of the model tables table by table. Each source is a
PostgreSQL database, a directory of snapshot files or an S3 prefix.

Rows are matched on each table's primary key fields. Every table runs through
the same guards: schema, key fields, row count, key sets and duplicates, then
a cell-by-cell diff of the rows found in both snapshots.`,
	PreRun: func(cmd *cobra.Command, _ []string) {
		bindCompareFlags(cmd, viper.GetViper())
	},
	Run: func(cmd *cobra.Command, _ []string) {
		runCompare(cmd)
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
	addCompareFlags(compareCmd)
}

func addCompareFlags(cmd *cobra.Command) {
	addSourceFlags(cmd, "source1-", "Source1", sourceDir)
	addSourceFlags(cmd, "source2-", "Source2", sourceDB)

	cmd.Flags().String("tables", "", "comma-separated tables to compare (default: every registered table)")
	cmd.Flags().String("duplicates", string(reconcile.DuplicatesExclude), "duplicate key policy: exclude or halt")
	cmd.Flags().String("row-count", string(reconcile.RowCountHalt), "row count mismatch policy: halt or continue")
	cmd.Flags().Int("precision", int(reconcile.DefaultPlaces), "fractional digits kept when comparing numbers")
	cmd.Flags().String("output-format", report.FormatText, "report format: text, json or excel")
	cmd.Flags().String("output-file", "", "report file (default: stdout)")
	cmd.Flags().Int("max-changes", 20, "cell changes listed per table in the text report (0 = all)")
	cmd.Flags().Bool("fail-on-diff", false, "exit with status 2 unless every table is identical")
	cmd.Flags().Bool("progress", false, "show an interactive progress display")
}

func bindCompareFlags(cmd *cobra.Command, v *viper.Viper) {
	bindSourceFlags(cmd, v, "source1-", "compare.source1")
	bindSourceFlags(cmd, v, "source2-", "compare.source2")

	_ = v.BindPFlag("compare.tables", cmd.Flags().Lookup("tables"))
	_ = v.BindPFlag("compare.duplicates", cmd.Flags().Lookup("duplicates"))
	_ = v.BindPFlag("compare.row_count", cmd.Flags().Lookup("row-count"))
	_ = v.BindPFlag("compare.precision", cmd.Flags().Lookup("precision"))
	_ = v.BindPFlag("compare.output_format", cmd.Flags().Lookup("output-format"))
	_ = v.BindPFlag("compare.output_file", cmd.Flags().Lookup("output-file"))
	_ = v.BindPFlag("compare.max_changes", cmd.Flags().Lookup("max-changes"))
	_ = v.BindPFlag("compare.fail_on_diff", cmd.Flags().Lookup("fail-on-diff"))
	_ = v.BindPFlag("compare.progress", cmd.Flags().Lookup("progress"))
}

// loadCompareConfig assembles the compare settings from flags, environment
// and config file.
func loadCompareConfig(v *viper.Viper) *CompareConfig {
	return &CompareConfig{
		Debug:        v.GetBool("debug"),
		LogFormat:    v.GetString("log_format"),
		Workers:      v.GetInt("workers"),
		Source1:      sourceFromViper(v, "compare.source1"),
		Source2:      sourceFromViper(v, "compare.source2"),
		Tables:       stringList(v, "compare.tables"),
		Duplicates:   v.GetString("compare.duplicates"),
		RowCount:     v.GetString("compare.row_count"),
		Precision:    v.GetInt("compare.precision"),
		OutputFormat: v.GetString("compare.output_format"),
		OutputFile:   v.GetString("compare.output_file"),
		MaxChanges:   v.GetInt("compare.max_changes"),
		FailOnDiff:   v.GetBool("compare.fail_on_diff"),
		Progress:     v.GetBool("compare.progress"),
	}
}

func runCompare(_ *cobra.Command) {
	defer recoverPanic()

	v := viper.GetViper()
	config := loadCompareConfig(v)

	initLogger(config.Debug, config.LogFormat)

	logger.Info("")
	logger.Info(fmt.Sprintf("🔍 Table Reconciler v%s", Version))
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	announceUpdate(context.Background(), config.Debug)

	printCompareConfig(config)

	if err := config.Validate(); err != nil {
		logger.Error(fmt.Sprintf("❌ Configuration error: %s", err.Error()))
		os.Exit(exitFailure)
	}

	registry, err := loadRegistry(v)
	if err != nil {
		logger.Error(fmt.Sprintf("❌ Configuration error: %s", err.Error()))
		os.Exit(exitFailure)
	}

	ctx, stop := commandContext()
	reconciler := NewReconciler(config, registry, ignoreColumns(v), logger)
	exit := func(code int) {
		reconciler.Close()
		stop()
		os.Exit(code)
	}

	var run *reconcile.Run
	if config.Progress && report.IsTerminal(os.Stderr) {
		run, err = runWithProgress(ctx, reconciler)
	} else {
		run, err = reconciler.Run(ctx)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("")
			logger.Info("⚠️  Comparison cancelled by user")
			exit(exitCancelled)
		}
		logger.Error(fmt.Sprintf("❌ Comparison failed: %s", err.Error()))
		exit(exitFailure)
	}

	if err := reconciler.WriteReport(run); err != nil {
		logger.Error(fmt.Sprintf("❌ Failed to write report: %s", err.Error()))
		exit(exitFailure)
	}

	summary := run.Summary()
	logger.Info("")
	logger.Info(fmt.Sprintf("✅ Comparison completed: %d identical, %d blocked, %d with differences, %d failed",
		len(summary[reconcile.CategoryIdentical]),
		len(summary[reconcile.CategoryBlocked]),
		len(summary[reconcile.CategoryDifferences]),
		len(summary[reconcile.CategoryFailed])))

	if config.FailOnDiff && !run.Identical() {
		exit(exitDifferences)
	}
	reconciler.Close()
	stop()
}

// printCompareConfig prints a table of configuration information
func printCompareConfig(config *CompareConfig) {
	logger.Info("")
	logger.Info("📋 Configuration:")
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	printSourceConfig("Source 1", config.Source1)
	printSourceConfig("Source 2", config.Source2)

	logger.Info("  Comparison:")
	if len(config.Tables) > 0 {
		logger.Info(fmt.Sprintf("    Tables:            %s", strings.Join(config.Tables, ", ")))
	} else {
		logger.Info("    Tables:            (all registered tables)")
	}
	logger.Info(fmt.Sprintf("    Duplicates:        %s", config.Duplicates))
	logger.Info(fmt.Sprintf("    Row Count:         %s", config.RowCount))
	logger.Info(fmt.Sprintf("    Precision:         %d", config.Precision))

	logger.Info("  Output:")
	logger.Info(fmt.Sprintf("    Format:            %s", config.OutputFormat))
	if config.OutputFile != "" {
		logger.Info(fmt.Sprintf("    File:              %s", config.OutputFile))
	} else {
		logger.Info("    File:              stdout")
	}

	logger.Info("  Settings:")
	logger.Info(fmt.Sprintf("    Workers:           %d", config.Workers))
	logger.Info(fmt.Sprintf("    Fail On Diff:      %v", config.FailOnDiff))
	logger.Info(fmt.Sprintf("    Debug:             %v", config.Debug))
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	logger.Info("")
}

func printSourceConfig(label string, src SourceConfig) {
	logger.Info(fmt.Sprintf("  %s:", label))
	logger.Info(fmt.Sprintf("    Type:              %s", src.Type))
	switch src.Type {
	case sourceDB:
		logger.Info(fmt.Sprintf("    Host:              %s", src.Database.Host))
		logger.Info(fmt.Sprintf("    Port:              %d", src.Database.Port))
		logger.Info(fmt.Sprintf("    User:              %s", maskString(src.Database.User)))
		logger.Info(fmt.Sprintf("    Database:          %s", src.Database.Name))
		logger.Info(fmt.Sprintf("    Schema:            %s", src.Database.Schema))
		logger.Info(fmt.Sprintf("    SSL Mode:          %s", src.Database.SSLMode))
	case sourceS3:
		logger.Info(fmt.Sprintf("    Endpoint:          %s", src.S3.Endpoint))
		logger.Info(fmt.Sprintf("    Bucket:            %s", src.S3.Bucket))
		logger.Info(fmt.Sprintf("    Access Key:        %s", maskString(src.S3.AccessKey)))
		logger.Info(fmt.Sprintf("    Region:            %s", src.S3.Region))
		logger.Info(fmt.Sprintf("    Path:              %s", src.Path))
	default:
		logger.Info(fmt.Sprintf("    Path:              %s", src.Path))
	}
	if src.Snapshot != "" {
		logger.Info(fmt.Sprintf("    Snapshot:          %s", src.Snapshot))
	}
	if src.Date != "" {
		logger.Info(fmt.Sprintf("    Date:              %s", src.Date))
	}
}

// Reconciler loads both snapshots of every selected table and compares
// them.
type Reconciler struct {
	config   *CompareConfig
	registry reconcile.Registry
	ignore   []string
	logger   *slog.Logger

	source1 snapshot.Fetcher
	source2 snapshot.Fetcher
	closers []func()

	// onFetched and onCompared are called from worker goroutines.
	onFetched  func(table string, source int, err error)
	onCompared func(*reconcile.Report)
}

// NewReconciler creates a Reconciler. Sources are opened on the first Run.
func NewReconciler(config *CompareConfig, registry reconcile.Registry, ignore []string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		config:   config,
		registry: registry,
		ignore:   ignore,
		logger:   logger,
	}
}

// Tables returns the tables a run compares.
func (r *Reconciler) Tables() []string {
	return selectTables(r.registry, r.config.Tables)
}

// Connect opens both sources unless they were already set.
func (r *Reconciler) Connect(ctx context.Context) error {
	if r.source1 == nil {
		f, closeFn, err := openFetcher(ctx, r.config.Source1, r.ignore, r.logger)
		if err != nil {
			return fmt.Errorf("source1: %w", err)
		}
		r.source1 = f
		r.closers = append(r.closers, closeFn)
		r.logger.Debug(fmt.Sprintf("Opened source 1: %s", r.config.Source1.Describe()))
	}
	if r.source2 == nil {
		f, closeFn, err := openFetcher(ctx, r.config.Source2, r.ignore, r.logger)
		if err != nil {
			return fmt.Errorf("source2: %w", err)
		}
		r.source2 = f
		r.closers = append(r.closers, closeFn)
		r.logger.Debug(fmt.Sprintf("Opened source 2: %s", r.config.Source2.Describe()))
	}
	return nil
}

// Close releases the sources opened by Connect.
func (r *Reconciler) Close() {
	for _, closeFn := range r.closers {
		closeFn()
	}
	r.closers = nil
}

// Run fetches and compares every selected table. Load failures of a table
// are recorded in its report; only connection failures and cancellation are
// returned as errors.
func (r *Reconciler) Run(ctx context.Context) (*reconcile.Run, error) {
	if err := r.Connect(ctx); err != nil {
		return nil, err
	}

	tables := r.Tables()
	r.logger.Info(fmt.Sprintf("📥 Loading %d tables from both sources...", len(tables)))
	pairs := r.fetchPairs(ctx, tables)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.logger.Info("🔍 Comparing tables...")
	comparer := reconcile.NewComparer(r.registry,
		reconcile.WithNormalizer(reconcile.Normalizer{Places: int32(r.config.Precision)}),
		reconcile.WithDuplicatePolicy(reconcile.DuplicatePolicy(r.config.Duplicates)),
		reconcile.WithRowCountPolicy(reconcile.RowCountPolicy(r.config.RowCount)),
		reconcile.WithWorkers(r.config.Workers),
		reconcile.WithLogger(r.logger),
		reconcile.WithProgress(r.onCompared),
	)
	run := comparer.Run(ctx, pairs)
	if err := ctx.Err(); err != nil {
		return run, err
	}
	return run, nil
}

// fetchPairs loads both snapshots of every table, up to Workers fetches at
// a time. A failed fetch does not stop the others.
func (r *Reconciler) fetchPairs(ctx context.Context, tables []string) []reconcile.Pair {
	pairs := make([]reconcile.Pair, len(tables))
	errs := make([][2]error, len(tables))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.config.Workers)
	for i, table := range tables {
		pairs[i].Table = table
		for side, src := range []snapshot.Fetcher{r.source1, r.source2} {
			i, table, side, src := i, table, side, src
			g.Go(func() error {
				t, err := src.Fetch(ctx, table)

				mu.Lock()
				if side == 0 {
					pairs[i].A = t
				} else {
					pairs[i].B = t
				}
				if err != nil {
					errs[i][side] = fmt.Errorf("source%d: %w", side+1, err)
					r.logger.Warn(fmt.Sprintf("  ⚠️  %s: %v", table, errs[i][side]))
				} else {
					r.logger.Debug(fmt.Sprintf("  %s: %d rows from source %d", table, t.Len(), side+1))
				}
				mu.Unlock()

				if r.onFetched != nil {
					r.onFetched(table, side+1, err)
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	for i := range pairs {
		pairs[i].Err = errors.Join(errs[i][0], errs[i][1])
	}
	return pairs
}

// WriteReport renders run in the configured format to the output file, or
// to stdout.
func (r *Reconciler) WriteReport(run *reconcile.Run) error {
	var out io.Writer = os.Stdout
	color := report.IsTerminal(os.Stdout)
	if r.config.OutputFile != "" {
		f, err := os.Create(r.config.OutputFile)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		out = f
		color = false
	}

	if err := r.writeReport(out, run, color); err != nil {
		return err
	}
	if r.config.OutputFile != "" {
		r.logger.Info(fmt.Sprintf("📄 Report written to %s", r.config.OutputFile))
	}
	return nil
}

func (r *Reconciler) writeReport(w io.Writer, run *reconcile.Run, color bool) error {
	writer, err := report.New(r.config.OutputFormat, report.Options{
		MaxChanges: r.config.MaxChanges,
		Color:      color,
	})
	if err != nil {
		return err
	}
	return writer.Write(w, run)
}
