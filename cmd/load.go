package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/airframesio/table-reconciler/cmd/snapshot"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Replace model tables with the contents of a snapshot",
	Long: `Read a snapshot from a local directory or an S3 prefix and replace the matching
model tables in PostgreSQL. Each table is deleted and re-inserted in its own
transaction. Use --dry-run to check the snapshot without writing.`,
	PreRun: func(cmd *cobra.Command, _ []string) {
		bindLoadFlags(cmd, viper.GetViper())
	},
	Run: func(cmd *cobra.Command, _ []string) {
		runLoad(cmd)
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
	addLoadFlags(loadCmd)
}

func addLoadFlags(cmd *cobra.Command) {
	addSourceFlags(cmd, "source-", "Source", sourceDir)
	addSourceFlags(cmd, "target-", "Target", sourceDB)
	cmd.Flags().String("tables", "", "comma-separated tables to load (default: every registered table)")
}

func bindLoadFlags(cmd *cobra.Command, v *viper.Viper) {
	bindSourceFlags(cmd, v, "source-", "load.source")
	bindSourceFlags(cmd, v, "target-", "load.target")
	_ = v.BindPFlag("load.tables", cmd.Flags().Lookup("tables"))
}

func loadLoadConfig(v *viper.Viper) *LoadConfig {
	return &LoadConfig{
		Debug:     v.GetBool("debug"),
		LogFormat: v.GetString("log_format"),
		DryRun:    v.GetBool("dry_run"),
		Workers:   v.GetInt("workers"),
		Source:    sourceFromViper(v, "load.source"),
		Target:    sourceFromViper(v, "load.target"),
		Tables:    stringList(v, "load.tables"),
	}
}

func runLoad(_ *cobra.Command) {
	defer recoverPanic()

	v := viper.GetViper()
	config := loadLoadConfig(v)

	initLogger(config.Debug, config.LogFormat)

	logger.Info("")
	logger.Info(fmt.Sprintf("📤 Table Reconciler v%s - load", Version))
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	announceUpdate(context.Background(), config.Debug)

	logger.Info("")
	logger.Info("📋 Configuration:")
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	printSourceConfig("Source", config.Source)
	printSourceConfig("Target", config.Target)
	logger.Info("  Settings:")
	if len(config.Tables) > 0 {
		logger.Info(fmt.Sprintf("    Tables:            %s", strings.Join(config.Tables, ", ")))
	} else {
		logger.Info("    Tables:            (all registered tables)")
	}
	logger.Info(fmt.Sprintf("    Workers:           %d", config.Workers))
	logger.Info(fmt.Sprintf("    Dry Run:           %v", config.DryRun))
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	logger.Info("")

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
	defer stop()

	tables := selectTables(registry, config.Tables)

	var lock *LoadLock
	if !config.DryRun {
		lock, err = AcquireLoadLock(config.Target.Database, tables)
		if err != nil {
			logger.Error(fmt.Sprintf("❌ %s", err.Error()))
			stop()
			os.Exit(exitFailure)
		}
	}
	exit := func(code int) {
		_ = lock.Release()
		stop()
		os.Exit(code)
	}

	logger.Info(fmt.Sprintf("📤 Loading %d tables into %s...", len(tables), config.Target.Database.Name))

	start := time.Now()
	results, err := copyTables(ctx, config.Source, config.Target, snapshot.Codec{}, tables, config.Workers, config.DryRun, logger)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("")
			logger.Info("⚠️  Load cancelled by user")
			exit(exitCancelled)
		}
		logger.Error(fmt.Sprintf("❌ Load failed: %s", err.Error()))
		exit(exitFailure)
	}
	_ = lock.Release()

	logger.Info("")
	logger.Info(fmt.Sprintf("✅ Load completed: %d tables, %d rows in %s",
		len(results), totalRows(results), time.Since(start).Round(time.Millisecond)))
}
