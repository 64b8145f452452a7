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

// snapshotNameLayout names snapshots taken without --target-snapshot.
const snapshotNameLayout = "20060102T150405"

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture the model tables into snapshot files",
	Long: `Capture the registered model tables from a PostgreSQL database into a local
directory or an S3 prefix, one file per table. Take a snapshot before running
a model update, then compare it with the updated model.`,
	PreRun: func(cmd *cobra.Command, _ []string) {
		bindSnapshotFlags(cmd, viper.GetViper())
	},
	Run: func(cmd *cobra.Command, _ []string) {
		runSnapshot(cmd)
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	addSnapshotFlags(snapshotCmd)
}

func addSnapshotFlags(cmd *cobra.Command) {
	addSourceFlags(cmd, "source-", "Source", sourceDB)
	addSourceFlags(cmd, "target-", "Target", sourceDir)

	cmd.Flags().String("tables", "", "comma-separated tables to capture (default: every registered table)")
	cmd.Flags().String("format", "jsonl", "snapshot file format: jsonl, csv or parquet")
	cmd.Flags().String("compression", "zstd", "compression: zstd, lz4, gzip, none (snappy for parquet)")
	cmd.Flags().Int("compression-level", 3, "compression level (zstd: 1-22, lz4/gzip: 1-9)")
}

func bindSnapshotFlags(cmd *cobra.Command, v *viper.Viper) {
	bindSourceFlags(cmd, v, "source-", "snapshot.source")
	bindSourceFlags(cmd, v, "target-", "snapshot.target")

	_ = v.BindPFlag("snapshot.tables", cmd.Flags().Lookup("tables"))
	_ = v.BindPFlag("snapshot.format", cmd.Flags().Lookup("format"))
	_ = v.BindPFlag("snapshot.compression", cmd.Flags().Lookup("compression"))
	_ = v.BindPFlag("snapshot.compression_level", cmd.Flags().Lookup("compression-level"))
}

func loadSnapshotConfig(v *viper.Viper, now time.Time) *SnapshotConfig {
	config := &SnapshotConfig{
		Debug:            v.GetBool("debug"),
		LogFormat:        v.GetString("log_format"),
		DryRun:           v.GetBool("dry_run"),
		Workers:          v.GetInt("workers"),
		Source:           sourceFromViper(v, "snapshot.source"),
		Target:           sourceFromViper(v, "snapshot.target"),
		Tables:           stringList(v, "snapshot.tables"),
		Format:           v.GetString("snapshot.format"),
		Compression:      v.GetString("snapshot.compression"),
		CompressionLevel: v.GetInt("snapshot.compression_level"),
	}
	if config.Target.Snapshot == "" {
		config.Target.Snapshot = now.UTC().Format(snapshotNameLayout)
	}
	return config
}

func (c *SnapshotConfig) codec() snapshot.Codec {
	return snapshot.Codec{Format: c.Format, Compression: c.Compression, Level: c.CompressionLevel}
}

func runSnapshot(_ *cobra.Command) {
	defer recoverPanic()

	v := viper.GetViper()
	config := loadSnapshotConfig(v, time.Now())

	initLogger(config.Debug, config.LogFormat)

	logger.Info("")
	logger.Info(fmt.Sprintf("📸 Table Reconciler v%s - snapshot", Version))
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	announceUpdate(context.Background(), config.Debug)

	printSnapshotConfig(config)

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
	logger.Info(fmt.Sprintf("📥 Capturing %d tables into snapshot %s...", len(tables), config.Target.Snapshot))

	start := time.Now()
	results, err := copyTables(ctx, config.Source, config.Target, config.codec(), tables, config.Workers, config.DryRun, logger)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("")
			logger.Info("⚠️  Snapshot cancelled by user")
			stop()
			os.Exit(exitCancelled)
		}
		logger.Error(fmt.Sprintf("❌ Snapshot failed: %s", err.Error()))
		stop()
		os.Exit(exitFailure)
	}

	logger.Info("")
	logger.Info(fmt.Sprintf("✅ Snapshot %s completed: %d tables, %d rows in %s",
		config.Target.Snapshot, len(results), totalRows(results), time.Since(start).Round(time.Millisecond)))
}

func printSnapshotConfig(config *SnapshotConfig) {
	logger.Info("")
	logger.Info("📋 Configuration:")
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	printSourceConfig("Source", config.Source)
	printSourceConfig("Target", config.Target)

	logger.Info("  Files:")
	if len(config.Tables) > 0 {
		logger.Info(fmt.Sprintf("    Tables:            %s", strings.Join(config.Tables, ", ")))
	} else {
		logger.Info("    Tables:            (all registered tables)")
	}
	logger.Info(fmt.Sprintf("    Format:            %s", config.Format))
	logger.Info(fmt.Sprintf("    Compression:       %s (level %d)", config.Compression, config.CompressionLevel))

	logger.Info("  Settings:")
	logger.Info(fmt.Sprintf("    Workers:           %d", config.Workers))
	logger.Info(fmt.Sprintf("    Dry Run:           %v", config.DryRun))
	logger.Info(fmt.Sprintf("    Debug:             %v", config.Debug))
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	logger.Info("")
}
