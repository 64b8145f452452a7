package cmd

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/airframesio/table-reconciler/cmd/snapshot"
)

// Static errors for configuration validation
var (
	ErrDatabaseUserRequired    = errors.New("database user is required")
	ErrDatabaseNameRequired    = errors.New("database name is required")
	ErrDatabasePortInvalid     = errors.New("database port must be between 1 and 65535")
	ErrSchemaNameInvalid       = errors.New("schema name is invalid: must start with a letter or underscore, and contain only letters, numbers, and underscores")
	ErrS3EndpointRequired      = errors.New("S3 endpoint is required")
	ErrS3BucketRequired        = errors.New("S3 bucket is required")
	ErrS3AccessKeyRequired     = errors.New("S3 access key is required")
	ErrS3SecretKeyRequired     = errors.New("S3 secret key is required")
	ErrS3RegionInvalid         = errors.New("S3 region contains invalid characters or is too long")
	ErrSourceTypeInvalid       = errors.New("source type is invalid")
	ErrSourcePathRequired      = errors.New("directory sources require a path")
	ErrPathTemplateInvalid     = errors.New("path template contains unknown placeholders")
	ErrSnapshotDateInvalid     = errors.New("invalid snapshot date format, expected YYYY-MM-DD or YYYY-MM-DDTHH")
	ErrTableNameInvalid        = errors.New("table name is invalid: must be 1-63 characters, start with a letter or underscore, and contain only letters, numbers, and underscores")
	ErrWorkersMinimum          = errors.New("workers must be at least 1")
	ErrWorkersMaximum          = errors.New("workers must not exceed 1000")
	ErrOutputFormatInvalid     = errors.New("output format must be one of: jsonl, csv, parquet")
	ErrCompressionInvalid      = errors.New("compression must be one of: zstd, lz4, gzip, none (snappy for parquet)")
	ErrCompressionLevelInvalid = errors.New("compression level must be between 1 and 22 (zstd), 1-9 (lz4/gzip)")
	ErrReportFormatInvalid     = errors.New("report format must be one of: text, json, excel")
	ErrReportFileRequired      = errors.New("excel reports require an output file")
	ErrDuplicatePolicyInvalid  = errors.New("duplicates policy must be one of: exclude, halt")
	ErrRowCountPolicyInvalid   = errors.New("row count policy must be one of: halt, continue")
	ErrPrecisionInvalid        = errors.New("precision must be between 0 and 10")
	ErrMaxChangesInvalid       = errors.New("max changes must be >= 0")
)

const (
	regionAuto = "auto"

	sourceDB  = "db"
	sourceDir = "dir"
	sourceS3  = "s3"
)

// SourceConfig describes one side of a comparison, or the origin and
// destination of a snapshot: a model database, a local directory of
// snapshot files or an S3 prefix.
type SourceConfig struct {
	Type     string
	Database snapshot.DatabaseConfig
	S3       snapshot.S3Config
	Path     string // directory or key prefix template
	Snapshot string // value of {snapshot}
	Date     string // value of the date placeholders, default now
}

// CompareConfig holds the settings of the compare command.
type CompareConfig struct {
	Debug        bool
	LogFormat    string
	Workers      int
	Source1      SourceConfig
	Source2      SourceConfig
	Tables       []string
	Duplicates   string
	RowCount     string
	Precision    int
	OutputFormat string
	OutputFile   string
	MaxChanges   int
	FailOnDiff   bool
	Progress     bool
}

// SnapshotConfig holds the settings of the snapshot command.
type SnapshotConfig struct {
	Debug            bool
	LogFormat        string
	DryRun           bool
	Workers          int
	Source           SourceConfig
	Target           SourceConfig
	Tables           []string
	Format           string
	Compression      string
	CompressionLevel int
}

// LoadConfig holds the settings of the load command.
type LoadConfig struct {
	Debug     bool
	LogFormat string
	DryRun    bool
	Workers   int
	Source    SourceConfig
	Target    SourceConfig
	Tables    []string
}

// validPostgreSQLIdentifier checks if a string is a valid PostgreSQL identifier
var validPostgreSQLIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var validRegion = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// isValidTableName validates that a table name is safe to use in SQL queries
func isValidTableName(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	return validPostgreSQLIdentifier.MatchString(name)
}

// isValidRegion validates that an S3 region is reasonable
func isValidRegion(region string) bool {
	if region == "" || len(region) > 50 {
		return false
	}
	return validRegion.MatchString(region)
}

func isValidOutputFormat(format string) bool {
	switch format {
	case "jsonl", "csv", "parquet":
		return true
	}
	return false
}

func isValidCompression(format, compression string) bool {
	switch compression {
	case "zstd", "lz4", "gzip", "none":
		return true
	case "snappy":
		return format == "parquet"
	}
	return false
}

// isValidCompressionLevel validates compression level based on compression type
func isValidCompressionLevel(compression string, level int) bool {
	switch compression {
	case "zstd":
		return level >= 1 && level <= 22
	case "lz4", "gzip":
		return level >= 1 && level <= 9
	default:
		return true
	}
}

func validateWorkers(workers int) error {
	if workers < 1 {
		return ErrWorkersMinimum
	}
	if workers > 1000 {
		return fmt.Errorf("%w, got %d", ErrWorkersMaximum, workers)
	}
	return nil
}

func validateTables(tables []string) error {
	for _, t := range tables {
		if !isValidTableName(t) {
			return fmt.Errorf("%w: '%s'", ErrTableNameInvalid, t)
		}
	}
	return nil
}

func validateDatabase(db snapshot.DatabaseConfig) error {
	if db.User == "" {
		return ErrDatabaseUserRequired
	}
	if db.Name == "" {
		return ErrDatabaseNameRequired
	}
	if db.Port < 1 || db.Port > 65535 {
		return fmt.Errorf("%w, got %d", ErrDatabasePortInvalid, db.Port)
	}
	if db.Schema != "" && !validPostgreSQLIdentifier.MatchString(db.Schema) {
		return fmt.Errorf("%w: '%s'", ErrSchemaNameInvalid, db.Schema)
	}
	return nil
}

func validateS3(s3 snapshot.S3Config) error {
	if s3.Endpoint == "" {
		return ErrS3EndpointRequired
	}
	if s3.Bucket == "" {
		return ErrS3BucketRequired
	}
	if s3.AccessKey == "" {
		return ErrS3AccessKeyRequired
	}
	if s3.SecretKey == "" {
		return ErrS3SecretKeyRequired
	}
	if s3.Region != "" && s3.Region != regionAuto && !isValidRegion(s3.Region) {
		return fmt.Errorf("%w: %s", ErrS3RegionInvalid, s3.Region)
	}
	return nil
}

// Validate checks the source against the types the command accepts.
func (s SourceConfig) Validate(allowed ...string) error {
	ok := false
	for _, a := range allowed {
		if s.Type == a {
			ok = true
		}
	}
	if !ok {
		return fmt.Errorf("%w: '%s' (expected one of: %s)", ErrSourceTypeInvalid, s.Type, strings.Join(allowed, ", "))
	}

	if s.Date != "" {
		if _, err := parseSnapshotDate(s.Date); err != nil {
			return err
		}
	}
	if unknown := NewPathTemplate(s.Path).unknownPlaceholders(); len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrPathTemplateInvalid, strings.Join(unknown, ", "))
	}

	switch s.Type {
	case sourceDB:
		return validateDatabase(s.Database)
	case sourceDir:
		if s.Path == "" {
			return ErrSourcePathRequired
		}
	case sourceS3:
		return validateS3(s.S3)
	}
	return nil
}

// Timestamp returns the time used for the date placeholders.
func (s SourceConfig) Timestamp() time.Time {
	if ts, err := parseSnapshotDate(s.Date); err == nil && s.Date != "" {
		return ts
	}
	return time.Now().UTC()
}

// Describe renders the source for the configuration banner.
func (s SourceConfig) Describe() string {
	switch s.Type {
	case sourceDB:
		return fmt.Sprintf("db %s@%s:%d/%s", s.Database.User, s.Database.Host, s.Database.Port, s.Database.Name)
	case sourceDir:
		return fmt.Sprintf("dir %s", s.Path)
	case sourceS3:
		return fmt.Sprintf("s3://%s/%s (key %s)", s.S3.Bucket, s.Path, maskString(s.S3.AccessKey))
	default:
		return "(not set)"
	}
}

func parseSnapshotDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01-02T15"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: '%s'", ErrSnapshotDateInvalid, s)
}

func (c *CompareConfig) Validate() error {
	if err := c.Source1.Validate(sourceDB, sourceDir, sourceS3); err != nil {
		return fmt.Errorf("source1: %w", err)
	}
	if err := c.Source2.Validate(sourceDB, sourceDir, sourceS3); err != nil {
		return fmt.Errorf("source2: %w", err)
	}
	if err := validateTables(c.Tables); err != nil {
		return err
	}
	if err := validateWorkers(c.Workers); err != nil {
		return err
	}

	switch c.Duplicates {
	case "exclude", "halt":
	default:
		return fmt.Errorf("%w: '%s'", ErrDuplicatePolicyInvalid, c.Duplicates)
	}
	switch c.RowCount {
	case "halt", "continue":
	default:
		return fmt.Errorf("%w: '%s'", ErrRowCountPolicyInvalid, c.RowCount)
	}
	if c.Precision < 0 || c.Precision > 10 {
		return fmt.Errorf("%w, got %d", ErrPrecisionInvalid, c.Precision)
	}
	if c.MaxChanges < 0 {
		return fmt.Errorf("%w, got %d", ErrMaxChangesInvalid, c.MaxChanges)
	}

	switch c.OutputFormat {
	case "text", "json":
	case "excel":
		if c.OutputFile == "" {
			return ErrReportFileRequired
		}
	default:
		return fmt.Errorf("%w: '%s'", ErrReportFormatInvalid, c.OutputFormat)
	}
	return nil
}

func (c *SnapshotConfig) Validate() error {
	if err := c.Source.Validate(sourceDB); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := c.Target.Validate(sourceDir, sourceS3); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	if err := validateTables(c.Tables); err != nil {
		return err
	}
	if err := validateWorkers(c.Workers); err != nil {
		return err
	}
	if !isValidOutputFormat(c.Format) {
		return fmt.Errorf("%w: '%s'", ErrOutputFormatInvalid, c.Format)
	}
	if !isValidCompression(c.Format, c.Compression) {
		return fmt.Errorf("%w: '%s'", ErrCompressionInvalid, c.Compression)
	}
	if !isValidCompressionLevel(c.Compression, c.CompressionLevel) {
		return fmt.Errorf("%w for compression %s: got %d", ErrCompressionLevelInvalid, c.Compression, c.CompressionLevel)
	}
	return nil
}

func (c *LoadConfig) Validate() error {
	if err := c.Source.Validate(sourceDir, sourceS3); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := c.Target.Validate(sourceDB); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	if err := validateTables(c.Tables); err != nil {
		return err
	}
	return validateWorkers(c.Workers)
}

// maskString masks sensitive strings (shows first 4 chars, rest as *)
func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}
