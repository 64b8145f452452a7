package cmd

import (
	"regexp"
	"strings"
	"time"

	"github.com/airframesio/table-reconciler/cmd/snapshot"
)

var placeholderPattern = regexp.MustCompile(`\{[A-Za-z]+\}`)

var knownPlaceholders = map[string]bool{
	"{table}":    true,
	"{snapshot}": true,
	"{YYYY}":     true,
	"{MM}":       true,
	"{DD}":       true,
	"{HH}":       true,
}

// PathTemplate expands snapshot locations: a directory or an object key
// prefix under which each table's file is stored.
type PathTemplate struct {
	template string
}

// NewPathTemplate creates a new PathTemplate instance
func NewPathTemplate(template string) *PathTemplate {
	return &PathTemplate{template: template}
}

// Generate replaces placeholders in the template with actual values
// Supports: {table}, {snapshot}, {YYYY}, {MM}, {DD}, {HH}
func (pt *PathTemplate) Generate(tableName, snapshotName string, timestamp time.Time) string {
	result := pt.template

	result = strings.ReplaceAll(result, "{table}", tableName)
	result = strings.ReplaceAll(result, "{snapshot}", snapshotName)

	result = strings.ReplaceAll(result, "{YYYY}", timestamp.Format("2006"))
	result = strings.ReplaceAll(result, "{MM}", timestamp.Format("01"))
	result = strings.ReplaceAll(result, "{DD}", timestamp.Format("02"))
	result = strings.ReplaceAll(result, "{HH}", timestamp.Format("15"))

	return result
}

// Prefix binds the snapshot name and time, leaving the table to the caller.
func (pt *PathTemplate) Prefix(snapshotName string, timestamp time.Time) snapshot.PrefixFunc {
	return func(table string) string {
		return pt.Generate(table, snapshotName, timestamp)
	}
}

// unknownPlaceholders returns the placeholders Generate would leave as-is.
func (pt *PathTemplate) unknownPlaceholders() []string {
	var unknown []string
	for _, p := range placeholderPattern.FindAllString(pt.template, -1) {
		if !knownPlaceholders[p] {
			unknown = append(unknown, p)
		}
	}
	return unknown
}
