package cmd

import (
	"fmt"
	"strings"

	"github.com/airframesio/table-reconciler/cmd/reconcile"
	"github.com/spf13/viper"
)

// defaultIgnoreColumns are dropped before comparing: the surrogate id is
// regenerated whenever a model table is rewritten.
var defaultIgnoreColumns = []string{"id"}

// loadRegistry returns the built-in registry with the entries of the
// config file's registry section added or replacing defaults:
//
//	registry:
//	  facilities: [facilityname]
//	  shipments: [origin, destination, productname]
func loadRegistry(v *viper.Viper) (reconcile.Registry, error) {
	reg := reconcile.DefaultRegistry()
	if !v.IsSet("registry") {
		return reg, nil
	}

	overrides := make(reconcile.Registry)
	for table := range v.GetStringMap("registry") {
		keys := v.GetStringSlice("registry." + table)
		if len(keys) == 0 {
			return nil, fmt.Errorf("registry entry %s: %w", table, reconcile.ErrEmptyKeyFields)
		}
		if !isValidTableName(table) {
			return nil, fmt.Errorf("%w: registry entry '%s'", ErrTableNameInvalid, table)
		}
		for i := range keys {
			keys[i] = strings.TrimSpace(keys[i])
		}
		overrides[table] = keys
	}
	return reg.Merge(overrides), nil
}

// ignoreColumns returns the columns dropped from every fetched table.
func ignoreColumns(v *viper.Viper) []string {
	if !v.IsSet("ignore_columns") {
		return defaultIgnoreColumns
	}
	return v.GetStringSlice("ignore_columns")
}

// splitList parses a comma-separated flag value.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// selectTables returns the requested tables without repeats, or every
// registered table.
func selectTables(reg reconcile.Registry, requested []string) []string {
	if len(requested) == 0 {
		return reg.Tables()
	}
	seen := make(map[string]struct{}, len(requested))
	tables := make([]string, 0, len(requested))
	for _, name := range requested {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tables = append(tables, name)
	}
	return tables
}
