package reconcile

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrTableNotRegistered = errors.New("table is not registered")
	ErrEmptyKeyFields     = errors.New("table has no key fields configured")
	ErrKeyFieldMissing    = errors.New("key field is not part of the table schema")
)

// Registry maps a table name to its ordered primary-key fields.
type Registry map[string][]string

// DefaultRegistry returns the model tables validated after a planning update,
// keyed the way the upstream store defines their primary keys.
func DefaultRegistry() Registry {
	return Registry{
		"customerfulfillmentpolicies": {"customername", "productname", "sourcename"},
		"customers":                   {"customername"},
		"facilities":                  {"facilityname"},
		"groups":                      {"groupname", "grouptype", "membername"},
		"inventoryconstraints": {
			"facilityname", "facilitynamegroupbehavior",
			"productname", "productnamegroupbehavior",
			"periodname", "periodnamegroupbehavior",
			"constrainttype", "constraintvalueuom", "consideredinventory",
		},
		"inventorypolicies": {"facilityname", "productname"},
		"periods":           {"periodname"},
		"productionconstraints": {
			"facilityname", "facilitynamegroupbehavior",
			"productname", "productnamegroupbehavior",
			"periodname", "periodnamegroupbehavior",
			"bomname", "bomnamegroupbehavior",
			"processname", "processnamegroupbehavior",
			"constrainttype", "constraintvalueuom",
		},
		"productionpolicies":     {"facilityname", "productname", "bomname", "processname"},
		"replenishmentpolicies":  {"facilityname", "productname", "sourcename"},
		"transportationpolicies": {"originname", "destinationname", "productname", "modename"},
		"warehousingpolicies":    {"facilityname", "productname"},
	}
}

// Keys returns the key fields registered for table.
func (r Registry) Keys(table string) ([]string, error) {
	keys, ok := r[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotRegistered, table)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyKeyFields, table)
	}
	return keys, nil
}

// Tables returns the registered table names in sorted order.
func (r Registry) Tables() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge returns a new registry with the entries of other added to or
// replacing those of r.
func (r Registry) Merge(other Registry) Registry {
	out := make(Registry, len(r)+len(other))
	for name, keys := range r {
		out[name] = append([]string(nil), keys...)
	}
	for name, keys := range other {
		out[name] = append([]string(nil), keys...)
	}
	return out
}
