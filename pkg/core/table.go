package core

import "strings"

// DefaultSchema is the schema bulk loads target when none is given.
const DefaultSchema = "public"

// Table is a schema-qualified table reference.
type Table struct {
	Schema string
	Name   string
}

// String returns the unquoted dotted form.
func (t Table) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// ParseTable splits "schema.table" into its parts. A bare name takes
// defaultSchema; when defaultSchema is empty a bare name is rejected.
func ParseTable(name, defaultSchema string) (Table, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Table{}, Validationf("table name is empty")
	}

	parts := strings.Split(name, ".")
	switch len(parts) {
	case 1:
		if defaultSchema == "" {
			return Table{}, Validationf("table %q must be qualified as schema.table", name)
		}
		return Table{Schema: defaultSchema, Name: parts[0]}, nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return Table{}, Validationf("table %q has an empty schema or name", name)
		}
		return Table{Schema: parts[0], Name: parts[1]}, nil
	default:
		return Table{}, Validationf("table %q has more than one schema separator", name)
	}
}
