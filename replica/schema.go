package replica

import (
	"slices"
)

// Schema is the set of table names a replica accepts mutations for.
type Schema struct {
	open   bool
	tables map[string]struct{}
}

// Tables returns a schema recognizing exactly names.
func Tables(names ...string) Schema {
	s := Schema{tables: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if n != "" {
			s.tables[n] = struct{}{}
		}
	}
	return s
}

// AnyTable returns a schema recognizing every table name. Aggregators use
// it since they relay mutations for tables they never read.
func AnyTable() Schema {
	return Schema{open: true}
}

// Recognizes reports whether table may be written.
func (s Schema) Recognizes(table string) bool {
	if table == "" {
		return false
	}
	if s.open {
		return true
	}
	_, ok := s.tables[table]
	return ok
}

// Open reports whether every table is recognized.
func (s Schema) Open() bool {
	return s.open
}

// Names returns the recognized tables in order. It is empty for an open
// schema.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
