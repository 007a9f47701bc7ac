package store

import (
	"strconv"
	"strings"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// dialect hides the few statements that differ between SQLite and PostgreSQL.
type dialect struct {
	driver string
}

func (d dialect) postgres() bool {
	return d.driver == DriverPostgres
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (d dialect) rebind(query string) string {
	if !d.postgres() {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d dialect) schemaVersionProbe() string {
	if d.postgres() {
		return "SELECT COUNT(1) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = 'schema_version'"
	}
	return "SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'"
}

// lockClause locks the selected row for the rest of the transaction. SQLite
// serializes writers already.
func (d dialect) lockClause() string {
	if d.postgres() {
		return " FOR UPDATE"
	}
	return ""
}
