package sqldb

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the differences between the supported SQL engines.
// Queries are written with '?' placeholders and rebound per dialect.
type Dialect struct {
	Name       string
	DriverName string

	serialPK  string
	timestamp string
	numbered  bool
}

var (
	// Postgres is the dialect for lib/pq
	Postgres = Dialect{
		Name:       "postgres",
		DriverName: "postgres",
		serialPK:   "BIGSERIAL PRIMARY KEY",
		timestamp:  "TIMESTAMPTZ",
		numbered:   true,
	}

	// SQLite is the dialect for mattn/go-sqlite3
	SQLite = Dialect{
		Name:       "sqlite3",
		DriverName: "sqlite3",
		serialPK:   "INTEGER PRIMARY KEY AUTOINCREMENT",
		timestamp:  "TIMESTAMP",
	}
)

// DialectFor returns the dialect registered for a driver name
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "postgresql":
		return Postgres, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// Rebind rewrites '?' placeholders into the dialect's bind syntax
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
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

// expand replaces the {serial} and {timestamp} markers in DDL
func (d Dialect) expand(ddl string) string {
	return strings.NewReplacer(
		"{serial}", d.serialPK,
		"{timestamp}", d.timestamp,
	).Replace(ddl)
}

// inList returns "(?, ?, ?)" for n placeholders
func inList(n int) string {
	if n <= 0 {
		return "(NULL)"
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}
