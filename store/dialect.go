package store

import (
	"fmt"
	"strings"
)

// Dialect handles placeholder differences between SQL drivers
type Dialect struct {
	name        string
	placeholder func(n int) string
}

var (
	questionDialect = Dialect{name: "sqlite3"}
	mysqlDialect    = Dialect{name: "mysql"}
	postgresDialect = Dialect{
		name: "postgres",
		placeholder: func(n int) string {
			return fmt.Sprintf("$%d", n)
		},
	}
)

// DialectFor returns the dialect for a driver name. Unknown drivers use
// question mark placeholders.
func DialectFor(driver string) Dialect {
	switch normalizeDriver(driver) {
	case "postgres":
		return postgresDialect
	case "mysql":
		return mysqlDialect
	default:
		return questionDialect
	}
}

// Name returns the dialect name
func (d Dialect) Name() string {
	return d.name
}

// Placeholder returns the bind placeholder for the n-th argument (1-based)
func (d Dialect) Placeholder(n int) string {
	if d.placeholder == nil {
		return "?"
	}
	return d.placeholder(n)
}

// In returns a parenthesised placeholder list for count arguments, numbered
// from start, for use in "WHERE col IN (...)".
func (d Dialect) In(count, start int) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i := 0; i < count; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.Placeholder(start + i))
	}
	sb.WriteByte(')')
	return sb.String()
}

// normalizeDriver maps alternative driver names to the registered ones
func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return "sqlite3"
	case "postgres", "postgresql", "pq":
		return "postgres"
	case "mysql", "mariadb":
		return "mysql"
	default:
		return driver
	}
}
