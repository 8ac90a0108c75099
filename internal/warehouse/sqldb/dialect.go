package sqldb

import (
	"fmt"
	"strings"
)

// Dialect captures the differences between the supported databases that
// matter for introspection and sampling.
type Dialect struct {
	Name       string
	DriverName string
	// SchemaFilter restricts information_schema lookups to the connection's
	// default schema.
	SchemaFilter string
	// ReadOnlyTx is set when the driver honours sql.TxOptions.ReadOnly.
	ReadOnlyTx  bool
	placeholder func(n int) string
	quote       byte
}

var (
	Postgres = Dialect{
		Name:         "postgres",
		DriverName:   "pgx",
		SchemaFilter: "table_schema = current_schema()",
		ReadOnlyTx:   true,
		placeholder:  func(n int) string { return fmt.Sprintf("$%d", n) },
		quote:        '"',
	}
	MySQL = Dialect{
		Name:         "mysql",
		DriverName:   "mysql",
		SchemaFilter: "table_schema = DATABASE()",
		ReadOnlyTx:   true,
		placeholder:  func(int) string { return "?" },
		quote:        '`',
	}
	DuckDB = Dialect{
		Name:         "duckdb",
		DriverName:   "duckdb",
		SchemaFilter: "table_schema = current_schema()",
		placeholder:  func(int) string { return "?" },
		quote:        '"',
	}
)

func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Postgres.Name, "postgresql", "pgx":
		return Postgres, nil
	case MySQL.Name:
		return MySQL, nil
	case DuckDB.Name:
		return DuckDB, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported warehouse dialect %q", name)
	}
}

func (d Dialect) Placeholder(n int) string {
	return d.placeholder(n)
}

func (d Dialect) QuoteIdent(value string) string {
	q := string(d.quote)
	return q + strings.ReplaceAll(value, q, q+q) + q
}
