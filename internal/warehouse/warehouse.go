// Package warehouse describes the relational database questions are answered
// against: statement execution and schema introspection.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrTableNotFound = errors.New("table not found")

type Request struct {
	SQL string
	// RowLimit caps returned rows; zero means no cap.
	RowLimit int
}

type Result struct {
	Columns   []string
	Rows      [][]any
	Duration  time.Duration
	Truncated bool
}

type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
	Default  string `json:"default,omitempty"`
}

type TableSchema struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

type Introspector interface {
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, table string) (TableSchema, error)
	SampleRows(ctx context.Context, table string, limit int) (Result, error)
}

// Warehouse is the full surface the analyst needs from a database.
type Warehouse interface {
	Engine
	Introspector
	Dialect() string
	Ping(ctx context.Context) error
}

// SchemaText renders a table description for prompts and the database info
// endpoint.
func SchemaText(schema TableSchema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\nColumns:\n", schema.Name)
	for _, column := range schema.Columns {
		nullable := "NOT NULL"
		if column.Nullable {
			nullable = "NULL"
		}
		fmt.Fprintf(&b, "  - %s: %s %s", column.Name, column.DataType, nullable)
		if column.Default != "" {
			fmt.Fprintf(&b, " DEFAULT %s", column.Default)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
