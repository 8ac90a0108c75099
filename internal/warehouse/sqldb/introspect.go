package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sqlsight/sqlsight/internal/warehouse"
)

func (d *DB) ListTables(ctx context.Context) ([]string, error) {
	query := `
SELECT table_name
FROM information_schema.tables
WHERE ` + d.dialect.SchemaFilter + `
  AND table_type IN ('BASE TABLE', 'VIEW')
ORDER BY table_name`
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

func (d *DB) DescribeTable(ctx context.Context, table string) (warehouse.TableSchema, error) {
	if isBlank(table) {
		return warehouse.TableSchema{}, fmt.Errorf("table name is required")
	}
	query := `
SELECT column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE ` + d.dialect.SchemaFilter + `
  AND table_name = ` + d.dialect.Placeholder(1) + `
ORDER BY ordinal_position`
	rows, err := d.db.QueryContext(ctx, query, table)
	if err != nil {
		return warehouse.TableSchema{}, fmt.Errorf("describe table %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	schema := warehouse.TableSchema{Name: table, Columns: make([]warehouse.Column, 0)}
	for rows.Next() {
		var (
			name, dataType, nullable string
			columnDefault            sql.NullString
		)
		if err := rows.Scan(&name, &dataType, &nullable, &columnDefault); err != nil {
			return warehouse.TableSchema{}, fmt.Errorf("scan column: %w", err)
		}
		schema.Columns = append(schema.Columns, warehouse.Column{
			Name:     name,
			DataType: dataType,
			Nullable: strings.EqualFold(nullable, "YES"),
			Default:  columnDefault.String,
		})
	}
	if err := rows.Err(); err != nil {
		return warehouse.TableSchema{}, fmt.Errorf("iterate columns: %w", err)
	}
	if len(schema.Columns) == 0 {
		return warehouse.TableSchema{}, fmt.Errorf("describe table %s: %w", table, warehouse.ErrTableNotFound)
	}
	return schema, nil
}

func (d *DB) SampleRows(ctx context.Context, table string, limit int) (warehouse.Result, error) {
	if isBlank(table) {
		return warehouse.Result{}, fmt.Errorf("table name is required")
	}
	if limit <= 0 {
		limit = 3
	}
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", d.dialect.QuoteIdent(table), limit)
	result, err := d.query(ctx, query)
	if err != nil {
		return warehouse.Result{}, fmt.Errorf("sample rows from %s: %w", table, err)
	}
	return result, nil
}
