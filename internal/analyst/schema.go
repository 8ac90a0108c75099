package analyst

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sqlsight/sqlsight/internal/cache"
	"github.com/sqlsight/sqlsight/internal/nl2sql"
	"github.com/sqlsight/sqlsight/internal/observability"
	"github.com/sqlsight/sqlsight/internal/warehouse"
)

const commercialNotes = `g_issue_date is the primary issue date and g_expiration_date the primary expiration date; prefer them over issue_date and expiration_date.
region_nmae holds region names; baladia_name, amana_name and city_name form the geographic hierarchy.
isic_desc describes the business type. lic_status is the license status: inspect its values, or compare g_expiration_date with CURRENT_DATE, to tell active from expired.
shop_area is a numeric area. original_id is the identifier from the source system.
Arabic terms: تاريخ -> dates, منطقة -> region_nmae, نشاط -> isic_desc, حالة -> lic_status, مدينة -> city_name or baladia_name.`

// DefaultTableNotes returns the built-in hints for the commercial licensing
// dataset.
func DefaultTableNotes() map[string]string {
	return map[string]string{"commercial": commercialNotes}
}

// Tables lists the warehouse tables questions may use: every table when no
// allow-list is configured, otherwise the allowed tables that exist.
func (s *Service) Tables(ctx context.Context) ([]string, error) {
	all, err := s.warehouse.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	if len(s.opts.AllowedTables) == 0 {
		sort.Strings(all)
		return all, nil
	}
	allowed := make(map[string]struct{}, len(s.opts.AllowedTables))
	for _, table := range s.opts.AllowedTables {
		allowed[strings.ToLower(table)] = struct{}{}
	}
	tables := make([]string, 0, len(s.opts.AllowedTables))
	for _, table := range all {
		if _, ok := allowed[strings.ToLower(table)]; ok {
			tables = append(tables, table)
		}
	}
	sort.Strings(tables)
	return tables, nil
}

// DatabaseInfo describes every usable table. A table that cannot be described
// is reported with a placeholder instead of failing the whole call.
func (s *Service) DatabaseInfo(ctx context.Context) (DatabaseInfo, error) {
	tables, err := s.Tables(ctx)
	if err != nil {
		return DatabaseInfo{}, err
	}
	texts := make([]string, len(tables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.SchemaFanout)
	for i, table := range tables {
		g.Go(func() error {
			schema, err := s.warehouse.DescribeTable(gctx, table)
			if err != nil {
				s.logger.WarnContext(gctx, "describe table failed", slog.String("table", table), slog.Any("error", err))
				texts[i] = schemaUnavailable
				return nil
			}
			texts[i] = warehouse.SchemaText(schema)
			return nil
		})
	}
	_ = g.Wait()

	info := DatabaseInfo{Tables: tables, TableSchemas: make(map[string]string, len(tables))}
	for i, table := range tables {
		info.TableSchemas[table] = texts[i]
	}
	return info, nil
}

// schemaContext builds the agent's view of the usable tables, reading through
// the schema cache.
func (s *Service) schemaContext(ctx context.Context) ([]nl2sql.TableContext, error) {
	tables, err := s.Tables(ctx)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("no usable tables found in the warehouse")
	}

	contexts := make([]*nl2sql.TableContext, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.SchemaFanout)
	for i, table := range tables {
		g.Go(func() error {
			tc, err := s.tableContext(gctx, table)
			if err != nil {
				s.logger.WarnContext(gctx, "schema context unavailable", slog.String("table", table), slog.Any("error", err))
				return nil
			}
			contexts[i] = &tc
			return nil
		})
	}
	_ = g.Wait()

	out := make([]nl2sql.TableContext, 0, len(tables))
	for _, tc := range contexts {
		if tc != nil {
			out = append(out, *tc)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("schema unavailable for tables %s", strings.Join(tables, ", "))
	}
	return out, nil
}

func (s *Service) tableContext(ctx context.Context, table string) (nl2sql.TableContext, error) {
	key := cache.SchemaKey(table)
	var cached nl2sql.TableContext
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.WarnContext(ctx, "schema cache read failed", slog.String("table", table), slog.Any("error", err))
	}
	observability.ObserveCacheLookup("schema", found)
	if found {
		return cached, nil
	}

	schema, err := s.warehouse.DescribeTable(ctx, table)
	if err != nil {
		return nl2sql.TableContext{}, err
	}
	tc := nl2sql.TableContext{
		TableName: schema.Name,
		Columns:   make([]nl2sql.ColumnInfo, 0, len(schema.Columns)),
		Notes:     s.opts.TableNotes[strings.ToLower(table)],
	}
	for _, column := range schema.Columns {
		tc.Columns = append(tc.Columns, nl2sql.ColumnInfo{Name: column.Name, DataType: column.DataType, Nullable: column.Nullable})
	}
	if s.opts.SampleRows > 0 {
		sample, err := s.warehouse.SampleRows(ctx, table, s.opts.SampleRows)
		if err != nil {
			s.logger.WarnContext(ctx, "sample rows failed", slog.String("table", table), slog.Any("error", err))
		} else {
			tc.SampleRows = sample.Rows
		}
	}

	if err := s.cache.Set(ctx, key, tc, s.opts.SchemaTTL); err != nil {
		s.logger.WarnContext(ctx, "schema cache write failed", slog.String("table", table), slog.Any("error", err))
	}
	return tc, nil
}
