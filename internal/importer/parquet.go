package importer

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlsight/sqlsight/internal/storage"
)

const parquetContentType = "application/vnd.apache.parquet"

func parquetNode(kind Kind) parquet.Node {
	switch kind {
	case KindInteger:
		return parquet.Optional(parquet.Int(64))
	case KindFloat:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType))
	case KindTimestamp:
		return parquet.Optional(parquet.Timestamp(parquet.Millisecond))
	case KindBoolean:
		return parquet.Optional(parquet.Leaf(parquet.BooleanType))
	default:
		return parquet.Optional(parquet.String())
	}
}

// WriteParquet encodes ds as a single parquet file with one optional column
// per dataset column.
func WriteParquet(ds Dataset) ([]byte, error) {
	if len(ds.Columns) == 0 {
		return nil, fmt.Errorf("dataset has no columns")
	}
	group := make(parquet.Group, len(ds.Columns))
	for _, column := range ds.Columns {
		group[column.Name] = parquetNode(column.Kind)
	}
	schema := parquet.NewSchema("dataset", group)

	indexes := make([]int, len(ds.Columns))
	for i, column := range ds.Columns {
		leaf, ok := schema.Lookup(column.Name)
		if !ok {
			return nil, fmt.Errorf("parquet column %q missing from schema", column.Name)
		}
		indexes[i] = leaf.ColumnIndex
	}

	rows := make([]parquet.Row, 0, len(ds.Rows))
	for r, values := range ds.Rows {
		row := make(parquet.Row, len(ds.Columns))
		for i, column := range ds.Columns {
			value, err := parquetValue(column.Kind, values[i])
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", r+1, column.Name, err)
			}
			definition := 1
			if value.IsNull() {
				definition = 0
			}
			row[indexes[i]] = value.Level(0, definition, indexes[i])
		}
		rows = append(rows, row)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, schema)
	if _, err := writer.WriteRows(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func parquetValue(kind Kind, v any) (parquet.Value, error) {
	if v == nil {
		return parquet.NullValue(), nil
	}
	switch kind {
	case KindInteger:
		if n, ok := v.(int64); ok {
			return parquet.Int64Value(n), nil
		}
	case KindFloat:
		if f, ok := v.(float64); ok {
			return parquet.DoubleValue(f), nil
		}
	case KindTimestamp:
		if t, ok := v.(time.Time); ok {
			return parquet.Int64Value(t.UnixMilli()), nil
		}
	case KindBoolean:
		if b, ok := v.(bool); ok {
			return parquet.BooleanValue(b), nil
		}
	default:
		if s, ok := v.(string); ok {
			return parquet.ByteArrayValue([]byte(s)), nil
		}
	}
	return parquet.Value{}, fmt.Errorf("unexpected %T for %s column", v, kind)
}

// PublishSnapshot uploads a parquet snapshot of table twice: under a dated
// key for retention and under the stable latest key the embedded warehouse
// reads. Both copies carry the table, row count and import time as metadata.
func PublishSnapshot(ctx context.Context, store storage.ObjectStore, table string, data []byte, rows int, at time.Time) ([]string, error) {
	dated, err := storage.BuildSnapshotPath(table, at)
	if err != nil {
		return nil, err
	}
	latest, err := storage.LatestSnapshotPath(table)
	if err != nil {
		return nil, err
	}
	opts := storage.PutOptions{
		ContentType: parquetContentType,
		Metadata: map[string]string{
			"table":       table,
			"rows":        strconv.Itoa(rows),
			"imported_at": at.UTC().Format(time.RFC3339),
		},
	}
	for _, key := range []string{dated, latest} {
		if _, err := store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
			return nil, fmt.Errorf("upload snapshot %s: %w", key, err)
		}
	}
	return []string{dated, latest}, nil
}

// PruneSnapshots deletes all but the newest keep dated snapshots of table
// and returns the deleted keys. The latest key is never touched.
func PruneSnapshots(ctx context.Context, store storage.ObjectStore, table string, keep int) ([]string, error) {
	if keep < 1 {
		return nil, fmt.Errorf("keep must be at least 1, got %d", keep)
	}
	prefix, err := storage.SnapshotHistoryPrefix(table)
	if err != nil {
		return nil, err
	}
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list snapshots of %s: %w", table, err)
	}
	// Dated keys embed a sortable timestamp, so key order is age order.
	if len(objects) <= keep {
		return nil, nil
	}
	stale := objects[:len(objects)-keep]
	deleted := make([]string, 0, len(stale))
	for _, obj := range stale {
		if err := store.Delete(ctx, obj.Key); err != nil {
			return deleted, fmt.Errorf("delete snapshot %s: %w", obj.Key, err)
		}
		deleted = append(deleted, obj.Key)
	}
	return deleted, nil
}
