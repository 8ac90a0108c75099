package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildSnapshotPath returns the object key for an immutable parquet snapshot
// of an imported dataset.
func BuildSnapshotPath(tableName string, importedAt time.Time) (string, error) {
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	ts := importedAt.UTC()
	return path.Join(
		"datasets",
		tableName,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("%s-%s.parquet", tableName, ts.Format("20060102T150405Z")),
	), nil
}

// LatestSnapshotPath is the stable key the duckdb warehouse reads a table from.
func LatestSnapshotPath(tableName string) (string, error) {
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	return path.Join("datasets", tableName, "latest.parquet"), nil
}

// SnapshotHistoryPrefix is the key prefix shared by every dated snapshot of
// a table. The latest key does not carry it.
func SnapshotHistoryPrefix(tableName string) (string, error) {
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	return path.Join("datasets", tableName, "date="), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
