package demo

import (
	"reflect"
	"testing"
	"time"

	"github.com/sqlsight/sqlsight/internal/importer"
)

func TestGeneratorDeterministicForSeed(t *testing.T) {
	fixedNow := time.Date(2026, 2, 19, 7, 30, 0, 0, time.UTC)

	g1 := NewGenerator(42)
	g2 := NewGenerator(42)
	g1.now = func() time.Time { return fixedNow }
	g2.now = func() time.Time { return fixedNow }

	f1 := g1.Frame(50)
	f2 := g2.Frame(50)
	if !reflect.DeepEqual(f1, f2) {
		t.Fatal("frames differ for the same seed")
	}
	if len(f1.Rows) != 50 {
		t.Fatalf("rows = %d", len(f1.Rows))
	}
}

func TestFrameCleansIntoCommercialSchema(t *testing.T) {
	g := NewGenerator(7)
	g.now = func() time.Time { return time.Date(2026, 2, 19, 0, 0, 0, 0, time.UTC) }

	ds := importer.Clean(g.Frame(300))
	kinds := map[string]importer.Kind{}
	for _, column := range ds.Columns {
		kinds[column.Name] = column.Kind
	}

	want := map[string]importer.Kind{
		"original_id":       importer.KindInteger,
		"region_nmae":       importer.KindText,
		"city_name":         importer.KindText,
		"lic_status":        importer.KindText,
		"shop_area":         importer.KindFloat,
		"g_issue_date":      importer.KindTimestamp,
		"g_expiration_date": importer.KindTimestamp,
	}
	for name, kind := range want {
		if kinds[name] != kind {
			t.Fatalf("column %s kind = %q, want %q (all: %v)", name, kinds[name], kind, kinds)
		}
	}
	if len(ds.Rows) == 0 || len(ds.Rows) > 300 {
		t.Fatalf("cleaned rows = %d", len(ds.Rows))
	}
}

func TestExpiredStatusFollowsExpirationDate(t *testing.T) {
	now := time.Date(2026, 2, 19, 0, 0, 0, 0, time.UTC)
	g := NewGenerator(3)
	g.now = func() time.Time { return now }

	frame := g.Frame(200)
	statusCol, expiresCol := indexOf(t, "Lic_Status"), indexOf(t, "G_Expiration_Date")
	for i, row := range frame.Rows {
		expires, err := time.Parse("2006-01-02", row[expiresCol])
		if err != nil {
			t.Fatalf("row %d expiration %q: %v", i, row[expiresCol], err)
		}
		want := "Active"
		if expires.Before(now) {
			want = "Expired"
		}
		if row[statusCol] != want {
			t.Fatalf("row %d status = %q, want %q", i, row[statusCol], want)
		}
	}
}

func indexOf(t *testing.T, column string) int {
	t.Helper()
	for i, name := range Columns {
		if name == column {
			return i
		}
	}
	t.Fatalf("column %s not found", column)
	return -1
}
