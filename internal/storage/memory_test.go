package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestMemoryStoreListIsPrefixedAndOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, key := range []string{
		"datasets/commercial/date=2026-02-02/b.parquet",
		"datasets/commercial/latest.parquet",
		"datasets/commercial/date=2026-01-01/a.parquet",
		"uploads/commercial.xlsx",
	} {
		if _, err := Upload(ctx, store, key, []byte("x"), ""); err != nil {
			t.Fatalf("Upload(%s) error = %v", key, err)
		}
	}

	objects, err := store.List(ctx, "datasets/commercial/date=")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var keys []string
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	want := []string{
		"datasets/commercial/date=2026-01-01/a.parquet",
		"datasets/commercial/date=2026-02-02/b.parquet",
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Fatalf("List() keys mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryStoreKeepsMetadata(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return at }

	opts := PutOptions{ContentType: "text/csv", Metadata: map[string]string{"Rows": "12"}}
	if _, err := store.Put(ctx, "uploads/a.csv", strings.NewReader("a,b"), 3, opts); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	info, err := store.Stat(ctx, "uploads/a.csv")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	want := ObjectInfo{
		Key:          "uploads/a.csv",
		Size:         3,
		ContentType:  "text/csv",
		LastModified: at,
		Metadata:     map[string]string{"rows": "12"},
	}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Fatalf("Stat() mismatch (-want +got):\n%s", diff)
	}
}
