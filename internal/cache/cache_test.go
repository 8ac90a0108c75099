package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type cachedAnswer struct {
	SQL  string `json:"sql"`
	Rows int    `json:"rows"`
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "answer:1", cachedAnswer{SQL: "SELECT 1", Rows: 1}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !mr.Exists("sqlsight:answer:1") {
		t.Fatal("expected prefixed key in redis")
	}

	var got cachedAnswer
	found, err := c.Get(ctx, "answer:1", &got)
	if err != nil || !found {
		t.Fatalf("Get() = %v, %v", found, err)
	}
	if got.SQL != "SELECT 1" || got.Rows != 1 {
		t.Fatalf("Get() value = %+v", got)
	}

	mr.FastForward(2 * time.Minute)
	found, err = c.Get(ctx, "answer:1", &got)
	if err != nil || found {
		t.Fatalf("Get() after ttl = %v, %v", found, err)
	}
}

func TestRedisCacheMissAndPing(t *testing.T) {
	c, _ := newTestCache(t)
	var got cachedAnswer
	found, err := c.Get(context.Background(), "missing", &got)
	if err != nil || found {
		t.Fatalf("Get() = %v, %v", found, err)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestRedisCacheCorruptValue(t *testing.T) {
	c, mr := newTestCache(t)
	if err := mr.Set("sqlsight:answer:bad", "{not json"); err != nil {
		t.Fatalf("miniredis Set() error = %v", err)
	}
	var got cachedAnswer
	if _, err := c.Get(context.Background(), "answer:bad", &got); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestAnswerKeyNormalizesQuestion(t *testing.T) {
	a := AnswerKey("  Top regions BY fee ", "BAR", []string{"renewals", "commercial"})
	b := AnswerKey("top regions by   fee", "bar", []string{"commercial", "renewals"})
	if a != b {
		t.Fatalf("AnswerKey() differs: %s vs %s", a, b)
	}
	if a == AnswerKey("top regions by fee", "pie", []string{"commercial", "renewals"}) {
		t.Fatal("AnswerKey() should depend on chart type")
	}
}

func TestNoop(t *testing.T) {
	var n Noop
	found, err := n.Get(context.Background(), "k", &cachedAnswer{})
	if found || err != nil {
		t.Fatalf("Noop.Get() = %v, %v", found, err)
	}
}

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisWithClient(client, "sqlsight:"), mr
}
