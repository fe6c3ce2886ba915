// cache/cache_test.go
package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func exerciseCache(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, 1); err != nil || ok {
		t.Fatalf("Expected miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, 1, []byte(`{"game":1}`)); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	data, ok, err := c.Get(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("Expected hit, got ok=%v err=%v", ok, err)
	}
	if string(data) != `{"game":1}` {
		t.Errorf("Expected payload, got %s", data)
	}

	if err := c.Set(ctx, 2, []byte("two")); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	if err := c.Delete(ctx, 1, 2); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, 2); ok {
		t.Error("Expected miss after delete")
	}
}

func TestMemoryCache(t *testing.T) {
	exerciseCache(t, NewMemory(time.Minute))
}

func TestMemoryCacheExpires(t *testing.T) {
	m := NewMemory(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.Set(context.Background(), 7, []byte("x"))
	now = now.Add(2 * time.Minute)

	if _, ok, _ := m.Get(context.Background(), 7); ok {
		t.Error("Expected entry to expire")
	}
	if m.Len() != 0 {
		t.Errorf("Expected expired entry to be dropped, got %d", m.Len())
	}
}

func TestMemoryCacheCopiesPayload(t *testing.T) {
	m := NewMemory(0)
	payload := []byte("abc")
	m.Set(context.Background(), 1, payload)
	payload[0] = 'z'

	data, _, _ := m.Get(context.Background(), 1)
	if string(data) != "abc" {
		t.Errorf("Expected stored copy, got %s", data)
	}
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("SKULLSCORE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SKULLSCORE_TEST_REDIS_ADDR not set")
	}
	r, err := NewRedis(context.Background(), addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer r.Close()
	r.Delete(context.Background(), 1, 2)

	exerciseCache(t, r)
}
