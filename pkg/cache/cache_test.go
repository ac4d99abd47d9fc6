package cache

import (
	"errors"
	"testing"
	"time"
)

func TestSetAndGet(t *testing.T) {
	c := New[string](time.Second)
	c.Set("product:STANDARD", "standard")
	val, ok := c.Get("product:STANDARD")
	if !ok || val != "standard" {
		t.Fatalf("expected standard, got %v, exists=%v", val, ok)
	}
}

func TestExpiration(t *testing.T) {
	now := time.Unix(0, 0)
	c := New[int](time.Minute).WithClock(func() time.Time { return now })
	c.Set("k", 1)
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected expired key to return false")
	}
	if n := c.Purge(); n != 1 {
		t.Fatalf("expected 1 purged entry, got %d", n)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after purge")
	}
}

func TestGetOrLoad(t *testing.T) {
	c := New[int](time.Minute)
	calls := 0
	load := func() (int, error) {
		calls++
		return 7, nil
	}
	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad("k", load)
		if err != nil || v != 7 {
			t.Fatalf("unexpected result %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected loader to run once, ran %d times", calls)
	}

	_, err := c.GetOrLoad("bad", func() (int, error) { return 0, errors.New("db down") })
	if err == nil {
		t.Fatalf("expected loader error")
	}
	if _, ok := c.Get("bad"); ok {
		t.Fatalf("errors must not be cached")
	}
}

func TestInvalidate(t *testing.T) {
	c := New[string](time.Second)
	c.Set("product:id:1", "a")
	c.Set("product:code:TRIAL", "a")
	c.Set("plan:1", "p")
	c.Invalidate("product:")
	_, ok1 := c.Get("product:id:1")
	_, ok2 := c.Get("product:code:TRIAL")
	_, ok3 := c.Get("plan:1")
	if ok1 || ok2 {
		t.Fatalf("expected product keys to be invalidated")
	}
	if !ok3 {
		t.Fatalf("expected plan:1 to still exist")
	}
}
