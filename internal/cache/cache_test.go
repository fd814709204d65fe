package cache

import (
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestLRUCache_GetSetExpire(t *testing.T) {
	clk := &clock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](4, time.Minute).WithClock(clk.now)

	c.Set("a", "1")
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}

	clk.t = clk.t.Add(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expired entry returned")
	}
	if c.Size() != 0 {
		t.Fatalf("expired entry not removed, size %d", c.Size())
	}
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("%s missing", k)
		}
	}

	c.Set("a", 10)
	if v, _ := c.Get("a"); v != 10 {
		t.Fatalf("overwrite failed, got %d", v)
	}
}

func TestLRUCache_DeletePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Hour)
	c.Set("categories:1", 1)
	c.Set("categories:12", 2)
	c.Set("categories:2", 3)

	if n := c.DeletePrefix("categories:1"); n != 2 {
		t.Fatalf("DeletePrefix removed %d, want 2", n)
	}
	c.Delete("categories:2")
	if c.Size() != 0 {
		t.Fatalf("size %d after deletes", c.Size())
	}
}

func TestManager_CleanAll(t *testing.T) {
	clk := &clock{t: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	a := NewLRUCache[int](10, time.Minute).WithClock(clk.now)
	b := NewLRUCache[int](10, time.Hour).WithClock(clk.now)
	a.Set("x", 1)
	a.Set("y", 2)
	b.Set("z", 3)

	m := NewManager()
	m.Register(a)
	m.Register(b)

	clk.t = clk.t.Add(5 * time.Minute)
	if n := m.CleanAll(); n != 2 {
		t.Fatalf("CleanAll removed %d, want 2", n)
	}
	if b.Size() != 1 {
		t.Fatalf("fresh entry evicted")
	}
}

func TestManager_StopIdempotent(t *testing.T) {
	m := NewManager()
	m.Stop()
	m.Stop()

	started := NewManager()
	started.StartCleanup(time.Millisecond)
	started.StartCleanup(time.Millisecond)
	started.Stop()
	started.Stop()
}
