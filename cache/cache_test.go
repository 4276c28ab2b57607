package cache

import (
	"testing"
	"time"
)

type entry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSetGet(t *testing.T) {
	c := newTestCache(t)

	if err := c.Set("k", entry{Name: "a", Count: 2}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got entry
	if !c.Get("k", &got) {
		t.Fatal("Get: not found")
	}
	if got != (entry{Name: "a", Count: 2}) {
		t.Errorf("Get = %+v", got)
	}

	var missing entry
	if c.Get("other", &missing) {
		t.Error("Get(other) found a value")
	}
}

func TestExpiry(t *testing.T) {
	c := newTestCache(t)

	// badger TTLs have one-second resolution.
	if err := c.Set("k", entry{Name: "a"}, time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(2100 * time.Millisecond)

	var got entry
	if c.Get("k", &got) {
		t.Errorf("expired entry still readable: %+v", got)
	}
}

func TestDelete(t *testing.T) {
	c := newTestCache(t)

	if err := c.Set("k", entry{Name: "a"}, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Delete("k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	var got entry
	if c.Get("k", &got) {
		t.Error("deleted entry still readable")
	}
	if err := c.Delete("never-set"); err != nil {
		t.Errorf("Delete(missing) = %v", err)
	}
}

func TestGenerateKey(t *testing.T) {
	a := GenerateKey("settings", "registry")
	b := GenerateKey("settings", "registry")
	c := GenerateKey("settingsregistry")

	if a != b {
		t.Error("GenerateKey is not deterministic")
	}
	if a == c {
		t.Error("GenerateKey ignores part boundaries")
	}
	if len(a) != 64 {
		t.Errorf("len(GenerateKey) = %d, want 64", len(a))
	}
}
