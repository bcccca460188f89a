package cache

import (
	"testing"
	"time"

	"github.com/use-agent/harvester/models"
)

func resp(id string) *models.ScrapeResponse {
	return &models.ScrapeResponse{
		Success:  true,
		Metadata: &models.ResultMetadata{RequestID: id},
	}
}

func TestGetMissAndHit(t *testing.T) {
	c := New(10)
	key := Key("https://example.com/", "headings")

	if _, ok := c.Get(key, 60); ok {
		t.Error("hit on empty cache")
	}

	c.Set(key, resp("a"))
	got, ok := c.Get(key, 60)
	if !ok {
		t.Fatal("miss after Set")
	}
	if got.Metadata.RequestID != "a" {
		t.Errorf("request id = %q, want a", got.Metadata.RequestID)
	}
}

func TestZeroMaxAgeDisablesLookup(t *testing.T) {
	c := New(10)
	key := Key("https://example.com/", "headings")
	c.Set(key, resp("a"))

	if _, ok := c.Get(key, 0); ok {
		t.Error("hit with maxAge=0, want lookup disabled")
	}
}

func TestExpiredEntryIsDropped(t *testing.T) {
	c := New(10)
	key := Key("https://example.com/", "headings")
	c.Set(key, resp("a"))

	base := time.Now()
	c.now = func() time.Time { return base.Add(2 * time.Minute) }

	if _, ok := c.Get(key, 60); ok {
		t.Error("hit on entry older than maxAge")
	}
	if c.Len() != 0 {
		t.Errorf("len = %d after expired read, want 0", c.Len())
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(2)
	k1 := Key("https://example.com/1", "x")
	k2 := Key("https://example.com/2", "x")
	k3 := Key("https://example.com/3", "x")

	c.Set(k1, resp("1"))
	c.Set(k2, resp("2"))

	// Touch k1 so k2 becomes the eviction candidate.
	if _, ok := c.Get(k1, 60); !ok {
		t.Fatal("k1 missing")
	}

	c.Set(k3, resp("3"))
	if _, ok := c.Get(k2, 60); ok {
		t.Error("k2 survived eviction, want least recently used dropped")
	}
	if _, ok := c.Get(k1, 60); !ok {
		t.Error("k1 evicted despite recent use")
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
}

func TestKeyDistinguishesSpec(t *testing.T) {
	if Key("https://example.com/", "headings") == Key("https://example.com/", "links") {
		t.Error("different specs produced the same key")
	}
}
