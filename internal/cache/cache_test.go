// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"sync"
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := New(time.Minute)

	c.Set("key", "value")
	got, ok := c.Get("key")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.(string) != "value" {
		t.Errorf("Get() = %v, want value", got)
	}
}

func TestGetMiss(t *testing.T) {
	c := New(time.Minute)

	if _, ok := c.Get("absent"); ok {
		t.Error("expected miss for absent key")
	}
	stats := c.GetStats()
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
}

func TestExpiration(t *testing.T) {
	c := New(time.Minute)

	c.SetWithTTL("short", 1, -time.Second) // already expired
	if _, ok := c.Get("short"); ok {
		t.Error("expired entry should miss")
	}
	if c.GetStats().Evictions != 1 {
		t.Error("expired entry should count as eviction")
	}
}

func TestClear(t *testing.T) {
	c := New(time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()

	if _, ok := c.Get("a"); ok {
		t.Error("Clear() should remove all entries")
	}
	if c.GetStats().TotalKeys != 0 {
		t.Error("TotalKeys should reset after Clear()")
	}
}

func TestHitRate(t *testing.T) {
	c := New(time.Minute)

	c.Set("k", 1)
	c.Get("k")      // hit
	c.Get("absent") // miss

	if rate := c.HitRate(); rate != 50.0 {
		t.Errorf("HitRate() = %v, want 50.0", rate)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := GenerateKey("summary", n%5)
			c.Set(key, n)
			c.Get(key)
		}(i)
	}
	wg.Wait()
}

func TestGenerateKeyStable(t *testing.T) {
	type params struct {
		PostID int64
		From   string
	}
	a := GenerateKey("summary", params{PostID: 1, From: "x"})
	b := GenerateKey("summary", params{PostID: 1, From: "x"})
	other := GenerateKey("summary", params{PostID: 2, From: "x"})

	if a != b {
		t.Error("identical params must produce identical keys")
	}
	if a == other {
		t.Error("different params must produce different keys")
	}
}
