package cache

import (
	"testing"
	"time"

	"levelcore/internal/model"
)

func TestMemoryGetMiss(t *testing.T) {
	m := NewMemory()
	if _, ok := m.Get("missing"); ok {
		t.Fatal("expected a miss on an empty cache")
	}
}

func TestMemorySetThenGet(t *testing.T) {
	m := NewMemory()
	v := &model.VerdictSnapshot{Pair: "BTC/USDT", Admitted: true}
	m.Set("BTC/USDT:long", v, time.Minute)

	got, ok := m.Get("BTC/USDT:long")
	if !ok {
		t.Fatal("expected a hit")
	}
	if got.Pair != "BTC/USDT" || !got.Admitted {
		t.Fatalf("got unexpected verdict: %+v", got)
	}
}

func TestMemoryEntryExpires(t *testing.T) {
	m := NewMemory()
	m.Set("k", &model.VerdictSnapshot{}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := m.Get("k"); ok {
		t.Fatal("expected the entry to have expired")
	}
	if m.Len() != 0 {
		t.Fatalf("expected expired entry to be evicted on read, Len()=%d", m.Len())
	}
}

func TestMemorySweepRemovesOnlyExpired(t *testing.T) {
	m := NewMemory()
	m.Set("fresh", &model.VerdictSnapshot{}, time.Minute)
	m.Set("stale", &model.VerdictSnapshot{}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	removed := m.Sweep()
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", m.Len())
	}
}
