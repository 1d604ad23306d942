package cache

import (
	"testing"
	"time"
)

func TestTTLMapFreshnessAndSweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewTTLMap[string, int]()
	m.SetWithTTL("short", 1, now, time.Minute)
	m.SetWithTTL("forever", 2, now, 0)

	if v, ok := m.GetFresh("short", now.Add(30*time.Second)); !ok || v != 1 {
		t.Fatalf("expected fresh short entry, got %d %v", v, ok)
	}
	if _, ok := m.GetFresh("short", now.Add(time.Minute)); ok {
		t.Fatal("expected short entry to be expired at its deadline")
	}
	if removed := m.Sweep(now.Add(2 * time.Minute)); removed != 1 {
		t.Fatalf("expected one swept entry, got %d", removed)
	}
	if n := len(m.Entries()); n != 1 {
		t.Fatalf("expected one remaining entry, got %d", n)
	}
	if _, ok := m.GetFresh("forever", now.Add(24*time.Hour)); !ok {
		t.Fatal("zero expiry entry should never lapse")
	}
}

func TestTTLMapTakeIsSingleUse(t *testing.T) {
	now := time.Now()
	m := NewTTLMap[string, string]()
	m.SetWithTTL("k", "v", now, time.Minute)
	if v, ok := m.Take("k", now); !ok || v != "v" {
		t.Fatalf("expected first take to succeed, got %q %v", v, ok)
	}
	if _, ok := m.Take("k", now); ok {
		t.Fatal("expected second take to fail")
	}

	m.SetWithTTL("old", "v", now, time.Second)
	if _, ok := m.Take("old", now.Add(time.Hour)); ok {
		t.Fatal("expected expired take to fail")
	}
	if _, ok := m.Entries()["old"]; ok {
		t.Fatal("expected expired key removed by take")
	}
}
