package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterConsumesAndRefills(t *testing.T) {
	l := New()
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	if !l.allowAt(now, "RELIANCE", 2, 1) {
		t.Fatal("first token should pass")
	}
	if !l.allowAt(now, "RELIANCE", 2, 1) {
		t.Fatal("second token should pass")
	}
	if l.allowAt(now, "RELIANCE", 2, 1) {
		t.Fatal("bucket should be empty")
	}
	// one second refills one token
	if !l.allowAt(now.Add(time.Second), "RELIANCE", 2, 1) {
		t.Fatal("refilled token should pass")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	l := New()
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	if !l.allowAt(now, "RELIANCE", 1, 1) {
		t.Fatal("first key should pass")
	}
	if l.allowAt(now, "RELIANCE", 1, 1) {
		t.Fatal("first key should be exhausted")
	}
	if !l.allowAt(now, "TCS", 1, 1) {
		t.Fatal("second key must not share the bucket")
	}
}
