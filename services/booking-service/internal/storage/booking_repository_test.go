package storage

import (
	"testing"
	"time"
)

func TestSlotLockKey(t *testing.T) {
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	a := slotLockKey("doc-1", day, 540)
	if a != "slot:doc-1:2026-09-07:540" {
		t.Fatalf("key = %q", a)
	}
	if b := slotLockKey("doc-1", day, 540); b != a {
		t.Fatalf("same slot produced different keys: %q vs %q", a, b)
	}

	// The time-of-day component of the date must not leak into the key:
	// two transactions for the same calendar day need the same lock.
	later := time.Date(2026, 9, 7, 15, 30, 0, 0, time.UTC)
	if b := slotLockKey("doc-1", later, 540); b != a {
		t.Fatalf("same day produced different keys: %q vs %q", a, b)
	}

	if b := slotLockKey("doc-2", day, 540); b == a {
		t.Fatal("different providers must not share a key")
	}
	if b := slotLockKey("doc-1", day, 570); b == a {
		t.Fatal("different start minutes must not share a key")
	}
	if b := slotLockKey("doc-1", day.AddDate(0, 0, 1), 540); b == a {
		t.Fatal("different days must not share a key")
	}
}
