package state

import (
	"errors"
	"testing"
	"time"

	"github.com/leapstack-labs/leaprules/pkg/core"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func setupLockStore(t *testing.T) (*SQLiteStore, *fakeClock, int64) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := setupTestStore(t, WithClock(clock.Now), WithLockTimeout(30*time.Minute))
	rule := mustCreateRule(t, store, &core.Rule{Name: "locked"})
	return store, clock, rule.ID
}

func TestSQLiteStore_LockRule(t *testing.T) {
	store, clock, id := setupLockStore(t)

	if err := store.LockRule(id, "alice", false); err != nil {
		t.Fatalf("failed to lock: %v", err)
	}

	lock, err := store.GetLock(id)
	if err != nil {
		t.Fatalf("failed to get lock: %v", err)
	}
	if lock.LockedBy != "alice" || !lock.LockedAt.Equal(clock.now) {
		t.Errorf("unexpected lock: %+v", lock)
	}

	// holder may refresh
	clock.Advance(10 * time.Minute)
	if err := store.LockRule(id, "alice", false); err != nil {
		t.Fatalf("holder failed to refresh lock: %v", err)
	}

	// someone else is refused
	err = store.LockRule(id, "bob", false)
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError, got %v", err)
	}
	if locked.LockedBy != "alice" || locked.RuleID != id {
		t.Errorf("unexpected LockedError: %+v", locked)
	}

	// force takes over
	if err := store.LockRule(id, "bob", true); err != nil {
		t.Fatalf("forced lock failed: %v", err)
	}
	lock, _ = store.GetLock(id)
	if lock.LockedBy != "bob" {
		t.Errorf("expected bob to hold the lock, got %s", lock.LockedBy)
	}
}

func TestSQLiteStore_LockExpiry(t *testing.T) {
	store, clock, id := setupLockStore(t)

	if err := store.LockRule(id, "alice", false); err != nil {
		t.Fatalf("failed to lock: %v", err)
	}

	clock.Advance(29 * time.Minute)
	if err := store.LockRule(id, "bob", false); err == nil {
		t.Fatal("expected lock to still be held")
	}

	clock.Advance(time.Minute)
	if _, err := store.GetLock(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected expired lock to read as ErrNotFound, got %v", err)
	}
	if err := store.LockRule(id, "bob", false); err != nil {
		t.Fatalf("expected expired lock to be taken over, got %v", err)
	}
}

func TestSQLiteStore_UnlockRule(t *testing.T) {
	store, _, id := setupLockStore(t)

	// unlocking an unlocked rule is a no-op
	if err := store.UnlockRule(id, "alice", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.LockRule(id, "alice", false); err != nil {
		t.Fatalf("failed to lock: %v", err)
	}

	var locked *LockedError
	if err := store.UnlockRule(id, "bob", false); !errors.As(err, &locked) {
		t.Fatalf("expected LockedError, got %v", err)
	}
	if err := store.UnlockRule(id, "alice", false); err != nil {
		t.Fatalf("holder failed to unlock: %v", err)
	}
	if _, err := store.GetLock(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected no lock after unlock, got %v", err)
	}

	if err := store.LockRule(id, "alice", false); err != nil {
		t.Fatalf("failed to relock: %v", err)
	}
	if err := store.UnlockRule(id, "admin", true); err != nil {
		t.Fatalf("forced unlock failed: %v", err)
	}
	if _, err := store.GetLock(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected forced unlock to clear lock, got %v", err)
	}
}

func TestSQLiteStore_LockErrors(t *testing.T) {
	store, _, id := setupLockStore(t)

	if err := store.LockRule(999, "alice", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown rule, got %v", err)
	}
	if err := store.LockRule(id, "", false); err == nil {
		t.Error("expected empty owner to be rejected")
	}

	err := (&LockedError{RuleID: 7, LockedBy: "alice", LockedAt: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}).Error()
	if err != "rule 7 is locked by alice since 2026-05-01T09:00:00Z" {
		t.Errorf("unexpected message: %s", err)
	}
}
