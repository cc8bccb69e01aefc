// Copyright 2025 James Ross
package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestQueue(t *testing.T, now time.Time) *Queue {
	t.Helper()
	q := New(nil)
	q.now = func() time.Time { return now }
	return q
}

func TestPushAndPopReturnsHighestPriorityFirst(t *testing.T) {
	now := time.Now().UTC()
	q := newTestQueue(t, now)

	_, err := q.Push(ItemSpec{Priority: 1})
	if err != nil {
		t.Fatal(err)
	}
	highID, err := q.Push(ItemSpec{Priority: 10})
	if err != nil {
		t.Fatal(err)
	}

	got, err := q.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != highID {
		t.Fatalf("expected highest priority item %s, got %s", highID, got.ID)
	}
}

func TestPushRejectsAlreadyExpiredDeadline(t *testing.T) {
	now := time.Now().UTC()
	q := newTestQueue(t, now)
	past := now.Add(-time.Hour)
	_, err := q.Push(ItemSpec{Priority: 1, Deadline: &past})
	if err == nil {
		t.Fatal("expected ItemExpired error")
	}
}

func TestPushRejectsCyclicDependency(t *testing.T) {
	now := time.Now().UTC()
	q := newTestQueue(t, now)

	aID, err := q.Push(ItemSpec{Priority: 1})
	if err != nil {
		t.Fatal(err)
	}
	bID, err := q.Push(ItemSpec{Priority: 1, Dependencies: []string{aID}})
	if err != nil {
		t.Fatalf("unexpected cyclic detection on a simple chain: %v", err)
	}

	// Wiring a to depend on b would close the cycle a -> b -> a.
	q.mu.Lock()
	q.items[aID].Dependencies = []string{bID}
	cyclic := q.hasCyclicDependency(aID, q.items[aID].Dependencies)
	q.mu.Unlock()
	if !cyclic {
		t.Fatal("expected a -> b -> a to be detected as cyclic")
	}
}

func TestPopEmptyQueueReturnsQueueEmpty(t *testing.T) {
	q := newTestQueue(t, time.Now().UTC())
	_, err := q.Pop()
	if err == nil {
		t.Fatal("expected QueueEmpty error")
	}
}

func TestImmatureItemBecomesEligibleAfterMaturation(t *testing.T) {
	now := time.Now().UTC()
	q := newTestQueue(t, now)
	matures := now.Add(time.Minute)
	id, err := q.Push(ItemSpec{Priority: 1, Matures: &matures})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := q.Pop(); err == nil {
		t.Fatal("expected item to still be immature")
	}

	q.now = func() time.Time { return now.Add(2 * time.Minute) }
	got, err := q.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != id {
		t.Fatalf("expected matured item %s, got %s", id, got.ID)
	}
}

func TestImmatureItemExpiresBeforeBeingPopped(t *testing.T) {
	now := time.Now().UTC()
	q := newTestQueue(t, now)
	matures := now.Add(2 * time.Hour)
	deadline := now.Add(3 * time.Hour)
	id, err := q.Push(ItemSpec{Priority: 1, Matures: &matures, Deadline: &deadline})
	if err != nil {
		t.Fatal(err)
	}

	q.now = func() time.Time { return now.Add(4 * time.Hour) }
	if _, err := q.Pop(); err == nil {
		t.Fatal("expected QueueEmpty since the only item expired")
	}
	q.mu.Lock()
	state := q.items[id].State
	q.mu.Unlock()
	if state != Expired {
		t.Fatalf("expected Expired state, got %v", state)
	}
}

func TestDependencyBlocksUntilCompleted(t *testing.T) {
	now := time.Now().UTC()
	q := newTestQueue(t, now)
	depID, err := q.Push(ItemSpec{Priority: 1})
	if err != nil {
		t.Fatal(err)
	}
	blockedID, err := q.Push(ItemSpec{Priority: 100, Dependencies: []string{depID}})
	if err != nil {
		t.Fatal(err)
	}

	got, err := q.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != depID {
		t.Fatalf("expected dependency %s to pop first despite lower priority, got %s", depID, got.ID)
	}

	q.MarkComplete(depID)
	got2, err := q.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if got2.ID != blockedID {
		t.Fatalf("expected %s to become eligible after its dependency completed", blockedID)
	}
}

func TestGroupTokenExhaustionRequeues(t *testing.T) {
	now := time.Now().UTC()
	q := newTestQueue(t, now)
	groupID := q.NewGroup(GroupSpec{MaxTokens: 1, RefillRate: 0})

	firstID, err := q.Push(ItemSpec{Priority: 5, Group: groupID})
	if err != nil {
		t.Fatal(err)
	}
	secondID, err := q.Push(ItemSpec{Priority: 1, Group: groupID})
	if err != nil {
		t.Fatal(err)
	}

	got, err := q.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != firstID {
		t.Fatalf("expected %s first", firstID)
	}
	_, err = q.Pop()
	if err == nil {
		t.Fatalf("expected %s to be blocked by exhausted group tokens", secondID)
	}
}

func TestMarkFailedRetriesThenFails(t *testing.T) {
	now := time.Now().UTC()
	q := newTestQueue(t, now)
	one := 1
	id, err := q.Push(ItemSpec{Priority: 1, MaxRetries: &one})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.Pop(); err != nil {
		t.Fatal(err)
	}

	q.MarkFailed(id)
	q.mu.Lock()
	state := q.items[id].State
	q.mu.Unlock()
	if state == Failed {
		t.Fatal("expected a retry to be available before failing")
	}

	q.MarkFailed(id)
	q.mu.Lock()
	state = q.items[id].State
	q.mu.Unlock()
	if state != Failed {
		t.Fatalf("expected Failed after exhausting retries, got %v", state)
	}
}

func TestSaveLoadSkipsExpiredItems(t *testing.T) {
	now := time.Now().UTC()
	q := newTestQueue(t, now)
	deadline := now.Add(time.Hour)
	liveID, err := q.Push(ItemSpec{Priority: 1, Deadline: &deadline})
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	if err := q.Save(path); err != nil {
		t.Fatal(err)
	}

	q2 := New(nil)
	q2.now = func() time.Time { return now.Add(2 * time.Hour) } // past liveID's deadline
	if err := q2.Load(path); err != nil {
		t.Fatal(err)
	}
	if _, ok := q2.items[liveID]; ok {
		t.Fatal("expected the now-expired item to be skipped on load")
	}

	q3 := New(nil)
	q3.now = func() time.Time { return now }
	if err := q3.Load(path); err != nil {
		t.Fatal(err)
	}
	if _, ok := q3.items[liveID]; !ok {
		t.Fatal("expected the still-live item to survive a round trip")
	}

	_ = os.Remove(path)
}
