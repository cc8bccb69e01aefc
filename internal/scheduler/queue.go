// Copyright 2025 James Ross

// Package scheduler implements an in-memory, priority-aging task queue:
// items mature into eligibility, decay toward a priority floor as they age, expire
// at a deadline, and may belong to a rate-limited group or depend on other
// items completing first.
package scheduler

import (
	"container/heap"
	"encoding/json"
	"math/rand"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Queue is the aging priority scheduler. All mutable state is guarded by a
// single mutex, matching the original's threading.Lock-per-instance model.
type Queue struct {
	mu sync.Mutex

	priority   priorityHeap
	maturation timeHeap
	expiration timeHeap
	items      map[string]*Item

	groups         map[string]*Group
	defaultGroupID string

	completed map[string]bool
	failed    map[string]bool

	logger *zap.Logger
	now    func() time.Time

	newItemCond *sync.Cond
}

// New constructs an empty Queue. A nil logger is replaced with a no-op one.
func New(logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		priority:   priorityHeap{now: time.Now().UTC()},
		maturation: timeHeap{at: func(it *Item) time.Time { return it.Matures }},
		expiration: timeHeap{at: func(it *Item) time.Time { return it.Deadline }},
		items:      make(map[string]*Item),
		groups:     make(map[string]*Group),
		completed:  make(map[string]bool),
		failed:     make(map[string]bool),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	q.newItemCond = sync.NewCond(&q.mu)
	q.logger.Info("queue initialized")
	return q
}

// defaultGroup lazily creates the queue's default group, mirroring
// ApriQueue's default_group property.
func (q *Queue) defaultGroup() *Group {
	if q.defaultGroupID == "" {
		g := NewGroup(GroupSpec{}, q.now())
		q.groups[g.ID] = g
		q.defaultGroupID = g.ID
	}
	return q.groups[q.defaultGroupID]
}

// NewGroup registers a rate-limited group and returns its id.
func (q *Queue) NewGroup(spec GroupSpec) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	g := NewGroup(spec, q.now())
	q.groups[g.ID] = g
	q.logger.Debug("group created", zap.String("group_id", g.ID))
	return g.ID
}

// hasCyclicDependency walks the dependency graph with a DFS, seeding the
// visited/on-stack sets with candidateID itself before visiting each
// declared dependency, matching ApriQueue.has_cyclic_dependency.
func (q *Queue) hasCyclicDependency(candidateID string, dependencies []string) bool {
	visited := make(map[string]bool)
	stack := make(map[string]bool)

	var visit func(node string) bool
	visit = func(node string) bool {
		if stack[node] {
			return true
		}
		if visited[node] {
			return false
		}
		stack[node] = true
		visited[node] = true
		if it, ok := q.items[node]; ok {
			for _, dep := range it.Dependencies {
				if visit(dep) {
					return true
				}
			}
		}
		delete(stack, node)
		return false
	}

	stack[candidateID] = true
	visited[candidateID] = true
	for _, dep := range dependencies {
		if visit(dep) {
			return true
		}
	}
	delete(stack, candidateID)
	return false
}

// Push validates and enqueues a new item, returning its id.
func (q *Queue) Push(spec ItemSpec) (string, error) {
	q.mu.Lock()
	if spec.Group == "" {
		spec.Group = q.defaultGroup().ID
	}
	now := q.now()
	q.mu.Unlock()

	it, err := NewItem(spec, now)
	if err != nil {
		return "", err
	}

	if it.Deadline.Before(now) {
		q.logger.Error("item already expired at push time", zap.String("item_id", it.ID))
		return "", newErr(KindItemExpired, it.ID, "deadline has already passed")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.hasCyclicDependency(it.ID, it.Dependencies) {
		q.logger.Error("cyclic dependency detected", zap.String("item_id", it.ID))
		return "", newErr(KindCyclicDependency, it.ID, "would create a cyclic dependency")
	}

	heap.Push(&q.expiration, it)
	if it.Matures.After(now) {
		heap.Push(&q.maturation, it)
	} else {
		heap.Push(&q.priority, it)
	}
	q.items[it.ID] = it
	q.newItemCond.Broadcast()
	q.logger.Debug("item pushed", zap.String("item_id", it.ID))
	return it.ID, nil
}

// RetryItem re-enqueues an item for another attempt, applying backoff. It
// returns ErrRetryLimitExceeded if the item has no attempts remaining.
func (q *Queue) RetryItem(itemID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.retryItemLocked(itemID)
}

func (q *Queue) retryItemLocked(itemID string) error {
	it, ok := q.items[itemID]
	if !ok {
		return newErr(KindInvalidItem, itemID, "unknown item")
	}
	now := q.now()
	if err := it.retry(); err != nil {
		return err
	}
	if it.Matures.After(now) {
		heap.Push(&q.maturation, it)
	} else {
		heap.Push(&q.priority, it)
	}
	q.logger.Debug("item retried", zap.String("item_id", itemID), zap.Int("retries", it.Retries))
	return nil
}

// Pop removes and returns the next eligible item, running the full pop
// cycle: promote matured items, expire overdue items, reorder, then select.
func (q *Queue) Pop() (*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.priority.Len() == 0 && q.maturation.Len() == 0 {
		return nil, newErr(KindQueueEmpty, "", "no items to pop")
	}

	now := q.now()
	q.moveMaturedItems(now)
	q.removeExpiredItems(now)
	q.priority.now = now
	heap.Init(&q.priority)

	return q.popNextEligible(now)
}

func (q *Queue) moveMaturedItems(now time.Time) {
	for q.maturation.Len() > 0 {
		it := q.maturation.items[0]
		if it.Matures.After(now) {
			return
		}
		heap.Pop(&q.maturation)
		it.State = Ready
		heap.Push(&q.priority, it)
		q.logger.Debug("item matured", zap.String("item_id", it.ID))
	}
}

func (q *Queue) removeExpiredItems(now time.Time) {
	for q.expiration.Len() > 0 {
		it := q.expiration.items[0]
		if it.Deadline.After(now) {
			return
		}
		heap.Pop(&q.expiration)
		it.State = Expired
		q.removeFromPriorityHeap(it)
		q.logger.Debug("item expired", zap.String("item_id", it.ID))
	}
}

func (q *Queue) removeFromPriorityHeap(target *Item) {
	for i, it := range q.priority.items {
		if it == target {
			q.priority.items = append(q.priority.items[:i], q.priority.items[i+1:]...)
			return
		}
	}
}

func (q *Queue) popNextEligible(now time.Time) (*Item, error) {
	var accepted *Item
	var toRequeue []*Item

	for q.priority.Len() > 0 {
		it := heap.Pop(&q.priority).(*Item)

		if it.State == Expired {
			continue
		}
		if it.State == Immature {
			if it.Matures.After(now) {
				heap.Push(&q.maturation, it)
				continue
			}
			it.State = Ready
		}

		unmet := false
		for _, dep := range it.Dependencies {
			if !q.completed[dep] {
				unmet = true
				break
			}
		}
		if unmet {
			toRequeue = append(toRequeue, it)
			continue
		}

		if g, ok := q.groups[it.Group]; ok {
			if !g.ConsumeTokens(it.Cost, now) {
				toRequeue = append(toRequeue, it)
				continue
			}
		}

		accepted = it
		break
	}

	for _, it := range toRequeue {
		heap.Push(&q.priority, it)
	}

	if accepted == nil {
		return nil, newErr(KindQueueEmpty, "", "no eligible items at the current time")
	}
	accepted.State = InProgress
	popped := now
	accepted.LastPopped = &popped
	return accepted, nil
}

// MarkComplete records an item as completed, unblocking anything depending
// on it.
func (q *Queue) MarkComplete(itemID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[itemID]
	if !ok {
		q.logger.Warn("mark complete on unknown item", zap.String("item_id", itemID))
		return
	}
	it.State = Completed
	q.completed[itemID] = true
	q.logger.Debug("item completed", zap.String("item_id", itemID))
}

// MarkFailed attempts a retry; if none remain, the item is marked Failed.
func (q *Queue) MarkFailed(itemID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[itemID]
	if !ok {
		q.logger.Warn("mark failed on unknown item", zap.String("item_id", itemID))
		return
	}
	if err := q.retryItemLocked(itemID); err != nil {
		it.State = Failed
		q.failed[itemID] = true
		q.logger.Debug("item failed permanently", zap.String("item_id", itemID))
	}
}

// snapshotItem is the JSON-serializable form of an Item used by Save/Load.
type snapshotItem struct {
	ID             string     `json:"id"`
	Priority       float64    `json:"priority"`
	MinFracPrio    float64    `json:"minimum_fractional_priority"`
	Cost           int        `json:"cost"`
	AgingFactor    float64    `json:"aging_factor"`
	Enqueued       time.Time  `json:"enqueued"`
	Matures        time.Time  `json:"matures"`
	Deadline       time.Time  `json:"deadline"`
	MaxRetries     int        `json:"max_retries"`
	BackoffFactor  float64    `json:"backoff_factor"`
	BaseRetryDelay time.Duration `json:"base_retry_delay"`
	Jitter         float64    `json:"jitter"`
	Group          string     `json:"group"`
	Dependencies   []string   `json:"dependencies"`
	Retries        int        `json:"retries"`
	LastPopped     *time.Time `json:"last_popped,omitempty"`
	State          State      `json:"state"`
}

func toSnapshot(it *Item) snapshotItem {
	return snapshotItem{
		ID: it.ID, Priority: it.Priority, MinFracPrio: it.MinFracPrio, Cost: it.Cost,
		AgingFactor: it.AgingFactor, Enqueued: it.Enqueued, Matures: it.Matures, Deadline: it.Deadline,
		MaxRetries: it.MaxRetries, BackoffFactor: it.BackoffFactor, BaseRetryDelay: it.BaseRetryDelay,
		Jitter: it.Jitter, Group: it.Group, Dependencies: it.Dependencies, Retries: it.Retries,
		LastPopped: it.LastPopped, State: it.State,
	}
}

func fromSnapshot(s snapshotItem, now time.Time) *Item {
	return &Item{
		ID: s.ID, Priority: s.Priority, MinFracPrio: s.MinFracPrio, Cost: s.Cost,
		AgingFactor: s.AgingFactor, Enqueued: s.Enqueued, Matures: s.Matures, Deadline: s.Deadline,
		MaxRetries: s.MaxRetries, BackoffFactor: s.BackoffFactor, BaseRetryDelay: s.BaseRetryDelay,
		Jitter: s.Jitter, Group: s.Group, Dependencies: s.Dependencies, Retries: s.Retries,
		LastPopped: s.LastPopped, State: s.State,
		rng: rand.New(rand.NewSource(now.UnixNano())),
	}
}

// Save writes every item currently held by the queue (across all three
// collections) to file as a JSON array.
func (q *Queue) Save(path string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	all := make([]snapshotItem, 0, len(q.items))
	for _, it := range q.items {
		all = append(all, toSnapshot(it))
	}
	b, err := json.Marshal(all)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return err
	}
	q.logger.Info("queue state saved", zap.String("path", path))
	return nil
}

// Load replaces the queue's state with the snapshot at path. Per the
// resolved Open Question, any item whose deadline has already passed is
// skipped (and logged) rather than routed into both collections.
func (q *Queue) Load(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var snaps []snapshotItem
	if err := json.Unmarshal(b, &snaps); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.priority = priorityHeap{now: now}
	q.maturation = timeHeap{at: func(it *Item) time.Time { return it.Matures }}
	q.expiration = timeHeap{at: func(it *Item) time.Time { return it.Deadline }}
	q.items = make(map[string]*Item)

	for _, s := range snaps {
		if !s.Deadline.After(now) {
			q.logger.Info("skipping expired item on load", zap.String("item_id", s.ID))
			continue
		}
		it := fromSnapshot(s, now)
		q.items[it.ID] = it
		heap.Push(&q.expiration, it)
		if it.Matures.After(now) {
			heap.Push(&q.maturation, it)
		} else {
			heap.Push(&q.priority, it)
		}
	}
	q.logger.Info("queue state loaded", zap.String("path", path))
	return nil
}
