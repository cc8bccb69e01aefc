// Copyright 2025 James Ross
package scheduler

import "time"

// priorityHeap orders Items by effective priority, highest first, evaluated
// at a snapshot time supplied by the queue on each pop cycle.
type priorityHeap struct {
	items []*Item
	now   time.Time
}

func (h priorityHeap) Len() int { return len(h.items) }
func (h priorityHeap) Less(i, j int) bool {
	return h.items[i].EffectivePriority(h.now) > h.items[j].EffectivePriority(h.now)
}
func (h priorityHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *priorityHeap) Push(x any)   { h.items = append(h.items, x.(*Item)) }
func (h *priorityHeap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

// timeHeap orders Items by an associated timestamp, earliest first. Used for
// both the maturation heap and the expiration heap.
type timeHeap struct {
	items []*Item
	at    func(*Item) time.Time
}

func (h timeHeap) Len() int { return len(h.items) }
func (h timeHeap) Less(i, j int) bool {
	return h.at(h.items[i]).Before(h.at(h.items[j]))
}
func (h timeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *timeHeap) Push(x any)   { h.items = append(h.items, x.(*Item)) }
func (h *timeHeap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}
