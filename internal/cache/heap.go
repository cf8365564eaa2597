// Motrix - Marketplace Behavior Analytics and Real-Time Learning
// Copyright 2026 Motrix Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/motrixlab/motrix

package cache

import (
	"container/heap"
	"sync"
	"time"
)

// HeapItem is one keyed, time-ordered element of a KeyedHeap.
type HeapItem[T any] struct {
	Key       string
	Value     T
	Timestamp time.Time
	index     int // position in the backing slice, kept current by Swap
}

// KeyedHeap is a capacity-bounded min-heap ordered by timestamp with O(1)
// key lookup. The dead letter queue keeps failed events on one: the root
// is always the oldest failure, so capacity eviction drops the item that
// has waited longest, and keyed access lets retries update or remove a
// specific event without scanning.
type KeyedHeap[T any] struct {
	mu     sync.RWMutex
	inner  itemHeap[T]
	byKey  map[string]*HeapItem[T]
	maxLen int // 0 = unbounded
}

// NewKeyedHeap creates a min-heap holding at most maxLen items.
func NewKeyedHeap[T any](maxLen int) *KeyedHeap[T] {
	return &KeyedHeap[T]{
		byKey:  make(map[string]*HeapItem[T]),
		maxLen: maxLen,
	}
}

// Push inserts value under key at the given timestamp. Pushing an
// existing key overwrites its value and timestamp in place. When the
// insert overflows capacity, the oldest item is evicted and returned.
func (h *KeyedHeap[T]) Push(key string, value T, timestamp time.Time) *HeapItem[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	if item, ok := h.byKey[key]; ok {
		item.Value = value
		item.Timestamp = timestamp
		heap.Fix(&h.inner, item.index)
		return nil
	}

	item := &HeapItem[T]{Key: key, Value: value, Timestamp: timestamp}
	heap.Push(&h.inner, item)
	h.byKey[key] = item

	if h.maxLen > 0 && len(h.inner) > h.maxLen {
		return h.popLocked()
	}
	return nil
}

// Pop removes and returns the oldest item, or nil when empty.
func (h *KeyedHeap[T]) Pop() *HeapItem[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.popLocked()
}

// Peek returns the oldest item without removing it, or nil when empty.
func (h *KeyedHeap[T]) Peek() *HeapItem[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.inner) == 0 {
		return nil
	}
	return h.inner[0]
}

// Get returns the item under key, or nil when absent.
func (h *KeyedHeap[T]) Get(key string) *HeapItem[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byKey[key]
}

// Remove deletes the item under key and returns it, or nil when absent.
func (h *KeyedHeap[T]) Remove(key string) *HeapItem[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	item, ok := h.byKey[key]
	if !ok {
		return nil
	}
	heap.Remove(&h.inner, item.index)
	delete(h.byKey, key)
	return item
}

// Update moves the item under key to a new timestamp. Returns false
// when the key is absent.
func (h *KeyedHeap[T]) Update(key string, timestamp time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	item, ok := h.byKey[key]
	if !ok {
		return false
	}
	item.Timestamp = timestamp
	heap.Fix(&h.inner, item.index)
	return true
}

// Len returns the number of items.
func (h *KeyedHeap[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.inner)
}

// PopBefore removes and returns every item older than t, oldest first.
func (h *KeyedHeap[T]) PopBefore(t time.Time) []*HeapItem[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	var due []*HeapItem[T]
	for len(h.inner) > 0 && h.inner[0].Timestamp.Before(t) {
		due = append(due, h.popLocked())
	}
	return due
}

// Clear drops every item.
func (h *KeyedHeap[T]) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.inner = nil
	h.byKey = make(map[string]*HeapItem[T])
}

// All returns a snapshot of every item in no particular order.
func (h *KeyedHeap[T]) All() []*HeapItem[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snapshot := make([]*HeapItem[T], len(h.inner))
	copy(snapshot, h.inner)
	return snapshot
}

func (h *KeyedHeap[T]) popLocked() *HeapItem[T] {
	if len(h.inner) == 0 {
		return nil
	}
	item := heap.Pop(&h.inner).(*HeapItem[T])
	delete(h.byKey, item.Key)
	return item
}

// itemHeap carries the heap.Interface plumbing. Swap keeps each item's
// index current so keyed Fix and Remove work without a search.
type itemHeap[T any] []*HeapItem[T]

func (ih itemHeap[T]) Len() int { return len(ih) }

func (ih itemHeap[T]) Less(i, j int) bool {
	return ih[i].Timestamp.Before(ih[j].Timestamp)
}

func (ih itemHeap[T]) Swap(i, j int) {
	ih[i], ih[j] = ih[j], ih[i]
	ih[i].index = i
	ih[j].index = j
}

func (ih *itemHeap[T]) Push(x any) {
	item := x.(*HeapItem[T])
	item.index = len(*ih)
	*ih = append(*ih, item)
}

func (ih *itemHeap[T]) Pop() any {
	old := *ih
	n := len(old) - 1
	item := old[n]
	old[n] = nil
	*ih = old[:n]
	return item
}
