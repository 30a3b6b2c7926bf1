// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

// Package store holds the in-memory snapshots the UI renders from and
// notifies subscribers whenever a snapshot is replaced.
package store

import (
	"slices"
	"sync"
)

// ListenerID identifies a subscription for Unsubscribe.
type ListenerID uint64

type listener struct {
	id ListenerID
	fn func()
}

// Snapshot is a concurrency-safe list of records with change notification.
// The zero value is an empty snapshot ready for use.
type Snapshot[T any] struct {
	mu        sync.RWMutex
	items     []T
	listeners []listener
	nextID    ListenerID
}

// New returns a snapshot seeded with items.
func New[T any](items []T) *Snapshot[T] {
	return &Snapshot[T]{items: slices.Clone(items)}
}

// Subscribe registers fn to be called after every Publish. Listeners run on
// the publishing goroutine, in subscription order, outside the lock.
func (s *Snapshot[T]) Subscribe(fn func()) ListenerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.listeners = append(s.listeners, listener{id: s.nextID, fn: fn})
	return s.nextID
}

// Unsubscribe removes a listener. Unknown IDs are ignored.
func (s *Snapshot[T]) Unsubscribe(id ListenerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = slices.DeleteFunc(s.listeners, func(l listener) bool { return l.id == id })
}

// Get returns a copy of the current records.
func (s *Snapshot[T]) Get() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Len returns the number of records.
func (s *Snapshot[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Publish replaces the records and notifies every listener.
func (s *Snapshot[T]) Publish(items []T) {
	s.mu.Lock()
	s.items = slices.Clone(items)
	fns := make([]func(), 0, len(s.listeners))
	for _, l := range s.listeners {
		fns = append(fns, l.fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
