// Copyright (c) 2026 Keymaster Team
// Keymaster CA - SSH certificate authority console
// This source code is licensed under the MIT license found in the LICENSE file.

package store

import (
	"sync"
	"testing"
)

func TestSnapshot_PublishNotifiesInOrder(t *testing.T) {
	var s Snapshot[string]
	var calls []string
	s.Subscribe(func() { calls = append(calls, "first") })
	s.Subscribe(func() { calls = append(calls, "second:"+s.Get()[0]) })

	s.Publish([]string{"a"})

	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second:a" {
		t.Fatalf("unexpected notifications: %v", calls)
	}
}

func TestSnapshot_Unsubscribe(t *testing.T) {
	s := New([]int{1})
	n := 0
	id := s.Subscribe(func() { n++ })
	s.Publish([]int{2})
	s.Unsubscribe(id)
	s.Unsubscribe(id)
	s.Publish([]int{3})
	if n != 1 {
		t.Fatalf("expected 1 notification, got %d", n)
	}
	if got := s.Get(); len(got) != 1 || got[0] != 3 {
		t.Fatalf("unexpected snapshot %v", got)
	}
}

func TestSnapshot_GetReturnsCopy(t *testing.T) {
	src := []int{1, 2}
	s := New(src)
	src[0] = 99
	got := s.Get()
	got[1] = 42
	if again := s.Get(); again[0] != 1 || again[1] != 2 {
		t.Fatalf("snapshot aliased caller slices: %v", again)
	}
}

func TestSnapshot_ListenerMayUnsubscribeDuringPublish(t *testing.T) {
	var s Snapshot[int]
	var id ListenerID
	calls := 0
	id = s.Subscribe(func() {
		calls++
		s.Unsubscribe(id)
	})
	s.Publish(nil)
	s.Publish(nil)
	if calls != 1 {
		t.Fatalf("expected listener to run once, ran %d times", calls)
	}
}

func TestSnapshot_ConcurrentPublish(t *testing.T) {
	var s Snapshot[int]
	var mu sync.Mutex
	n := 0
	s.Subscribe(func() { mu.Lock(); n++; mu.Unlock() })

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Publish([]int{i})
			_ = s.Get()
		}(i)
	}
	wg.Wait()
	if n != 20 || s.Len() != 1 {
		t.Fatalf("expected 20 notifications and one record, got %d and %d", n, s.Len())
	}
}
