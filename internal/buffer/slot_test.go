package buffer

import (
	"sync"
	"testing"
)

func TestNewRejectsInvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1, -100} {
		if _, err := New[int](capacity); err == nil {
			t.Fatalf("New(%d) should fail", capacity)
		}
	}
}

func TestPutTakeFIFO(t *testing.T) {
	s, err := New[int](3)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.Put(1)
	s.Put(2)
	s.Put(3)

	for want := 1; want <= 3; want++ {
		got, ok := s.Take()
		if !ok {
			t.Fatalf("Take returned empty, want %d", want)
		}
		if got != want {
			t.Fatalf("Take = %d, want %d", got, want)
		}
	}

	if _, ok := s.Take(); ok {
		t.Fatal("Take on empty slot should report empty")
	}
}

func TestDropOldestOnFull(t *testing.T) {
	s, err := New[string](2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.Put("a")
	s.Put("b")
	s.Put("c") // evicts "a"

	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	if s.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", s.Dropped())
	}

	got, _ := s.Take()
	if got != "b" {
		t.Fatalf("first Take = %q, want %q", got, "b")
	}
	got, _ = s.Take()
	if got != "c" {
		t.Fatalf("second Take = %q, want %q", got, "c")
	}
}

// Capacity-1 slot with puts F1, F2, F3 and no intervening takes: a take
// returns F3, a second take reports empty.
func TestCapacityOneKeepsNewest(t *testing.T) {
	s, err := New[string](1)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.Put("F1")
	s.Put("F2")
	s.Put("F3")

	got, ok := s.Take()
	if !ok || got != "F3" {
		t.Fatalf("Take = %q, %v; want F3, true", got, ok)
	}
	if _, ok := s.Take(); ok {
		t.Fatal("second Take should report empty")
	}
	if s.Dropped() != 2 {
		t.Fatalf("Dropped = %d, want 2", s.Dropped())
	}
}

func TestNeverExceedsCapacity(t *testing.T) {
	const capacity = 4
	s, err := New[int](capacity)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := 0; i < 100; i++ {
		s.Put(i)
		if s.Len() > capacity {
			t.Fatalf("Len = %d exceeds capacity %d after %d puts", s.Len(), capacity, i+1)
		}
	}

	// Survivors are the most recent `capacity` items in order.
	for want := 96; want < 100; want++ {
		got, ok := s.Take()
		if !ok || got != want {
			t.Fatalf("Take = %d, %v; want %d, true", got, ok, want)
		}
	}
}

func TestTakeLatestDiscardsOlder(t *testing.T) {
	s, err := New[int](3)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.Put(10)
	s.Put(20)
	s.Put(30)

	got, ok := s.TakeLatest()
	if !ok || got != 30 {
		t.Fatalf("TakeLatest = %d, %v; want 30, true", got, ok)
	}
	if s.Len() != 0 {
		t.Fatalf("Len after TakeLatest = %d, want 0", s.Len())
	}
	if _, ok := s.TakeLatest(); ok {
		t.Fatal("TakeLatest on empty slot should report empty")
	}
}

func TestDrain(t *testing.T) {
	s, err := New[int](3)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.Put(1)
	s.Put(2)
	s.Drain()

	if s.Len() != 0 {
		t.Fatalf("Len after Drain = %d, want 0", s.Len())
	}
	if _, ok := s.Take(); ok {
		t.Fatal("Take after Drain should report empty")
	}

	// Slot remains usable after a drain.
	s.Put(7)
	if got, ok := s.Take(); !ok || got != 7 {
		t.Fatalf("Take after reuse = %d, %v; want 7, true", got, ok)
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	s, err := New[int](8)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	const total = 10000
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			s.Put(i)
		}
	}()

	var taken, last int
	last = -1
	go func() {
		defer wg.Done()
		for taken < total/2 {
			v, ok := s.Take()
			if !ok {
				continue
			}
			if v <= last {
				t.Errorf("out-of-order take: %d after %d", v, last)
				return
			}
			last = v
			taken++
		}
	}()

	wg.Wait()

	if s.Len() > s.Capacity() {
		t.Fatalf("Len = %d exceeds capacity %d", s.Len(), s.Capacity())
	}
}
