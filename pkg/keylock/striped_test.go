package keylock

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{0, DefaultStripes},
		{-1, DefaultStripes},
		{3, DefaultStripes},
		{1, 1},
		{16, 16},
		{1024, 1024},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("stripes=%d", tt.input), func(t *testing.T) {
			s := New(tt.input)
			if len(s.stripes) != tt.expected {
				t.Errorf("New(%d) has %d stripes, want %d", tt.input, len(s.stripes), tt.expected)
			}
		})
	}
}

func TestStripe_Stable(t *testing.T) {
	s := New(64)
	for _, key := range []string{"", "a", "crud/shoes/1", "markdown//readme.md"} {
		first := s.stripe(key)
		if first >= 64 {
			t.Fatalf("stripe(%q) = %d, out of range", key, first)
		}
		if again := s.stripe(key); again != first {
			t.Errorf("stripe(%q) not stable: %d then %d", key, first, again)
		}
	}
}

func TestLock_SerializesSameKey(t *testing.T) {
	s := New(16)

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("same")
			defer unlock()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
}

func TestRLock_AllowsConcurrentReaders(t *testing.T) {
	s := New(16)

	unlock1 := s.RLock("k")
	done := make(chan struct{})
	go func() {
		unlock2 := s.RLock("k")
		unlock2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second reader blocked")
	}
	unlock1()
}

func TestLock_DifferentStripesIndependent(t *testing.T) {
	s := New(1024)

	// Find two keys on different stripes.
	a, b := "key-a", ""
	for i := 0; i < 1000; i++ {
		k := fmt.Sprintf("key-%d", i)
		if s.stripe(k) != s.stripe(a) {
			b = k
			break
		}
	}
	if b == "" {
		t.Fatal("no key on a different stripe")
	}

	unlockA := s.Lock(a)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := s.Lock(b)
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different stripe blocked")
	}
}
