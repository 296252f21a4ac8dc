package cmap

import (
	"fmt"
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	m := New[int]()
	if len(m.shards) != DefaultShardCount {
		t.Errorf("shard count = %d, want %d", len(m.shards), DefaultShardCount)
	}
}

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{0, DefaultShardCount},
		{-1, DefaultShardCount},
		{3, DefaultShardCount},
		{1, 1},
		{64, 64},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.input), func(t *testing.T) {
			m := NewWithShards[int](tt.input)
			if len(m.shards) != tt.expected {
				t.Errorf("NewWithShards(%d) shard count = %d, want %d",
					tt.input, len(m.shards), tt.expected)
			}
		})
	}
}

func TestGetOrSet(t *testing.T) {
	m := New[int]()

	if _, ok := m.Get("key1"); ok {
		t.Fatal("Get on an empty map should miss")
	}

	v, loaded := m.GetOrSet("key1", 100)
	if loaded || v != 100 {
		t.Errorf("first GetOrSet = (%d, %v), want (100, false)", v, loaded)
	}

	v, loaded = m.GetOrSet("key1", 200)
	if !loaded || v != 100 {
		t.Errorf("second GetOrSet = (%d, %v), want (100, true)", v, loaded)
	}

	if v, ok := m.Get("key1"); !ok || v != 100 {
		t.Errorf("Get(key1) = (%d, %v), want (100, true)", v, ok)
	}
}

func TestGetOrSet_ConcurrentSingleWinner(t *testing.T) {
	m := New[*int]()
	var wg sync.WaitGroup
	results := make([]*int, 32)

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := i
			results[i], _ = m.GetOrSet("shared", &n)
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		if r != results[0] {
			t.Fatalf("caller %d got a different value than caller 0", i)
		}
	}
}

func TestDeleteFunc(t *testing.T) {
	m := New[int]()
	for i := 0; i < 100; i++ {
		m.GetOrSet(fmt.Sprintf("k%d", i), i)
	}

	removed := m.DeleteFunc(func(_ string, v int) bool { return v%2 == 0 })
	if removed != 50 {
		t.Errorf("DeleteFunc removed %d, want 50", removed)
	}

	for i := 0; i < 100; i++ {
		_, ok := m.Get(fmt.Sprintf("k%d", i))
		if want := i%2 == 1; ok != want {
			t.Errorf("k%d present = %v, want %v", i, ok, want)
		}
	}

	if removed := m.DeleteFunc(func(string, int) bool { return false }); removed != 0 {
		t.Errorf("DeleteFunc(false) removed %d, want 0", removed)
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				key := fmt.Sprintf("g%d-%d", g, i)
				m.GetOrSet(key, i)
				m.Get(key)
			}
		}(g)
	}
	wg.Wait()

	total := m.DeleteFunc(func(string, int) bool { return true })
	if total != 8*250 {
		t.Errorf("entries = %d, want %d", total, 8*250)
	}
}
