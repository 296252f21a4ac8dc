package keylock

import (
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultStripes is the default number of stripes.
const DefaultStripes = 256

// Striped is a fixed-size set of RWMutexes addressed by key hash.
type Striped struct {
	stripes []sync.RWMutex
	mask    uint32
}

// New creates a Striped lock set. n must be a power of 2; other values fall
// back to DefaultStripes.
func New(n int) *Striped {
	if n <= 0 || n&(n-1) != 0 {
		n = DefaultStripes
	}
	return &Striped{
		stripes: make([]sync.RWMutex, n),
		mask:    uint32(n - 1),
	}
}

// stripe returns the stripe index for key.
func (s *Striped) stripe(key string) uint32 {
	return murmur3.Sum32([]byte(key)) & s.mask
}

// Lock acquires the write lock for key and returns its release function.
func (s *Striped) Lock(key string) (unlock func()) {
	mu := &s.stripes[s.stripe(key)]
	mu.Lock()
	return mu.Unlock
}

// RLock acquires the read lock for key and returns its release function.
func (s *Striped) RLock(key string) (unlock func()) {
	mu := &s.stripes[s.stripe(key)]
	mu.RLock()
	return mu.RUnlock
}
