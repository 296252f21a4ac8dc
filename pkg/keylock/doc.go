// Package keylock provides striped reader/writer locks keyed by string.
//
// Keys are hashed with MurmurHash3 onto a fixed set of stripes, each guarded
// by its own sync.RWMutex. Operations on the same key are always serialized;
// operations on different keys only contend when their hashes share a stripe.
//
// Usage:
//
//	locks := keylock.New(keylock.DefaultStripes)
//	unlock := locks.Lock("crud/shoes/1")
//	defer unlock()
package keylock
