// Package cmap provides a concurrent map keyed by string.
//
// The map is split into shards chosen by MurmurHash3 of the key, each with
// its own RWMutex, so unrelated keys rarely contend. It backs per-client
// state on the request path, such as rate limiters keyed by client IP.
//
// Usage:
//
//	m := cmap.New[*Limiter]()
//	lim, _ := m.GetOrSet(ip, newLimiter())
//	m.DeleteFunc(func(_ string, l *Limiter) bool { return l.Idle() })
package cmap
