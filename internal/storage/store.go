package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
)

// Common errors
var (
	ErrNotFound   = errors.New("storage: not found")
	ErrInvalidKey = errors.New("storage: invalid key")
	ErrClosed     = errors.New("storage: closed")
)

// Namespace separates the resource families sharing one store.
type Namespace string

// Known namespaces.
const (
	NamespaceCRUD     Namespace = "crud"
	NamespaceMarkdown Namespace = "markdown"
)

// Backend names accepted by Open.
const (
	BackendFS     = "fs"
	BackendBadger = "badger"
)

// Object is a stored payload with the media type it was written with.
type Object struct {
	Data        []byte
	ContentType string
}

// Store persists opaque payloads addressed by (namespace, collection, key).
//
// The empty collection addresses the namespace root. Implementations
// serialize operations on the same key and make writes atomic for readers.
type Store interface {
	// Get returns the object or ErrNotFound.
	Get(ctx context.Context, ns Namespace, collection, key string) (*Object, error)

	// Put creates or replaces the object and reports whether it was created.
	Put(ctx context.Context, ns Namespace, collection, key string, obj *Object) (created bool, err error)

	// Create stores obj under the next server-assigned key and returns it.
	// Keys come from one counter shared by every namespace and collection.
	Create(ctx context.Context, ns Namespace, collection string, obj *Object) (key string, err error)

	// Delete removes the object and reports whether it existed.
	Delete(ctx context.Context, ns Namespace, collection, key string) (existed bool, err error)

	// List returns the live keys of a collection in store order.
	// A missing collection is empty.
	List(ctx context.Context, ns Namespace, collection string) ([]string, error)

	// Close releases the store.
	Close() error
}

// Config configures Open.
type Config struct {
	// Backend selects the implementation ("fs" or "badger"). Default: "fs".
	Backend string

	// Root is the storage root directory.
	Root string

	// Dirs maps namespaces to directory names under Root (fs backend).
	// Missing entries use the namespace name.
	Dirs map[Namespace]string

	// Badger tunes the badger backend.
	Badger BadgerConfig

	Logger *slog.Logger
}

// DefaultConfig returns the default storage configuration rooted at root.
func DefaultConfig(root string) Config {
	return Config{
		Backend: BackendFS,
		Root:    root,
		Badger:  DefaultBadgerConfig(),
	}
}

// Open opens the configured backend.
func Open(cfg Config) (Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	switch strings.ToLower(cfg.Backend) {
	case "", BackendFS:
		return OpenFileStore(cfg.Root, cfg.Dirs, cfg.Logger)
	case BackendBadger:
		return OpenBadgerStore(cfg.Root, cfg.Badger, cfg.Logger)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}

// ValidateName checks that s can be used as a collection or key: a single
// non-empty path segment that does not start with '.'.
func ValidateName(s string) error {
	switch {
	case s == "":
		return fmt.Errorf("%w: empty name", ErrInvalidKey)
	case strings.HasPrefix(s, "."):
		return fmt.Errorf("%w: %q starts with '.'", ErrInvalidKey, s)
	case strings.ContainsAny(s, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a separator", ErrInvalidKey, s)
	}
	return nil
}

func validate(collection, key string) error {
	if collection != "" {
		if err := ValidateName(collection); err != nil {
			return err
		}
	}
	return ValidateName(key)
}

// lockKey is the keylock address of one object.
func lockKey(ns Namespace, collection, key string) string {
	return string(ns) + "/" + collection + "/" + key
}

// sequence is the server-assigned key counter.
type sequence struct {
	n atomic.Uint64
}

func (q *sequence) next() uint64 {
	return q.n.Add(1)
}

// observe raises the counter to key when key is a larger decimal integer,
// so later assignments never go backwards past an existing key.
func (q *sequence) observe(key string) {
	v, err := strconv.ParseUint(key, 10, 64)
	if err != nil {
		return
	}
	for {
		cur := q.n.Load()
		if v <= cur || q.n.CompareAndSwap(cur, v) {
			return
		}
	}
}

func (q *sequence) current() uint64 {
	return q.n.Load()
}
