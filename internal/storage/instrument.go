package storage

import (
	"context"
	"errors"
	"time"
)

// Observer receives one call per store operation.
type Observer interface {
	ObserveStoreOp(op, namespace, result string, elapsed time.Duration)
}

// Instrument wraps s so that every operation is reported to o.
// A nil observer returns s unchanged.
func Instrument(s Store, o Observer) Store {
	if o == nil {
		return s
	}
	return &instrumented{next: s, obs: o}
}

type instrumented struct {
	next Store
	obs  Observer
}

func (i *instrumented) observe(op string, ns Namespace, start time.Time, err error) {
	i.obs.ObserveStoreOp(op, string(ns), result(err), time.Since(start))
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidKey):
		return "invalid"
	default:
		return "error"
	}
}

func (i *instrumented) Get(ctx context.Context, ns Namespace, collection, key string) (*Object, error) {
	start := time.Now()
	obj, err := i.next.Get(ctx, ns, collection, key)
	i.observe("get", ns, start, err)
	return obj, err
}

func (i *instrumented) Put(ctx context.Context, ns Namespace, collection, key string, obj *Object) (bool, error) {
	start := time.Now()
	created, err := i.next.Put(ctx, ns, collection, key, obj)
	i.observe("put", ns, start, err)
	return created, err
}

func (i *instrumented) Create(ctx context.Context, ns Namespace, collection string, obj *Object) (string, error) {
	start := time.Now()
	key, err := i.next.Create(ctx, ns, collection, obj)
	i.observe("create", ns, start, err)
	return key, err
}

func (i *instrumented) Delete(ctx context.Context, ns Namespace, collection, key string) (bool, error) {
	start := time.Now()
	existed, err := i.next.Delete(ctx, ns, collection, key)
	i.observe("delete", ns, start, err)
	return existed, err
}

func (i *instrumented) List(ctx context.Context, ns Namespace, collection string) ([]string, error) {
	start := time.Now()
	keys, err := i.next.List(ctx, ns, collection)
	i.observe("list", ns, start, err)
	return keys, err
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
