// Package storage provides the resource stores behind the CRUD and
// markdown handlers.
//
// A Store maps (namespace, collection, key) to an opaque payload plus the
// content type it was written with. Two backends are available:
//
//   - FileStore: one file per object under a root directory, committed by
//     write-to-temp, fsync and rename. This is the default backend.
//   - BadgerStore: an embedded Badger database, for deployments that prefer
//     a single data directory over many small files.
//
// Both backends serialize operations on the same key with pkg/keylock while
// letting different keys proceed in parallel, and both own the process-wide
// counter used for server-assigned keys. The counter is seeded from the
// largest numeric key already stored, so restarting over an existing data
// directory never reissues a live key.
package storage
