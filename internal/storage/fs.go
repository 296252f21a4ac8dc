package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/yndnr/webdock-go/pkg/keylock"
)

// metaDir holds per-key metadata next to the payloads of a collection.
const metaDir = ".meta"

// FileStore keeps every object in its own file:
//
//	<root>/<ns dir>/<collection>/<key>         payload
//	<root>/<ns dir>/<collection>/.meta/<key>   content type (when set)
//
// Writes go to a temporary file in the target directory and are renamed
// into place, so readers see either the old or the new payload.
type FileStore struct {
	root   string
	dirs   map[Namespace]string
	locks  *keylock.Striped
	seq    sequence
	logger *slog.Logger
	closed atomic.Bool
}

type fileMeta struct {
	ContentType string `json:"content_type"`
}

// OpenFileStore opens (creating if needed) a file store rooted at root.
func OpenFileStore(root string, dirs map[Namespace]string, logger *slog.Logger) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("storage: root is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}

	s := &FileStore{
		root:   root,
		dirs:   make(map[Namespace]string, len(dirs)),
		locks:  keylock.New(keylock.DefaultStripes),
		logger: logger,
	}
	for ns, dir := range dirs {
		s.dirs[ns] = dir
	}

	if err := s.seedSequence(); err != nil {
		return nil, err
	}

	logger.Info("file store opened", "root", root, "next_id", s.seq.current()+1)
	return s, nil
}

// seedSequence raises the key counter past every numeric CRUD key on disk.
func (s *FileStore) seedSequence() error {
	base := s.nsDir(NamespaceCRUD)
	collections, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("storage: scan %s: %w", base, err)
	}
	for _, c := range collections {
		if !c.IsDir() || strings.HasPrefix(c.Name(), ".") {
			continue
		}
		keys, err := s.listDir(filepath.Join(base, c.Name()))
		if err != nil {
			return err
		}
		for _, k := range keys {
			s.seq.observe(k)
		}
	}
	return nil
}

func (s *FileStore) nsDir(ns Namespace) string {
	dir, ok := s.dirs[ns]
	if !ok || dir == "" {
		dir = string(ns)
	}
	return filepath.Join(s.root, dir)
}

func (s *FileStore) collectionDir(ns Namespace, collection string) string {
	if collection == "" {
		return s.nsDir(ns)
	}
	return filepath.Join(s.nsDir(ns), collection)
}

func (s *FileStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, ns Namespace, collection, key string) (*Object, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if err := validate(collection, key); err != nil {
		return nil, err
	}

	unlock := s.locks.RLock(lockKey(ns, collection, key))
	defer unlock()

	dir := s.collectionDir(ns, collection)
	data, err := os.ReadFile(filepath.Join(dir, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}

	obj := &Object{Data: data}
	meta, err := os.ReadFile(filepath.Join(dir, metaDir, key))
	switch {
	case err == nil:
		var m fileMeta
		if err := json.Unmarshal(meta, &m); err != nil {
			s.logger.Warn("ignoring unreadable metadata", "key", key, "error", err)
		} else {
			obj.ContentType = m.ContentType
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("storage: read metadata %s: %w", key, err)
	}
	return obj, nil
}

// Put implements Store.
func (s *FileStore) Put(ctx context.Context, ns Namespace, collection, key string, obj *Object) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	if err := validate(collection, key); err != nil {
		return false, err
	}

	unlock := s.locks.Lock(lockKey(ns, collection, key))
	defer unlock()

	dir := s.collectionDir(ns, collection)
	_, err := os.Stat(filepath.Join(dir, key))
	created := errors.Is(err, fs.ErrNotExist)
	if err != nil && !created {
		return false, fmt.Errorf("storage: stat %s: %w", key, err)
	}

	if err := s.write(dir, key, obj); err != nil {
		return false, err
	}
	if ns == NamespaceCRUD {
		s.seq.observe(key)
	}
	return created, nil
}

// Create implements Store.
func (s *FileStore) Create(ctx context.Context, ns Namespace, collection string, obj *Object) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}
	if collection != "" {
		if err := ValidateName(collection); err != nil {
			return "", err
		}
	}

	dir := s.collectionDir(ns, collection)
	for {
		key := strconv.FormatUint(s.seq.next(), 10)

		unlock := s.locks.Lock(lockKey(ns, collection, key))
		if _, err := os.Stat(filepath.Join(dir, key)); err == nil {
			// Taken by a client-chosen key; try the next one.
			unlock()
			continue
		}
		err := s.write(dir, key, obj)
		unlock()
		if err != nil {
			return "", err
		}
		return key, nil
	}
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, ns Namespace, collection, key string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	if err := validate(collection, key); err != nil {
		return false, err
	}

	unlock := s.locks.Lock(lockKey(ns, collection, key))
	defer unlock()

	dir := s.collectionDir(ns, collection)
	existed := true
	if err := os.Remove(filepath.Join(dir, key)); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("storage: remove %s: %w", key, err)
		}
		existed = false
	}
	if err := os.Remove(filepath.Join(dir, metaDir, key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to remove metadata", "key", key, "error", err)
	}
	return existed, nil
}

// List implements Store.
func (s *FileStore) List(ctx context.Context, ns Namespace, collection string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if collection != "" {
		if err := ValidateName(collection); err != nil {
			return nil, err
		}
	}
	return s.listDir(s.collectionDir(ns, collection))
}

// listDir returns regular, non-hidden file names in directory order.
func (s *FileStore) listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("storage: list %s: %w", dir, err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		keys = append(keys, e.Name())
	}
	return keys, nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.logger.Info("file store closed", "root", s.root)
	}
	return nil
}

// write commits obj under dir/key. The metadata sidecar is updated before
// the payload is renamed into place and restored if the payload cannot be
// committed. Callers hold the key lock.
func (s *FileStore) write(dir, key string, obj *Object) error {
	if obj == nil {
		obj = &Object{}
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("storage: create %s: %w", dir, err)
	}

	metaPath := filepath.Join(dir, metaDir, key)
	prev, err := os.ReadFile(metaPath)
	hadPrev := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: read metadata %s: %w", key, err)
	}

	if obj.ContentType != "" {
		meta, err := json.Marshal(fileMeta{ContentType: obj.ContentType})
		if err != nil {
			return fmt.Errorf("storage: encode metadata: %w", err)
		}
		if err := os.MkdirAll(filepath.Join(dir, metaDir), 0o750); err != nil {
			return fmt.Errorf("storage: create metadata dir: %w", err)
		}
		if err := atomicWrite(metaPath, meta); err != nil {
			return err
		}
	} else if hadPrev {
		if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: clear metadata %s: %w", key, err)
		}
	}

	if err := atomicWrite(filepath.Join(dir, key), obj.Data); err != nil {
		s.restoreMeta(metaPath, prev, hadPrev)
		return err
	}
	return nil
}

// restoreMeta puts back the sidecar that was in place before a failed write.
func (s *FileStore) restoreMeta(path string, prev []byte, hadPrev bool) {
	var err error
	if hadPrev {
		err = atomicWrite(path, prev)
	} else if err = os.Remove(path); errors.Is(err, fs.ErrNotExist) {
		err = nil
	}
	if err != nil {
		s.logger.Error("failed to restore metadata", "path", path, "error", err)
	}
}

// atomicWrite writes data to a hidden temp file beside path, syncs it and
// renames it over path.
func atomicWrite(path string, data []byte) error {
	dir, name := filepath.Split(path)
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage: sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: close %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0o640); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: chmod %s: %w", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: commit %s: %w", name, err)
	}
	return nil
}
