package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/webdock-go/pkg/keylock"
)

// BadgerConfig contains Badger-specific tuning parameters.
type BadgerConfig struct {
	// Dir is the database directory relative to the storage root.
	// Default: "badger"
	Dir string

	// GCInterval is the interval between automatic value log GC runs.
	// Default: 10m
	GCInterval time.Duration

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 16MB
	CacheSize int64

	// SyncWrites enables fsync after each write.
	// Default: true (payloads are acknowledged to clients)
	SyncWrites bool

	// InMemory runs Badger without touching disk (tests only).
	InMemory bool
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		Dir:         "badger",
		GCInterval:  10 * time.Minute,
		GCThreshold: 0.5,
		CacheSize:   16 << 20,
		SyncWrites:  true,
	}
}

// envelopeVersion prefixes every stored value.
const envelopeVersion byte = 1

// BadgerStore keeps objects in an embedded Badger database. Keys are
// "<ns>/<collection>/<key>"; values are a small envelope carrying the
// content type followed by the payload.
type BadgerStore struct {
	db     *badger.DB
	cfg    BadgerConfig
	locks  *keylock.Striped
	seq    sequence
	logger *slog.Logger
	closed atomic.Bool

	lastGCTime atomic.Int64 // Unix milliseconds

	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge

	stopCh chan struct{}
	doneCh chan struct{}
}

// OpenBadgerStore opens a Badger-backed store under root.
func OpenBadgerStore(root string, cfg BadgerConfig, logger *slog.Logger) (*BadgerStore, error) {
	if root == "" && !cfg.InMemory {
		return nil, errors.New("storage: root is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dir == "" {
		cfg.Dir = "badger"
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = 10 * time.Minute
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = 0.5
	}

	dir := filepath.Join(root, cfg.Dir)
	opts := badger.DefaultOptions(dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		cfg:    cfg,
		locks:  keylock.New(keylock.DefaultStripes),
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if err := s.seedSequence(); err != nil {
		db.Close()
		return nil, err
	}

	go s.gcLoop()

	logger.Info("badger store opened",
		"dir", dir,
		"in_memory", cfg.InMemory,
		"gc_interval", cfg.GCInterval,
		"next_id", s.seq.current()+1)

	return s, nil
}

func badgerKey(ns Namespace, collection, key string) []byte {
	return []byte(lockKey(ns, collection, key))
}

func badgerPrefix(ns Namespace, collection string) []byte {
	return []byte(string(ns) + "/" + collection + "/")
}

func encodeObject(obj *Object) []byte {
	if obj == nil {
		obj = &Object{}
	}
	buf := make([]byte, 1+binary.MaxVarintLen64+len(obj.ContentType)+len(obj.Data))
	buf[0] = envelopeVersion
	n := 1 + binary.PutUvarint(buf[1:], uint64(len(obj.ContentType)))
	n += copy(buf[n:], obj.ContentType)
	n += copy(buf[n:], obj.Data)
	return buf[:n]
}

func decodeObject(v []byte) (*Object, error) {
	if len(v) == 0 || v[0] != envelopeVersion {
		return nil, errors.New("storage: unknown envelope")
	}
	ctLen, n := binary.Uvarint(v[1:])
	if n <= 0 || uint64(len(v)-1-n) < ctLen {
		return nil, errors.New("storage: corrupt envelope")
	}
	start := 1 + n
	end := start + int(ctLen)
	return &Object{
		ContentType: string(v[start:end]),
		Data:        append([]byte{}, v[end:]...),
	}, nil
}

func (s *BadgerStore) seedSequence() error {
	prefix := []byte(string(NamespaceCRUD) + "/")
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			k := string(it.Item().Key())
			s.seq.observe(k[strings.LastIndexByte(k, '/')+1:])
		}
		return nil
	})
}

func (s *BadgerStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, ns Namespace, collection, key string) (*Object, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if err := validate(collection, key); err != nil {
		return nil, err
	}

	unlock := s.locks.RLock(lockKey(ns, collection, key))
	defer unlock()

	var obj *Object
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(ns, collection, key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(v []byte) error {
			var derr error
			obj, derr = decodeObject(v)
			return derr
		})
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Put implements Store.
func (s *BadgerStore) Put(ctx context.Context, ns Namespace, collection, key string, obj *Object) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	if err := validate(collection, key); err != nil {
		return false, err
	}

	unlock := s.locks.Lock(lockKey(ns, collection, key))
	defer unlock()

	created := false
	err := s.db.Update(func(txn *badger.Txn) error {
		k := badgerKey(ns, collection, key)
		if _, err := txn.Get(k); err != nil {
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			created = true
		}
		return txn.Set(k, encodeObject(obj))
	})
	if err != nil {
		return false, fmt.Errorf("badger: put %s: %w", key, err)
	}
	if ns == NamespaceCRUD {
		s.seq.observe(key)
	}
	return created, nil
}

// Create implements Store.
func (s *BadgerStore) Create(ctx context.Context, ns Namespace, collection string, obj *Object) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}
	if collection != "" {
		if err := ValidateName(collection); err != nil {
			return "", err
		}
	}

	value := encodeObject(obj)
	for {
		key := strconv.FormatUint(s.seq.next(), 10)

		unlock := s.locks.Lock(lockKey(ns, collection, key))
		taken := false
		err := s.db.Update(func(txn *badger.Txn) error {
			k := badgerKey(ns, collection, key)
			if _, err := txn.Get(k); err == nil {
				taken = true
				return nil
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			return txn.Set(k, value)
		})
		unlock()

		if err != nil {
			return "", fmt.Errorf("badger: create: %w", err)
		}
		if !taken {
			return key, nil
		}
	}
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, ns Namespace, collection, key string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	if err := validate(collection, key); err != nil {
		return false, err
	}

	unlock := s.locks.Lock(lockKey(ns, collection, key))
	defer unlock()

	existed := true
	err := s.db.Update(func(txn *badger.Txn) error {
		k := badgerKey(ns, collection, key)
		if _, err := txn.Get(k); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				existed = false
				return nil
			}
			return err
		}
		return txn.Delete(k)
	})
	if err != nil {
		return false, fmt.Errorf("badger: delete %s: %w", key, err)
	}
	return existed, nil
}

// List implements Store.
func (s *BadgerStore) List(ctx context.Context, ns Namespace, collection string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if collection != "" {
		if err := ValidateName(collection); err != nil {
			return nil, err
		}
	}

	prefix := badgerPrefix(ns, collection)
	keys := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: list: %w", err)
	}
	return keys, nil
}

// GC runs value log garbage collection until nothing more can be rewritten.
func (s *BadgerStore) GC() error {
	if s.cfg.InMemory {
		return nil
	}
	for {
		if err := s.db.RunValueLogGC(s.cfg.GCThreshold); err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
				break
			}
			return fmt.Errorf("badger: gc: %w", err)
		}
	}
	s.lastGCTime.Store(time.Now().UnixMilli())
	return nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Info("shutting down badger store")

	close(s.stopCh)
	<-s.doneCh

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("badger: close db: %w", err)
	}
	return nil
}

// RegisterMetrics registers size gauges with reg and keeps them updated.
func (s *BadgerStore) RegisterMetrics(reg prometheus.Registerer) error {
	s.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "webdock",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	s.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "webdock",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})

	for _, c := range []prometheus.Collector{s.metricsLSMSize, s.metricsValueLogSize} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	s.updateSizeMetrics()
	return nil
}

func (s *BadgerStore) updateSizeMetrics() {
	if s.metricsLSMSize == nil {
		return
	}
	lsm, vlog := s.db.Size()
	s.metricsLSMSize.Set(float64(lsm))
	s.metricsValueLogSize.Set(float64(vlog))
}

// gcLoop runs periodic garbage collection and refreshes size metrics.
func (s *BadgerStore) gcLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.GC(); err != nil {
				s.logger.Error("auto gc failed", "error", err)
			}
			s.updateSizeMetrics()
		case <-s.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
