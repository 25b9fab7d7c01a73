// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/immutable"
	"github.com/molecula/rdfsail/errors"
	"github.com/molecula/rdfsail/logger"
	"github.com/molecula/rdfsail/storage"
	"github.com/molecula/rdfsail/tracing"
)

// Store is a transactional triple store. Committed state is an immutable
// snapshot that commits replace atomically, so readers never wait for
// writers. Commits are serialized by a single commit lock.
type Store struct {
	mu     sync.RWMutex
	opened bool
	closed bool
	conns  map[*Connection]struct{}

	path     string
	config   *storage.Config
	maxLevel IsolationLevel

	backend    Backend
	tables     *TripleTableManager
	writer     *BatchWriter
	namespaces NamespaceStore
	dirLock    *dirLock

	snap atomic.Pointer[snapshot]

	commitMu sync.Mutex
	commits  commitLog
	pins     *pinSet

	nextTxID   uint64
	iterations int64 // open statement iterators

	Logger logger.Logger
}

// StoreOption is a functional option for a Store.
type StoreOption func(s *Store) error

// OptStoreLogger sets the logger.
func OptStoreLogger(l logger.Logger) StoreOption {
	return func(s *Store) error {
		s.Logger = l
		return nil
	}
}

// OptStoreConfig sets the storage configuration.
func OptStoreConfig(cfg *storage.Config) StoreOption {
	return func(s *Store) error {
		if cfg == nil {
			return errors.New(ErrInvalidArgument, "nil storage config")
		}
		s.config = cfg
		return nil
	}
}

// OptStoreBackend uses b instead of the backend named in the config.
func OptStoreBackend(b Backend) StoreOption {
	return func(s *Store) error {
		s.backend = b
		return nil
	}
}

// OptStoreNamespaces sets the namespace store. The store closes it on Close.
func OptStoreNamespaces(ns NamespaceStore) StoreOption {
	return func(s *Store) error {
		s.namespaces = ns
		return nil
	}
}

// NewStore returns a store rooted at path. An empty path keeps everything in
// memory and takes no directory lock.
func NewStore(path string, opts ...StoreOption) (*Store, error) {
	s := &Store{
		path:   path,
		config: storage.NewDefaultConfig(),
		conns:  make(map[*Connection]struct{}),
		pins:   newPinSet(),
		Logger: logger.NopLogger,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, errors.Wrap(err, "applying option")
		}
	}
	s.snap.Store(newSnapshot())
	return s, nil
}

// Path returns the data directory of the store.
func (s *Store) Path() string { return s.path }

// Open locks the data directory, opens the backend, and loads the committed
// rows.
func (s *Store) Open() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return errors.New(ErrIllegalState, "store already open")
	}

	if s.path != "" {
		if err := os.MkdirAll(s.path, 0750); err != nil {
			return errors.Wrap(err, "creating data directory")
		}
		if s.dirLock, err = lockDir(s.path); err != nil {
			return err
		}
		defer func() {
			if err != nil {
				s.dirLock.Release()
				s.dirLock = nil
			}
		}()
	}

	if s.backend == nil {
		if s.backend, err = NewBackend(s.config.Backend, BackendOptions{Path: s.path, Config: s.config, Logger: s.Logger}); err != nil {
			return errors.Wrap(err, "creating backend")
		}
	}
	if s.maxLevel, err = s.supportedLevel(); err != nil {
		return err
	}
	if err := s.backend.Open(); err != nil {
		return errors.Coded(ErrStorageIO, err, "opening backend")
	}
	defer func() {
		if err != nil {
			s.backend.Close()
		}
	}()

	s.tables = NewTripleTableManager(s.config.MaxPredicateTables)
	snap, err := s.load()
	if err != nil {
		return err
	}
	s.snap.Store(snap)

	s.writer = NewBatchWriter(s.backend, s.latestBucket,
		OptBatchWriterQueueCapacity(s.config.QueueCapacity),
		OptBatchWriterWorkers(s.config.Workers),
		OptBatchWriterLogger(s.Logger.WithPrefix("[writer] ")),
	)
	if err := s.writer.Open(); err != nil {
		return errors.Wrap(err, "opening batch writer")
	}

	if s.namespaces == nil {
		s.namespaces = NewMemoryNamespaceStore()
	}

	s.opened = true
	s.Logger.Infof("opened store %q: backend=%s rows=%d tables=%d max-isolation=%s",
		s.path, s.config.Backend, snap.len(), len(s.tables.Tables()), s.maxLevel)
	return nil
}

// supportedLevel returns the strongest level both the config and the
// backend allow.
func (s *Store) supportedLevel() (IsolationLevel, error) {
	level := Serializable
	if s.config.MaxIsolationLevel != "" {
		l, err := ParseIsolationLevel(s.config.MaxIsolationLevel)
		if err != nil {
			return None, errors.Wrap(err, "parsing max isolation level")
		}
		level = l
	}
	if c, ok := s.backend.(IsolationCapable); ok && c.MaxIsolationLevel() < level {
		level = c.MaxIsolationLevel()
	}
	return level, nil
}

// load reads every committed row from the backend into a snapshot.
func (s *Store) load() (*snapshot, error) {
	builders := make(map[ID]*immutable.SortedMapBuilder[Triple, struct{}])
	if err := s.backend.Load(func(bucket ID, t Triple) error {
		b := builders[bucket]
		if b == nil {
			b = immutable.NewSortedMapBuilder[Triple, struct{}](tripleComparer{})
			builders[bucket] = b
		}
		b.Set(t, struct{}{})
		s.tables.load(bucket, t)
		return nil
	}); err != nil {
		return nil, errors.Coded(ErrStorageIO, err, "loading committed rows")
	}

	rows := make(map[ID]*rowSet, len(builders))
	for bucket, b := range builders {
		rows[bucket] = b.Map()
	}
	return newSnapshot().with(rows), nil
}

// Close rolls back every open connection, drains the batch writer, and
// closes storage. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*Connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	opened := s.opened
	s.mu.Unlock()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, c := range conns {
		keep(c.Close())
	}
	if !opened {
		return firstErr
	}

	keep(errors.Wrap(s.writer.Close(), "closing batch writer"))
	if err := s.backend.Close(); err != nil {
		keep(errors.Coded(ErrStorageIO, err, "closing backend"))
	}
	keep(errors.Wrap(s.namespaces.Close(), "closing namespaces"))
	if s.dirLock != nil {
		keep(s.dirLock.Release())
	}
	s.Logger.Infof("closed store %q", s.path)
	return firstErr
}

// Connection returns a new connection to the store.
func (s *Store) Connection() (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.opened {
		return nil, errors.New(ErrClosed, "store is not open")
	}
	c := newConnection(s)
	s.conns[c] = struct{}{}
	metricOpenConnections.Inc()
	return c, nil
}

func (s *Store) removeConnection(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[c]; ok {
		delete(s.conns, c)
		metricOpenConnections.Dec()
	}
}

// IsIsolationSupported returns true if transactions may begin at level.
func (s *Store) IsIsolationSupported(level IsolationLevel) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return level.valid() && level <= s.maxLevel
}

// DefaultIsolationLevel returns the level Begin uses when none is given.
func (s *Store) DefaultIsolationLevel() IsolationLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.maxLevel >= SnapshotRead {
		return SnapshotRead
	}
	return s.maxLevel
}

// Namespaces returns the namespace store.
func (s *Store) Namespaces() NamespaceStore { return s.namespaces }

// TripleTables returns the predicate table manager.
func (s *Store) TripleTables() *TripleTableManager { return s.tables }

// Version returns the version of the latest committed snapshot.
func (s *Store) Version() uint64 { return s.snap.Load().version }

// Size returns the number of committed rows, explicit and inferred.
func (s *Store) Size() int { return s.snap.Load().len() }

// PinnedTransactions returns the number of running transactions that hold
// a snapshot.
func (s *Store) PinnedTransactions() int { return s.pins.len() }

// OpenIterations returns the number of statement iterators not yet closed.
func (s *Store) OpenIterations() int { return int(atomic.LoadInt64(&s.iterations)) }

// latest returns the latest committed snapshot.
func (s *Store) latest() *snapshot { return s.snap.Load() }

func (s *Store) latestBucket(b ID) *rowSet { return s.snap.Load().bucket(b) }

// pin returns the latest snapshot and registers it as in use. Pinning under
// the commit lock keeps the commit log from being pruned past it.
func (s *Store) pin() *snapshot {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	snap := s.snap.Load()
	s.pins.pin(snap.version)
	return snap
}

func (s *Store) unpin(snap *snapshot) {
	s.pins.unpin(snap.version)
}

func (s *Store) newTxID() uint64 {
	return atomic.AddUint64(&s.nextTxID, 1)
}

// commit validates and applies the transaction of c. It returns
// TransactionConflict without touching storage if validation fails, and
// StorageIO if any bucket could not be applied. Buckets that were applied
// are published either way.
func (s *Store) commit(ctx context.Context, c *Connection) error {
	span, ctx := tracing.StartSpanFromContext(ctx, "Store.commit")
	defer span.Finish()

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	writes := make(map[Triple]struct{})
	c.router.writeSet(func(t Triple) { writes[t] = struct{}{} })
	span.LogKV("txID", c.txID, "level", c.level.String(), "writes", len(writes))

	if c.level.pinsSnapshot() {
		if err := s.commits.validate(c.level, c.snap.version, writes, c.reads); err != nil {
			metricConflicts.Inc()
			return err
		}
	}

	rows, err := c.router.Committed(ctx, true)
	if len(rows) > 0 {
		next := s.snap.Load().with(rows)
		s.snap.Store(next)
		s.commits.append(next.version, writes)
		span.LogKV("version", next.version)
	}
	s.commits.prune(s.pins)
	return err
}
