// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"sort"
	"sync"

	"github.com/molecula/rdfsail/errors"
	"github.com/molecula/rdfsail/logger"
	"github.com/molecula/rdfsail/storage"
)

// Backend is durable storage for committed rows and for the staged ops of
// running transactions. Only the batch writer calls the write methods, and
// never concurrently for the same bucket.
type Backend interface {
	// Open opens the storage and discards staged ops left by a previous
	// process.
	Open() error
	Close() error

	// Load calls fn for every committed row.
	Load(fn func(bucket ID, t Triple) error) error

	// Stage records ops of a running transaction.
	Stage(txID uint64, bucket ID, ops []Op) error

	// Commit atomically applies the staged ops of the transaction followed
	// by ops to the committed rows of bucket, then drops the staged ops.
	Commit(txID uint64, bucket ID, ops []Op) error

	// Discard drops the staged ops of the transaction.
	Discard(txID uint64, bucket ID) error
}

// IsolationCapable is implemented by backends that cannot honor every
// isolation level.
type IsolationCapable interface {
	MaxIsolationLevel() IsolationLevel
}

// BackendOptions are passed to backend constructors.
type BackendOptions struct {
	// Path is the data directory of the store. Empty for in-memory stores.
	Path   string
	Config *storage.Config
	Logger logger.Logger
}

// NewBackendFunc instantiates a backend.
type NewBackendFunc func(opt BackendOptions) (Backend, error)

var backendFns = struct {
	mu  sync.RWMutex
	fns map[string]NewBackendFunc
}{fns: make(map[string]NewBackendFunc)}

// RegisterBackend registers a backend under name. It panics if the name is
// already taken.
func RegisterBackend(name string, fn NewBackendFunc) {
	backendFns.mu.Lock()
	defer backendFns.mu.Unlock()
	if backendFns.fns[name] != nil {
		panic("storage backend already registered: " + name)
	}
	backendFns.fns[name] = fn
}

// NewBackend returns a new backend instance by name.
func NewBackend(name string, opt BackendOptions) (Backend, error) {
	backendFns.mu.RLock()
	fn := backendFns.fns[name]
	backendFns.mu.RUnlock()
	if fn == nil {
		return nil, errors.Newf(ErrBackendNotFound, "storage backend not registered: %q (have %v)", name, Backends())
	}
	if opt.Config == nil {
		opt.Config = storage.NewDefaultConfig()
	}
	if opt.Logger == nil {
		opt.Logger = logger.NopLogger
	}
	return fn(opt)
}

// Backends returns the names of the registered backends.
func Backends() []string {
	backendFns.mu.RLock()
	defer backendFns.mu.RUnlock()
	a := make([]string, 0, len(backendFns.fns))
	for name := range backendFns.fns {
		a = append(a, name)
	}
	sort.Strings(a)
	return a
}

func init() {
	RegisterBackend(storage.MemoryBackend, func(opt BackendOptions) (Backend, error) {
		return NewMemoryBackend(), nil
	})
}

// MemoryBackend keeps rows in process memory. Nothing survives Close.
type MemoryBackend struct {
	mu     sync.Mutex
	rows   map[ID]map[Triple]struct{}
	staged map[stageKey][]Op
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		rows:   make(map[ID]map[Triple]struct{}),
		staged: make(map[stageKey][]Op),
	}
}

func (m *MemoryBackend) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged = make(map[stageKey][]Op)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

func (m *MemoryBackend) Load(fn func(bucket ID, t Triple) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for b, rows := range m.rows {
		for t := range rows {
			if err := fn(b, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MemoryBackend) Stage(txID uint64, bucket ID, ops []Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := stageKey{txID: txID, bucket: bucket}
	m.staged[key] = append(m.staged[key], ops...)
	return nil
}

func (m *MemoryBackend) Commit(txID uint64, bucket ID, ops []Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := stageKey{txID: txID, bucket: bucket}
	rows := m.rows[bucket]
	if rows == nil {
		rows = make(map[Triple]struct{})
		m.rows[bucket] = rows
	}
	for _, a := range [][]Op{m.staged[key], ops} {
		for _, op := range a {
			switch op.Type {
			case OpInsert:
				rows[op.Triple] = struct{}{}
			case OpRemove:
				delete(rows, op.Triple)
			}
		}
	}
	delete(m.staged, key)
	return nil
}

func (m *MemoryBackend) Discard(txID uint64, bucket ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.staged, stageKey{txID: txID, bucket: bucket})
	return nil
}

// StagedLen returns the number of staged ops across all transactions.
func (m *MemoryBackend) StagedLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, ops := range m.staged {
		n += len(ops)
	}
	return n
}
