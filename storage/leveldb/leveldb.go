// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package leveldb implements an rdfsail storage backend on goleveldb.
package leveldb

import (
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/molecula/rdfsail"
	"github.com/molecula/rdfsail/storage"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// DirName is the leveldb directory inside a data directory.
const DirName = "leveldb"

// Key prefixes. Committed rows are prefixRow+RowKey; staged records are
// prefixStage+StageRecordKey.
const (
	prefixRow   byte = 't'
	prefixStage byte = 's'
)

func init() {
	rdfsail.RegisterBackend(storage.LevelDBBackend, func(opt rdfsail.BackendOptions) (rdfsail.Backend, error) {
		if opt.Path == "" {
			return nil, errors.New("leveldb: backend requires a data directory")
		}
		return NewStorage(filepath.Join(opt.Path, DirName), opt.Config.FsyncEnabled), nil
	})
}

// Ensure type implements interface.
var _ rdfsail.Backend = &Storage{}

// Storage represents a LevelDB-backed storage engine.
type Storage struct {
	mu   sync.RWMutex
	path string
	db   *leveldb.DB
	wo   *opt.WriteOptions

	seq uint64
}

// NewStorage returns a new instance of Storage.
func NewStorage(path string, fsyncEnabled bool) *Storage {
	return &Storage{
		path: path,
		wo:   &opt.WriteOptions{Sync: fsyncEnabled},
	}
}

// Path returns the path the storage was initialized with.
func (s *Storage) Path() string { return s.path }

// Open opens the database and drops ops staged by a previous process.
func (s *Storage) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := leveldb.OpenFile(s.path, nil)
	if err != nil {
		return errors.Wrapf(err, "opening %s", s.path)
	}
	s.db = db

	batch := &leveldb.Batch{}
	iter := db.NewIterator(util.BytesPrefix([]byte{prefixStage}), nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		db.Close()
		return errors.Wrap(err, "scanning staged records")
	}
	if batch.Len() > 0 {
		if err := db.Write(batch, s.wo); err != nil {
			db.Close()
			return errors.Wrap(err, "dropping staged records")
		}
	}
	return nil
}

// Close closes the database.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Load calls fn for every committed row.
func (s *Storage) Load(fn func(bucket rdfsail.ID, t rdfsail.Triple) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	iter := s.db.NewIterator(util.BytesPrefix([]byte{prefixRow}), nil)
	defer iter.Release()
	for iter.Next() {
		bucket, t, err := rdfsail.DecodeRowKey(iter.Key()[1:])
		if err != nil {
			return err
		}
		if err := fn(bucket, t); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Stage writes ops as one staged record.
func (s *Storage) Stage(txID uint64, bucket rdfsail.ID, ops []rdfsail.Op) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq := atomic.AddUint64(&s.seq, 1)
	key := append([]byte{prefixStage}, rdfsail.StageRecordKey(txID, bucket, seq)...)
	return errors.Wrap(s.db.Put(key, rdfsail.EncodeOps(ops), s.wo), "staging ops")
}

// Commit writes the staged records and ops as one leveldb batch.
func (s *Storage) Commit(txID uint64, bucket rdfsail.ID, ops []rdfsail.Op) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch := &leveldb.Batch{}
	staged, err := s.takeStaged(batch, txID, bucket)
	if err != nil {
		return err
	}
	for _, a := range [][]rdfsail.Op{staged, ops} {
		for _, op := range a {
			key := append([]byte{prefixRow}, rdfsail.RowKey(bucket, op.Triple)...)
			switch op.Type {
			case rdfsail.OpInsert:
				batch.Put(key, nil)
			case rdfsail.OpRemove:
				batch.Delete(key)
			}
		}
	}
	return errors.Wrap(s.db.Write(batch, s.wo), "committing batch")
}

// Discard deletes the staged records of the transaction's bucket.
func (s *Storage) Discard(txID uint64, bucket rdfsail.ID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch := &leveldb.Batch{}
	if _, err := s.takeStaged(batch, txID, bucket); err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}
	return errors.Wrap(s.db.Write(batch, s.wo), "discarding staged records")
}

// takeStaged decodes the staged records of a bucket in staging order and
// adds their deletion to batch.
func (s *Storage) takeStaged(batch *leveldb.Batch, txID uint64, bucket rdfsail.ID) ([]rdfsail.Op, error) {
	prefix := append([]byte{prefixStage}, rdfsail.StageKey(txID, bucket)...)
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var ops []rdfsail.Op
	for iter.Next() {
		a, err := rdfsail.DecodeOps(iter.Value())
		if err != nil {
			return nil, errors.Wrap(err, "decoding staged ops")
		}
		ops = append(ops, a...)
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	return ops, iter.Error()
}
