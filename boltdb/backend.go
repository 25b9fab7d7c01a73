// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package boltdb

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/molecula/rdfsail"
	"github.com/molecula/rdfsail/storage"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// TriplesFileName is the bolt file of the backend inside a data directory.
const TriplesFileName = "triples.db"

var (
	bucketTriples = []byte("triples")
	bucketStage   = []byte("stage")
)

func init() {
	rdfsail.RegisterBackend(storage.BoltBackend, func(opt rdfsail.BackendOptions) (rdfsail.Backend, error) {
		if opt.Path == "" {
			return nil, errors.New("boltdb: backend requires a data directory")
		}
		return NewBackend(filepath.Join(opt.Path, TriplesFileName), opt.Config.FsyncEnabled), nil
	})
}

// Ensure type implements interface.
var _ rdfsail.Backend = &Backend{}

// Backend stores committed rows and staged ops in a bolt file. Committed
// rows live in the "triples" bucket keyed by rdfsail.RowKey; staged ops live
// in the "stage" bucket keyed by rdfsail.StageRecordKey.
type Backend struct {
	mu sync.RWMutex
	db *bolt.DB

	fsyncEnabled bool

	// File path to database file.
	Path string
}

// NewBackend returns a new instance of Backend.
func NewBackend(path string, fsyncEnabled bool) *Backend {
	return &Backend{Path: path, fsyncEnabled: fsyncEnabled}
}

// Open opens the bolt file and drops ops staged by a previous process.
func (b *Backend) Open() (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(b.Path), 0750); err != nil {
		return errors.Wrapf(err, "mkdir %s", filepath.Dir(b.Path))
	} else if b.db, err = bolt.Open(b.Path, 0600, &bolt.Options{Timeout: 1 * time.Second, NoSync: !b.fsyncEnabled}); err != nil {
		return errors.Wrapf(err, "open file: %s", b.Path)
	}

	if err := b.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketTriples); err != nil {
			return err
		}
		if tx.Bucket(bucketStage) != nil {
			if err := tx.DeleteBucket(bucketStage); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucket(bucketStage)
		return err
	}); err != nil {
		b.db.Close()
		b.db = nil
		return errors.Wrap(err, "initializing buckets")
	}
	return nil
}

// Close closes the underlying database.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// Load calls fn for every committed row.
func (b *Backend) Load(fn func(bucket rdfsail.ID, t rdfsail.Triple) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(bucketTriples).Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			bucket, t, err := rdfsail.DecodeRowKey(k)
			if err != nil {
				return err
			}
			if err := fn(bucket, t); err != nil {
				return err
			}
		}
		return nil
	})
}

// Stage appends ops to the staged records of the transaction's bucket.
func (b *Backend) Stage(txID uint64, bucket rdfsail.ID, ops []rdfsail.Op) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketStage)
		seq, err := bkt.NextSequence()
		if err != nil {
			return errors.Wrap(err, "next sequence")
		}
		return bkt.Put(rdfsail.StageRecordKey(txID, bucket, seq), rdfsail.EncodeOps(ops))
	})
}

// Commit applies the staged records and ops to the triples bucket in a
// single bolt transaction.
func (b *Backend) Commit(txID uint64, bucket rdfsail.ID, ops []rdfsail.Op) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.db.Update(func(tx *bolt.Tx) error {
		staged, err := takeStaged(tx.Bucket(bucketStage), txID, bucket)
		if err != nil {
			return err
		}
		triples := tx.Bucket(bucketTriples)
		for _, a := range [][]rdfsail.Op{staged, ops} {
			if err := applyOps(triples, bucket, a); err != nil {
				return err
			}
		}
		return nil
	})
}

// Discard deletes the staged records of the transaction's bucket.
func (b *Backend) Discard(txID uint64, bucket rdfsail.ID) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.db.Update(func(tx *bolt.Tx) error {
		_, err := takeStaged(tx.Bucket(bucketStage), txID, bucket)
		return err
	})
}

// StagedRecords returns the number of staged records, for tests and checks.
func (b *Backend) StagedRecords() (n int, err error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	err = b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketStage).Stats().KeyN
		return nil
	})
	return n, err
}

// takeStaged decodes and deletes the staged records of a bucket, in the
// order they were staged.
func takeStaged(bkt *bolt.Bucket, txID uint64, bucket rdfsail.ID) ([]rdfsail.Op, error) {
	prefix := rdfsail.StageKey(txID, bucket)
	var ops []rdfsail.Op
	var keys [][]byte
	cur := bkt.Cursor()
	for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
		a, err := rdfsail.DecodeOps(v)
		if err != nil {
			return nil, errors.Wrap(err, "decoding staged ops")
		}
		ops = append(ops, a...)
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := bkt.Delete(k); err != nil {
			return nil, errors.Wrap(err, "deleting staged ops")
		}
	}
	return ops, nil
}

func applyOps(bkt *bolt.Bucket, bucket rdfsail.ID, ops []rdfsail.Op) error {
	for _, op := range ops {
		key := rdfsail.RowKey(bucket, op.Triple)
		var err error
		switch op.Type {
		case rdfsail.OpInsert:
			err = bkt.Put(key, []byte{})
		case rdfsail.OpRemove:
			err = bkt.Delete(key)
		}
		if err != nil {
			return errors.Wrapf(err, "applying %s of %s", op.Type, op.Triple)
		}
	}
	return nil
}
