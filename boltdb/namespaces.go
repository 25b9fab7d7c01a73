// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package boltdb

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"github.com/molecula/rdfsail"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// NamespacesFileName is the bolt file of the namespace store inside a data
// directory.
const NamespacesFileName = "namespaces.db"

var bucketNamespaces = []byte("namespaces")

// Ensure type implements interface.
var _ rdfsail.NamespaceStore = &NamespaceStore{}

// NamespaceStore is a persistent rdfsail.NamespaceStore. Bindings are kept
// in memory and written to the bolt file on Sync, only if they changed.
type NamespaceStore struct {
	*rdfsail.NamespaceMap

	db           *bolt.DB
	fsyncEnabled bool

	// File path to database file.
	Path string
}

// NewNamespaceStore returns a new instance of NamespaceStore.
func NewNamespaceStore(path string, fsyncEnabled bool) *NamespaceStore {
	return &NamespaceStore{
		NamespaceMap: rdfsail.NewNamespaceMap(),
		fsyncEnabled: fsyncEnabled,
		Path:         path,
	}
}

// OpenNamespaceStore opens the namespace store in the data directory dir.
func OpenNamespaceStore(dir string, fsyncEnabled bool) (*NamespaceStore, error) {
	s := NewNamespaceStore(filepath.Join(dir, NamespacesFileName), fsyncEnabled)
	if err := s.Open(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open opens the file and reads the bindings.
func (s *NamespaceStore) Open() (err error) {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0750); err != nil {
		return errors.Wrapf(err, "mkdir %s", filepath.Dir(s.Path))
	} else if s.db, err = bolt.Open(s.Path, 0600, &bolt.Options{Timeout: 1 * time.Second, NoSync: !s.fsyncEnabled}); err != nil {
		return errors.Wrapf(err, "open file: %s", s.Path)
	}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(bucketNamespaces)
		if err != nil {
			return err
		}
		// Keys are positions, so the cursor returns insertion order.
		return bkt.ForEach(func(k, v []byte) error {
			i := bytes.IndexByte(v, 0)
			if i < 0 {
				return errors.Errorf("invalid namespace record at %x", k)
			}
			return s.NamespaceMap.Set(string(v[:i]), string(v[i+1:]))
		})
	}); err != nil {
		s.db.Close()
		s.db = nil
		return errors.Wrap(err, "reading namespaces")
	}
	s.NamespaceMap.Sync()
	return nil
}

// Sync rewrites the bindings if they changed since the last Sync.
func (s *NamespaceStore) Sync() error {
	entries, ok := s.NamespaceMap.Snapshot()
	if !ok {
		return nil
	}
	if s.db == nil {
		s.NamespaceMap.MarkDirty()
		return errors.New("boltdb: namespace store not open")
	}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketNamespaces); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		bkt, err := tx.CreateBucket(bucketNamespaces)
		if err != nil {
			return err
		}
		for i, ns := range entries {
			var key [8]byte
			binary.BigEndian.PutUint64(key[:], uint64(i))
			val := make([]byte, 0, len(ns.Prefix)+1+len(ns.Name))
			val = append(append(append(val, ns.Prefix...), 0), ns.Name...)
			if err := bkt.Put(key[:], val); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		s.NamespaceMap.MarkDirty()
		return errors.Wrap(err, "writing namespaces")
	}
	return nil
}

// Close syncs and closes the file. Closing twice is a no-op.
func (s *NamespaceStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.Sync()
	if cerr := s.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.db = nil
	return err
}
