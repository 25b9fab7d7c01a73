// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package cassandra implements an rdfsail storage backend on Cassandra.
package cassandra

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocql/gocql"
	"github.com/molecula/rdfsail"
	"github.com/molecula/rdfsail/logger"
	"github.com/molecula/rdfsail/storage"
	"github.com/pkg/errors"
)

func init() {
	rdfsail.RegisterBackend(storage.CassandraBackend, func(opt rdfsail.BackendOptions) (rdfsail.Backend, error) {
		s := NewStorage()
		cfg := opt.Config.Cassandra
		if len(cfg.Hosts) > 0 {
			s.Hosts = cfg.Hosts
		}
		if cfg.Keyspace != "" {
			s.Keyspace = cfg.Keyspace
		}
		if cfg.Timeout > 0 {
			s.Timeout = time.Duration(cfg.Timeout)
		}
		if cfg.Consistency != "" {
			c, err := gocql.ParseConsistencyWrapper(cfg.Consistency)
			if err != nil {
				return nil, errors.Wrap(err, "parsing consistency")
			}
			s.Consistency = c
		}
		s.Logger = opt.Logger
		return s, nil
	})
}

// DefaultHosts are the default hosts in the cassandra cluster.
var DefaultHosts = []string{"localhost"}

const (
	// DefaultKeyspace is the default keyspace used in cassandra.
	DefaultKeyspace = "rdfsail"

	// DefaultTimeout is the default query timeout.
	DefaultTimeout = 5 * time.Second

	// DefaultReplication is used when the keyspace has to be created.
	DefaultReplication = "{'class':'SimpleStrategy', 'replication_factor':1}"
)

// Ensure type implements interface.
var _ rdfsail.Backend = &Storage{}

// Storage stores committed rows in the "triples" table, partitioned by
// bucket, and staged ops in the "staged" table, partitioned by transaction
// and bucket. Commits are logged batches, so a bucket's commit is applied
// entirely or not at all.
type Storage struct {
	mu      sync.RWMutex
	session *gocql.Session
	seq     int64

	Hosts       []string
	Keyspace    string
	Timeout     time.Duration
	Consistency gocql.Consistency
	Replication string

	Logger logger.Logger
}

// NewStorage returns a new, uninitialized instance of Storage.
func NewStorage() *Storage {
	return &Storage{
		Hosts:       DefaultHosts,
		Keyspace:    DefaultKeyspace,
		Timeout:     DefaultTimeout,
		Consistency: gocql.Quorum,
		Replication: DefaultReplication,
		Logger:      logger.NopLogger,
	}
}

// Open connects to the cluster, creates the schema if needed, and drops
// ops staged by a previous process.
func (s *Storage) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config := gocql.NewCluster(s.Hosts...)
	config.Consistency = s.Consistency
	config.Timeout = s.Timeout
	config.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: 3}

	session, err := config.CreateSession()
	if err != nil {
		return errors.Wrap(err, "connecting to cassandra")
	}

	for _, stmt := range []string{
		fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = %s", s.Keyspace, s.Replication),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.triples (bucket bigint, pred bigint, subj bigint, obj bigint, ctx bigint, inferred boolean, PRIMARY KEY ((bucket), pred, subj, obj, ctx, inferred))", s.Keyspace),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.staged (tx bigint, bucket bigint, seq bigint, ops blob, PRIMARY KEY ((tx, bucket), seq))", s.Keyspace),
		fmt.Sprintf("TRUNCATE %s.staged", s.Keyspace),
	} {
		if err := session.Query(stmt).Exec(); err != nil {
			session.Close()
			return errors.Wrapf(err, "executing %q", stmt)
		}
	}
	s.session = session
	s.Logger.Infof("cassandra: connected to %v keyspace=%s", s.Hosts, s.Keyspace)
	return nil
}

// Close closes the connection to the cassandra cluster.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}
	return nil
}

// Load calls fn for every committed row.
func (s *Storage) Load(fn func(bucket rdfsail.ID, t rdfsail.Triple) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	itr := s.session.Query(fmt.Sprintf("SELECT bucket, pred, subj, obj, ctx, inferred FROM %s.triples", s.Keyspace)).Iter()
	var bucket, pred, subj, obj, ctx int64
	var inferred bool
	for itr.Scan(&bucket, &pred, &subj, &obj, &ctx, &inferred) {
		t := rdfsail.Triple{
			Subj:     rdfsail.ID(subj),
			Pred:     rdfsail.ID(pred),
			Obj:      rdfsail.ID(obj),
			Ctx:      rdfsail.ID(ctx),
			Inferred: inferred,
		}
		if err := fn(rdfsail.ID(bucket), t); err != nil {
			itr.Close()
			return err
		}
	}
	return errors.Wrap(itr.Close(), "reading triples")
}

// Stage writes ops as one staged record.
func (s *Storage) Stage(txID uint64, bucket rdfsail.ID, ops []rdfsail.Op) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq := atomic.AddInt64(&s.seq, 1)
	return errors.Wrap(s.session.Query(
		fmt.Sprintf("INSERT INTO %s.staged (tx, bucket, seq, ops) VALUES (?, ?, ?, ?)", s.Keyspace),
		u64toi64(txID), u64toi64(uint64(bucket)), seq, rdfsail.EncodeOps(ops),
	).Exec(), "staging ops")
}

// Commit applies the staged records and ops and deletes the staged records
// in one logged batch.
func (s *Storage) Commit(txID uint64, bucket rdfsail.ID, ops []rdfsail.Op) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	staged, err := s.staged(txID, bucket)
	if err != nil {
		return err
	}

	batch := s.session.NewBatch(gocql.LoggedBatch)
	b := u64toi64(uint64(bucket))
	for _, a := range [][]rdfsail.Op{staged, ops} {
		for _, op := range a {
			t := op.Triple
			switch op.Type {
			case rdfsail.OpInsert:
				batch.Query(fmt.Sprintf("INSERT INTO %s.triples (bucket, pred, subj, obj, ctx, inferred) VALUES (?, ?, ?, ?, ?, ?)", s.Keyspace),
					b, u64toi64(uint64(t.Pred)), u64toi64(uint64(t.Subj)), u64toi64(uint64(t.Obj)), u64toi64(uint64(t.Ctx)), t.Inferred)
			case rdfsail.OpRemove:
				batch.Query(fmt.Sprintf("DELETE FROM %s.triples WHERE bucket = ? AND pred = ? AND subj = ? AND obj = ? AND ctx = ? AND inferred = ?", s.Keyspace),
					b, u64toi64(uint64(t.Pred)), u64toi64(uint64(t.Subj)), u64toi64(uint64(t.Obj)), u64toi64(uint64(t.Ctx)), t.Inferred)
			}
		}
	}
	if len(staged) > 0 {
		batch.Query(fmt.Sprintf("DELETE FROM %s.staged WHERE tx = ? AND bucket = ?", s.Keyspace), u64toi64(txID), b)
	}
	if batch.Size() == 0 {
		return nil
	}
	return errors.Wrap(s.session.ExecuteBatch(batch), "committing batch")
}

// Discard deletes the staged records of the transaction's bucket.
func (s *Storage) Discard(txID uint64, bucket rdfsail.ID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return errors.Wrap(s.session.Query(
		fmt.Sprintf("DELETE FROM %s.staged WHERE tx = ? AND bucket = ?", s.Keyspace),
		u64toi64(txID), u64toi64(uint64(bucket)),
	).Exec(), "discarding staged ops")
}

// staged reads the staged ops of a bucket in staging order.
func (s *Storage) staged(txID uint64, bucket rdfsail.ID) ([]rdfsail.Op, error) {
	itr := s.session.Query(
		fmt.Sprintf("SELECT ops FROM %s.staged WHERE tx = ? AND bucket = ?", s.Keyspace),
		u64toi64(txID), u64toi64(uint64(bucket)),
	).Iter()

	var ops []rdfsail.Op
	var buf []byte
	for itr.Scan(&buf) {
		a, err := rdfsail.DecodeOps(buf)
		if err != nil {
			itr.Close()
			return nil, errors.Wrap(err, "decoding staged ops")
		}
		ops = append(ops, a...)
	}
	return ops, errors.Wrap(itr.Close(), "reading staged ops")
}

// u64toi64 reinterprets v; IDs above MaxInt64 round-trip as negative values.
func u64toi64(v uint64) int64 { return int64(v) }
