// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package storage

import (
	"time"

	"github.com/molecula/rdfsail/toml"
)

// Names of the storage backends that ship with rdfsail. server/config.go and
// the backend packages reference them.
const (
	MemoryBackend    string = "memory"
	BoltBackend      string = "bolt"
	LevelDBBackend   string = "leveldb"
	CassandraBackend string = "cassandra"
)

// DefaultBackend is the backend used when none is configured.
const DefaultBackend = MemoryBackend

// Config represents configuration which applies to multiple storage engines.
type Config struct {
	Backend string `toml:"backend"`

	// Set before opening the store.
	FsyncEnabled bool `toml:"fsync"`

	// MaxPredicateTables is the number of predicates that get a dedicated
	// table. Later predicates share one table with a predicate column.
	MaxPredicateTables int `toml:"max-predicate-tables"`

	// BatchSize is the number of buffered ops that are sealed into one
	// batch and handed to the batch writer.
	BatchSize int `toml:"batch-size"`

	// QueueCapacity bounds the batch writer queue.
	QueueCapacity int `toml:"queue-capacity"`

	// Workers is the number of batch writer workers.
	Workers int `toml:"workers"`

	// MaxIsolationLevel caps the isolation levels Begin accepts.
	MaxIsolationLevel string `toml:"max-isolation-level"`

	Cassandra CassandraConfig `toml:"cassandra"`
}

// CassandraConfig configures the cassandra backend.
type CassandraConfig struct {
	Hosts       []string      `toml:"hosts"`
	Keyspace    string        `toml:"keyspace"`
	Timeout     toml.Duration `toml:"timeout"`
	Consistency string        `toml:"consistency"`
}

// NewDefaultConfig returns a new Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Backend:            DefaultBackend,
		FsyncEnabled:       true,
		MaxPredicateTables: 256,
		BatchSize:          8 * 1024,
		QueueCapacity:      8192,
		Workers:            4,
		MaxIsolationLevel:  "SERIALIZABLE",
		Cassandra: CassandraConfig{
			Hosts:       []string{"localhost"},
			Keyspace:    "rdfsail",
			Timeout:     toml.Duration(5 * time.Second),
			Consistency: "QUORUM",
		},
	}
}
