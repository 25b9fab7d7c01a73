// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package ctl implements the rdfsail subcommands. Each command carries a
// server.Command that opens the configured store.
package ctl

import (
	"time"

	"github.com/molecula/rdfsail/server"
	"github.com/spf13/cobra"
)

// BuildServerFlags attaches the store configuration flags to the command.
func BuildServerFlags(cmd *cobra.Command, srv *server.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&srv.Config.DataDir, "data-dir", "d", srv.Config.DataDir, "Directory to store rdfsail data files. Empty keeps data in memory.")
	flags.StringVar(&srv.Config.LogPath, "log-path", srv.Config.LogPath, "Log path")
	flags.BoolVar(&srv.Config.Verbose, "verbose", srv.Config.Verbose, "Enable verbose logging")
	flags.DurationVar((*time.Duration)(&srv.Config.MaxExecutionTime), "max-execution-time", time.Duration(srv.Config.MaxExecutionTime), "Maximum time a statement iteration may stay open. Zero to disable.")

	// Storage
	flags.StringVar(&srv.Config.Storage.Backend, "storage.backend", srv.Config.Storage.Backend, "Storage backend: memory, bolt, leveldb or cassandra.")
	flags.BoolVar(&srv.Config.Storage.FsyncEnabled, "storage.fsync", srv.Config.Storage.FsyncEnabled, "Sync backend writes to disk.")
	flags.IntVar(&srv.Config.Storage.MaxPredicateTables, "storage.max-predicate-tables", srv.Config.Storage.MaxPredicateTables, "Number of predicates with a table of their own. Others share one table.")
	flags.IntVar(&srv.Config.Storage.BatchSize, "storage.batch-size", srv.Config.Storage.BatchSize, "Number of operations per write batch.")
	flags.IntVar(&srv.Config.Storage.QueueCapacity, "storage.queue-capacity", srv.Config.Storage.QueueCapacity, "Number of batches queued before writers block.")
	flags.IntVar(&srv.Config.Storage.Workers, "storage.workers", srv.Config.Storage.Workers, "Number of batch writer workers.")
	flags.StringVar(&srv.Config.Storage.MaxIsolationLevel, "storage.max-isolation-level", srv.Config.Storage.MaxIsolationLevel, "Strongest isolation level transactions may use.")

	// Cassandra
	flags.StringSliceVar(&srv.Config.Storage.Cassandra.Hosts, "storage.cassandra.hosts", srv.Config.Storage.Cassandra.Hosts, "Comma separated list of cassandra hosts.")
	flags.StringVar(&srv.Config.Storage.Cassandra.Keyspace, "storage.cassandra.keyspace", srv.Config.Storage.Cassandra.Keyspace, "Cassandra keyspace.")
	flags.DurationVar((*time.Duration)(&srv.Config.Storage.Cassandra.Timeout), "storage.cassandra.timeout", time.Duration(srv.Config.Storage.Cassandra.Timeout), "Cassandra query timeout.")
	flags.StringVar(&srv.Config.Storage.Cassandra.Consistency, "storage.cassandra.consistency", srv.Config.Storage.Cassandra.Consistency, "Cassandra consistency level.")

	// Metric
	flags.StringVar(&srv.Config.Metric.Bind, "metric.bind", srv.Config.Metric.Bind, "Address to serve Prometheus metrics on. Empty to disable.")
}
