// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package server contains the Command that opens an rdfsail store from
// configuration. The CLI subcommands share it so that flags, logging and
// storage setup are interpreted in one place.
package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/molecula/rdfsail"
	"github.com/molecula/rdfsail/boltdb"
	"github.com/molecula/rdfsail/logger"
	"github.com/molecula/rdfsail/tracing"
	"github.com/molecula/rdfsail/tracing/opentracing"
	gopentracing "github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Register the storage backends.
	_ "github.com/molecula/rdfsail/storage/cassandra"
	_ "github.com/molecula/rdfsail/storage/leveldb"
)

// Command represents the state of a process holding an open store.
type Command struct {
	Store *rdfsail.Store

	// Configuration.
	Config *Config

	// Standard input/output
	*rdfsail.CmdIO

	logger  logger.Logger
	logFile *logger.FileWriter
	metrics *http.Server
	ln      net.Listener

	closeOnce sync.Once
	wg        sync.WaitGroup

	// Started will be closed once Command.Start is finished.
	Started chan struct{}
	// Done will be closed when Command.Close() is called
	Done chan struct{}
}

// NewCommand returns a new instance of Command.
func NewCommand(stdin io.Reader, stdout, stderr io.Writer) *Command {
	return &Command{
		Config: NewConfig(),

		CmdIO: rdfsail.NewCmdIO(stdin, stdout, stderr),

		Started: make(chan struct{}),
		Done:    make(chan struct{}),
	}
}

// Start sets up logging and opens the store. Close must be called even if
// Start fails.
func (m *Command) Start() (err error) {
	defer close(m.Started)

	if err := m.Config.expandDataDir(); err != nil {
		return err
	} else if err := m.Config.Validate(); err != nil {
		return errors.Wrap(err, "validating config")
	}
	if err := m.setupLogger(); err != nil {
		return errors.Wrap(err, "setting up logger")
	}

	// Trace commits through the process-wide tracer if one was registered.
	if gopentracing.IsGlobalTracerRegistered() {
		tracing.GlobalTracer = opentracing.NewTracer(gopentracing.GlobalTracer())
	}

	opts := []rdfsail.StoreOption{
		rdfsail.OptStoreLogger(m.logger),
		rdfsail.OptStoreConfig(&m.Config.Storage),
	}
	if m.Config.DataDir != "" {
		ns, err := boltdb.OpenNamespaceStore(m.Config.DataDir, m.Config.Storage.FsyncEnabled)
		if err != nil {
			return errors.Wrap(err, "opening namespaces")
		}
		opts = append(opts, rdfsail.OptStoreNamespaces(ns))
		defer func() {
			if err != nil {
				ns.Close()
			}
		}()
	}

	if m.Store, err = rdfsail.NewStore(m.Config.DataDir, opts...); err != nil {
		return errors.Wrap(err, "creating store")
	} else if err := m.Store.Open(); err != nil {
		return errors.Wrap(err, "opening store")
	}

	if m.Config.Metric.Bind != "" {
		if err := m.serveMetrics(); err != nil {
			m.Store.Close()
			return err
		}
	}
	return nil
}

// setupLogger sets up the logger based on the configuration. A log file is
// reopened on SIGHUP so that it can be rotated.
func (m *Command) setupLogger() error {
	var w io.Writer = m.Stderr
	if m.Config.LogPath != "" {
		f, err := logger.NewFileWriter(m.Config.LogPath)
		if err != nil {
			return errors.Wrap(err, "opening file")
		}
		m.logFile, w = f, f

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGHUP)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer signal.Stop(sig)
			for {
				select {
				case <-sig:
					if err := f.Reopen(); err != nil {
						m.logger.Errorf("reopening log file %s: %v", f.Name(), err)
						continue
					}
					m.logger.Infof("reopened log file %s", f.Name())
				case <-m.Done:
					return
				}
			}
		}()
	}

	m.logger = logger.NewLogger(w, m.Config.Verbose)
	return nil
}

// serveMetrics serves the Prometheus registry on Config.Metric.Bind.
func (m *Command) serveMetrics() error {
	ln, err := net.Listen("tcp", m.Config.Metric.Bind)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", m.Config.Metric.Bind)
	}
	m.ln = ln

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	m.metrics = &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.metrics.Serve(ln); err != nil && err != http.ErrServerClosed {
			m.logger.Errorf("serving metrics: %v", err)
		}
	}()
	m.logger.Infof("serving metrics on http://%s/metrics", ln.Addr())
	return nil
}

// MetricsAddr returns the address metrics are served on, or nil.
func (m *Command) MetricsAddr() net.Addr {
	if m.ln == nil {
		return nil
	}
	return m.ln.Addr()
}

// Logger returns the command's logger.
func (m *Command) Logger() logger.Logger { return m.logger }

// Connection returns a new store connection limited to the configured
// maximum execution time.
func (m *Command) Connection() (*rdfsail.Connection, error) {
	c, err := m.Store.Connection()
	if err != nil {
		return nil, err
	}
	c.SetMaxExecutionTime(time.Duration(m.Config.MaxExecutionTime))
	return c, nil
}

// Close shuts down the metrics endpoint, the store and the log file.
func (m *Command) Close() (err error) {
	m.closeOnce.Do(func() {
		keep := func(e error) {
			if e != nil && err == nil {
				err = e
			}
		}
		if m.metrics != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			keep(m.metrics.Shutdown(ctx))
			cancel()
		}
		if m.Store != nil {
			keep(errors.Wrap(m.Store.Close(), "closing store"))
		}
		close(m.Done)
		m.wg.Wait()
		if m.logFile != nil {
			keep(errors.Wrap(m.logFile.Close(), "closing logs"))
		}
	})
	return err
}
