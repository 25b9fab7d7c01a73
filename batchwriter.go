// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash"
	"github.com/molecula/rdfsail/errors"
	"github.com/molecula/rdfsail/logger"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultQueueCapacity is the number of batches the writer queue holds
	// before producers block.
	DefaultQueueCapacity = 8192

	// DefaultBatchWorkers is the size of the worker pool.
	DefaultBatchWorkers = 4

	// workerQueueSize is the hand-off buffer between the dispatcher and
	// each worker.
	workerQueueSize = 16
)

// BatchWriter applies batches to storage asynchronously. Batches pass through
// one bounded queue; a dispatcher hands each batch to the worker that owns its
// bucket, so batches for the same bucket are applied in enqueue order.
//
// Workers are the only code that writes the backend and the only code that
// computes new committed rows.
type BatchWriter struct {
	mu     sync.RWMutex
	opened bool
	closed bool

	queue   chan *Batch
	workers []chan *Batch
	eg      errgroup.Group

	backend Backend

	// base returns the latest committed rows of a bucket.
	base func(ID) *rowSet

	capacity int
	nworkers int
	logger   logger.Logger
}

// BatchWriterOption is a functional option for a BatchWriter.
type BatchWriterOption func(w *BatchWriter)

// OptBatchWriterQueueCapacity sets the queue capacity.
func OptBatchWriterQueueCapacity(n int) BatchWriterOption {
	return func(w *BatchWriter) {
		if n > 0 {
			w.capacity = n
		}
	}
}

// OptBatchWriterWorkers sets the number of workers.
func OptBatchWriterWorkers(n int) BatchWriterOption {
	return func(w *BatchWriter) {
		if n > 0 {
			w.nworkers = n
		}
	}
}

// OptBatchWriterLogger sets the logger.
func OptBatchWriterLogger(l logger.Logger) BatchWriterOption {
	return func(w *BatchWriter) {
		w.logger = l
	}
}

// NewBatchWriter returns a writer that applies batches to backend. base
// must return the latest committed rows of a bucket, or nil.
func NewBatchWriter(backend Backend, base func(ID) *rowSet, opts ...BatchWriterOption) *BatchWriter {
	w := &BatchWriter{
		backend:  backend,
		base:     base,
		capacity: DefaultQueueCapacity,
		nworkers: DefaultBatchWorkers,
		logger:   logger.NopLogger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Open starts the dispatcher and the workers.
func (w *BatchWriter) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.opened {
		return errors.New(ErrIllegalState, "batch writer already open")
	}
	w.opened = true

	w.queue = make(chan *Batch, w.capacity)
	w.workers = make([]chan *Batch, w.nworkers)
	for i := range w.workers {
		ch := make(chan *Batch, workerQueueSize)
		w.workers[i] = ch
		wk := &batchWorker{
			backend: w.backend,
			base:    w.base,
			staged:  make(map[stageKey][]Op),
			logger:  w.logger,
		}
		w.eg.Go(func() error {
			wk.run(ch)
			return nil
		})
	}
	w.eg.Go(func() error {
		w.dispatch()
		return nil
	})
	return nil
}

// Close stops accepting batches, waits until every queued batch has been
// applied, then stops the workers.
func (w *BatchWriter) Close() error {
	w.mu.Lock()
	if w.closed || !w.opened {
		w.closed = true
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	return w.eg.Wait()
}

// Enqueue hands b to the writer. It blocks while the queue is full, and
// fails if ctx is done first or the writer is closed.
func (w *BatchWriter) Enqueue(ctx context.Context, b *Batch) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed || !w.opened {
		return errors.New(ErrClosed, "batch writer closed")
	}

	select {
	case w.queue <- b:
		metricQueueDepth.Set(float64(len(w.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueLen returns the number of batches waiting for dispatch.
func (w *BatchWriter) QueueLen() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.queue == nil {
		return 0
	}
	return len(w.queue)
}

// dispatch routes queued batches to workers until the queue is closed and
// drained.
func (w *BatchWriter) dispatch() {
	defer func() {
		for _, ch := range w.workers {
			close(ch)
		}
	}()
	for b := range w.queue {
		metricQueueDepth.Set(float64(len(w.queue)))
		w.workers[w.workerFor(b.Bucket)] <- b
	}
}

// workerFor returns the index of the worker that owns bucket.
func (w *BatchWriter) workerFor(bucket ID) int {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(bucket))
	return int(xxhash.Sum64(buf[:]) % uint64(len(w.workers)))
}

type stageKey struct {
	txID   uint64
	bucket ID
}

// batchWorker applies batches for the buckets routed to it. It owns the
// staged ops of those buckets.
type batchWorker struct {
	backend Backend
	base    func(ID) *rowSet
	staged  map[stageKey][]Op
	logger  logger.Logger
}

func (wk *batchWorker) run(ch <-chan *Batch) {
	for b := range ch {
		wk.apply(b)
		metricBatchesApplied.WithLabelValues(b.Kind.String()).Inc()
	}
}

func (wk *batchWorker) apply(b *Batch) {
	key := stageKey{txID: b.TxID, bucket: b.Bucket}

	switch b.Kind {
	case BatchStage:
		if err := wk.backend.Stage(b.TxID, b.Bucket, b.Ops); err != nil {
			b.finish(nil, wk.storageError(err, "staging", b))
			return
		}
		wk.staged[key] = append(wk.staged[key], b.Ops...)
		b.finish(nil, nil)

	case BatchCommit:
		staged := wk.staged[key]
		delete(wk.staged, key)
		if err := wk.backend.Commit(b.TxID, b.Bucket, b.Ops); err != nil {
			b.finish(nil, wk.storageError(err, "committing", b))
			return
		}
		rows := applyOps(applyOps(wk.base(b.Bucket), staged), b.Ops)
		b.finish(rows, nil)

	case BatchDiscard:
		delete(wk.staged, key)
		if err := wk.backend.Discard(b.TxID, b.Bucket); err != nil {
			b.finish(nil, wk.storageError(err, "discarding", b))
			return
		}
		b.finish(nil, nil)

	default:
		b.finish(nil, errors.Newf(ErrIllegalState, "unknown batch kind: %s", b.Kind))
	}
}

func (wk *batchWorker) storageError(err error, action string, b *Batch) error {
	metricStorageErrors.Inc()
	wk.logger.Errorf("%s tx %d bucket %s: %v", action, b.TxID, tableName(b.Bucket), err)
	return errors.Coded(ErrStorageIO, err, action+" "+tableName(b.Bucket))
}
