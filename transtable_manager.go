// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"context"
	"sort"

	"github.com/molecula/rdfsail/errors"
	"github.com/molecula/rdfsail/logger"
)

// OverlayRouter routes the writes of one transaction to per-bucket
// TransactionTables and builds the merged views its reads go through.
// TransactionTables are created on the first write to their bucket.
type OverlayRouter struct {
	txID      uint64
	tables    *TripleTableManager
	writer    *BatchWriter
	batchSize int
	logger    logger.Logger

	registry map[ID]*TransactionTable
	preds    map[ID]struct{}
}

func newOverlayRouter(txID uint64, tables *TripleTableManager, writer *BatchWriter, batchSize int, log logger.Logger) *OverlayRouter {
	if log == nil {
		log = logger.NopLogger
	}
	return &OverlayRouter{
		txID:      txID,
		tables:    tables,
		writer:    writer,
		batchSize: batchSize,
		logger:    log,
		registry:  make(map[ID]*TransactionTable),
		preds:     make(map[ID]struct{}),
	}
}

// table returns the TransactionTable for pred, creating it if needed.
func (r *OverlayRouter) table(pred ID) *TransactionTable {
	b := r.tables.Route(pred)
	r.preds[pred] = struct{}{}
	tbl := r.registry[b]
	if tbl == nil {
		tbl = newTransactionTable(r.txID, b, r.batchSize)
		r.registry[b] = tbl
	}
	return tbl
}

// Insert buffers the insert of t. It blocks while a sealed batch cannot be
// queued.
func (r *OverlayRouter) Insert(ctx context.Context, t Triple) error {
	tbl := r.table(t.Pred)
	if b := tbl.insert(t); b != nil {
		return r.stage(ctx, tbl, b)
	}
	return nil
}

// Remove buffers the removal of t.
func (r *OverlayRouter) Remove(ctx context.Context, t Triple) error {
	tbl := r.table(t.Pred)
	if b := tbl.remove(t); b != nil {
		return r.stage(ctx, tbl, b)
	}
	return nil
}

// stage queues a sealed Stage batch of tbl. If the batch cannot be queued
// the table is marked failed and a later commit reports it.
func (r *OverlayRouter) stage(ctx context.Context, tbl *TransactionTable, b *Batch) error {
	err := r.enqueue(ctx, b)
	tbl.staged(b, err)
	return err
}

func (r *OverlayRouter) enqueue(ctx context.Context, b *Batch) error {
	if err := r.writer.Enqueue(ctx, b); err != nil {
		return errors.Wrapf(err, "queueing %s batch for %s", b.Kind, tableName(b.Bucket))
	}
	return nil
}

// TableName returns the name of the relation that reads of pred use: the
// union of all tables for the wildcard, the bucket's table for a known
// predicate, or the empty relation.
func (r *OverlayRouter) TableName(pred ID) string {
	if pred == Nil {
		return unionViewName
	}
	b, ok := r.tables.Lookup(pred)
	if !ok {
		return emptyViewName
	}
	return tableName(b)
}

// CombinedView returns the rows of pred in base merged with the pending
// rows of this transaction only. The wildcard predicate returns the union
// of every bucket. A predicate without rows returns an empty view, never nil.
func (r *OverlayRouter) CombinedView(base *snapshot, pred ID) *View {
	return buildView(r.tables, base, r.registry, pred)
}

// IsEmpty returns true if the transaction has not written anything.
func (r *OverlayRouter) IsEmpty() bool {
	for _, tbl := range r.registry {
		if !tbl.isEmpty() {
			return false
		}
	}
	return true
}

// PredicateIDs returns the predicates written by the transaction.
func (r *OverlayRouter) PredicateIDs() []ID {
	a := make([]ID, 0, len(r.preds))
	for p := range r.preds {
		a = append(a, p)
	}
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	return a
}

// IsPredColumnPresent returns true if pred is stored in the shared table.
func (r *OverlayRouter) IsPredColumnPresent(pred ID) bool {
	return r.tables.IsPredColumnPresent(pred)
}

// buckets returns the registered buckets in ascending order.
func (r *OverlayRouter) buckets() []ID {
	a := make([]ID, 0, len(r.registry))
	for b := range r.registry {
		a = append(a, b)
	}
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	return a
}

// writeSet calls fn for every triple the transaction inserted or removed.
func (r *OverlayRouter) writeSet(fn func(Triple)) {
	for _, tbl := range r.registry {
		tbl.writeSet(fn)
	}
}

// Committed flushes every registered TransactionTable as a Commit batch,
// waits for the writer to apply them, and clears the registry. It returns
// the new committed rows of every bucket that was applied. If some bucket
// fails, the others are still returned along with a StorageIO error, and the
// failed buckets' staged ops are discarded.
//
// locked reports whether the caller holds the commit lock, which decides
// whether removed-row bookkeeping is applied now or deferred.
func (r *OverlayRouter) Committed(ctx context.Context, locked bool) (map[ID]*rowSet, error) {
	defer r.reset()

	type pending struct {
		tbl   *TransactionTable
		batch *Batch
	}
	var queued []pending
	var failed []*TransactionTable
	var firstErr error
	fail := func(tbl *TransactionTable, err error) {
		failed = append(failed, tbl)
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, b := range r.buckets() {
		tbl := r.registry[b]
		if tbl.isEmpty() {
			continue
		}
		if firstErr != nil {
			fail(tbl, nil)
			continue
		}
		if tbl.err != nil {
			fail(tbl, tbl.err)
			continue
		}

		// Staged ops that never reached storage must not be committed
		// without the rest of the transaction's writes.
		if err := waitAll(tbl.stages); err != nil {
			fail(tbl, err)
			continue
		}

		batch := tbl.commitBatch()
		if err := r.enqueue(ctx, batch); err != nil {
			fail(tbl, err)
			continue
		}
		queued = append(queued, pending{tbl: tbl, batch: batch})
	}

	// Queued batches are always applied, even if ctx is cancelled, so
	// wait for them without it.
	rows := make(map[ID]*rowSet, len(queued))
	var removed int64
	for _, p := range queued {
		set, err := p.batch.wait(context.Background())
		if err != nil {
			fail(p.tbl, err)
			continue
		}
		rows[p.tbl.bucket] = set
		r.tables.Inserted(p.tbl.bucket, p.tbl.insertedCount)
		removed += p.tbl.removedCount
	}
	r.tables.Removed(removed, locked)

	if len(failed) > 0 {
		r.discard(ctx, failed)
		if len(rows) > 0 {
			r.logger.Errorf("tx %d: partial commit, %d buckets applied, %d failed", r.txID, len(rows), len(failed))
		}
		if !errors.Is(firstErr, ErrStorageIO) {
			firstErr = errors.Coded(ErrStorageIO, firstErr, "commit failed")
		}
		return rows, firstErr
	}
	return rows, nil
}

// RolledBack discards the staged ops of every table and clears the
// registry. Committed storage is not touched.
func (r *OverlayRouter) RolledBack(ctx context.Context) error {
	defer r.reset()
	var tbls []*TransactionTable
	for _, b := range r.buckets() {
		tbls = append(tbls, r.registry[b])
	}
	return r.discard(ctx, tbls)
}

// discard drops the staged ops of tbls. Tables that never staged anything
// need no batch.
func (r *OverlayRouter) discard(ctx context.Context, tbls []*TransactionTable) error {
	var batches []*Batch
	var firstErr error
	for _, tbl := range tbls {
		if !tbl.hasStaged() {
			continue
		}
		b := NewBatch(BatchDiscard, r.txID, tbl.bucket, nil)
		if err := r.enqueue(ctx, b); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		batches = append(batches, b)
	}
	if err := waitAll(batches); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		r.logger.Warnf("tx %d: discarding staged ops: %v", r.txID, firstErr)
	}
	return firstErr
}

func (r *OverlayRouter) reset() {
	r.registry = make(map[ID]*TransactionTable)
	r.preds = make(map[ID]struct{})
}

// waitAll waits for every batch and returns the first error.
func waitAll(batches []*Batch) error {
	var firstErr error
	for _, b := range batches {
		if err := b.Wait(context.Background()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

const (
	unionViewName = "triples_all"
	emptyViewName = "triples_empty"
)

// buildView returns the view of pred over base merged with the pending
// tables in registry, which may be nil.
func buildView(tables *TripleTableManager, base *snapshot, registry map[ID]*TransactionTable, pred ID) *View {
	if pred != Nil {
		b, ok := tables.Lookup(pred)
		if !ok {
			return emptyView()
		}
		part := viewPart{rows: base.bucket(b)}
		if b == OtherPred {
			part.pred = pred
		}
		if tbl := registry[b]; tbl != nil {
			part.inserts, part.removes = tbl.overlay()
		}
		if setLen(part.rows) == 0 && setLen(part.inserts) == 0 {
			return emptyView()
		}
		return &View{name: tableName(b), parts: []viewPart{part}}
	}

	seen := make(map[ID]struct{})
	var buckets []ID
	for _, b := range base.bucketIDs() {
		seen[b] = struct{}{}
		buckets = append(buckets, b)
	}
	for b := range registry {
		if _, ok := seen[b]; !ok {
			buckets = append(buckets, b)
		}
	}
	if len(buckets) == 0 {
		return emptyView()
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })

	v := &View{name: unionViewName}
	for _, b := range buckets {
		part := viewPart{rows: base.bucket(b)}
		if tbl := registry[b]; tbl != nil {
			part.inserts, part.removes = tbl.overlay()
		}
		v.parts = append(v.parts, part)
	}
	return v
}
