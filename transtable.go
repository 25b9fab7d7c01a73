// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

// TransactionTable buffers the pending writes of one transaction to one
// bucket. It is owned by a single connection and never shared.
//
// The pending sets give the transaction read-your-writes. The op buffer
// keeps the writes in order; when it fills up it is sealed into a Stage
// batch so that a large transaction does not hold all of its ops in memory
// until commit.
type TransactionTable struct {
	txID   uint64
	bucket ID

	inserts *rowSet
	removes *rowSet

	insertedCount int64
	removedCount  int64

	buf       []Op
	batchSize int

	// stages are the Stage batches handed to the writer so far.
	stages []*Batch

	// err is set when a sealed batch could not be queued. Its ops are
	// lost, so the table can no longer commit.
	err error
}

func newTransactionTable(txID uint64, bucket ID, batchSize int) *TransactionTable {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &TransactionTable{
		txID:      txID,
		bucket:    bucket,
		inserts:   newRowSet(),
		removes:   newRowSet(),
		batchSize: batchSize,
	}
}

// Bucket returns the bucket the table buffers writes for.
func (t *TransactionTable) Bucket() ID { return t.bucket }

// Name returns the name of the committed table this overlays.
func (t *TransactionTable) Name() string { return tableName(t.bucket) }

// insert adds tr to the pending inserts and returns a sealed batch if the
// buffer filled up.
func (t *TransactionTable) insert(tr Triple) *Batch {
	t.removes = t.removes.Delete(tr)
	t.inserts = t.inserts.Set(tr, struct{}{})
	t.insertedCount++
	return t.append(Op{Type: OpInsert, Triple: tr})
}

// remove hides tr from the transaction's view. Removing an own pending
// insert cancels it without counting as a removed committed row.
func (t *TransactionTable) remove(tr Triple) *Batch {
	if _, ok := t.inserts.Get(tr); ok {
		t.inserts = t.inserts.Delete(tr)
		t.insertedCount--
	} else {
		t.removedCount++
	}
	t.removes = t.removes.Set(tr, struct{}{})
	return t.append(Op{Type: OpRemove, Triple: tr})
}

func (t *TransactionTable) append(op Op) *Batch {
	t.buf = append(t.buf, op)
	if len(t.buf) < t.batchSize {
		return nil
	}
	b := NewBatch(BatchStage, t.txID, t.bucket, t.buf)
	t.buf = make([]Op, 0, t.batchSize)
	return b
}

// staged records the outcome of queueing a sealed batch. Only queued
// batches are waited on, since nothing else ever finishes.
func (t *TransactionTable) staged(b *Batch, err error) {
	if err != nil {
		if t.err == nil {
			t.err = err
		}
		return
	}
	t.stages = append(t.stages, b)
}

// commitBatch seals the remaining buffer into the Commit batch.
func (t *TransactionTable) commitBatch() *Batch {
	ops := t.buf
	t.buf = nil
	return NewBatch(BatchCommit, t.txID, t.bucket, ops)
}

// hasStaged returns true if any Stage batch was handed to the writer.
func (t *TransactionTable) hasStaged() bool { return len(t.stages) > 0 }

// isEmpty returns true if the transaction wrote nothing to the bucket.
func (t *TransactionTable) isEmpty() bool {
	return len(t.buf) == 0 && len(t.stages) == 0 && t.err == nil
}

// overlay returns the pending sets. They are immutable, so callers may keep
// them while the transaction continues to write.
func (t *TransactionTable) overlay() (inserts, removes *rowSet) {
	return t.inserts, t.removes
}

// writeSet calls fn for every triple the transaction inserted or removed.
func (t *TransactionTable) writeSet(fn func(Triple)) {
	for _, set := range []*rowSet{t.inserts, t.removes} {
		itr := set.Iterator()
		for !itr.Done() {
			tr, _, _ := itr.Next()
			fn(tr)
		}
	}
}
