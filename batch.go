// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"context"
	"fmt"
)

// DefaultBatchSize is the number of buffered ops that seals a Stage batch.
const DefaultBatchSize = 8 * 1024

// BatchKind determines how the batch writer applies a batch.
type BatchKind uint8

const (
	// BatchStage writes ops to the staging area of a transaction.
	BatchStage BatchKind = iota + 1

	// BatchCommit promotes staged ops plus the batch's own ops into
	// committed storage.
	BatchCommit

	// BatchDiscard drops the staged ops of a transaction.
	BatchDiscard
)

func (k BatchKind) String() string {
	switch k {
	case BatchStage:
		return "stage"
	case BatchCommit:
		return "commit"
	case BatchDiscard:
		return "discard"
	default:
		return fmt.Sprintf("BatchKind(%d)", uint8(k))
	}
}

// Batch is an ordered group of ops for one bucket of one transaction.
// A batch must not be modified after it is enqueued.
type Batch struct {
	Kind   BatchKind
	TxID   uint64
	Bucket ID
	Ops    []Op

	done chan batchResult
}

type batchResult struct {
	rows *rowSet
	err  error
}

// NewBatch returns a batch with a completion ticket.
func NewBatch(kind BatchKind, txID uint64, bucket ID, ops []Op) *Batch {
	return &Batch{
		Kind:   kind,
		TxID:   txID,
		Bucket: bucket,
		Ops:    ops,
		done:   make(chan batchResult, 1),
	}
}

// finish reports the outcome of the batch. It is called once, by a worker.
func (b *Batch) finish(rows *rowSet, err error) {
	b.done <- batchResult{rows: rows, err: err}
}

// Wait blocks until the batch is applied and returns the apply error.
func (b *Batch) Wait(ctx context.Context) error {
	_, err := b.wait(ctx)
	return err
}

// wait returns the committed rows of the bucket for Commit batches.
func (b *Batch) wait(ctx context.Context) (*rowSet, error) {
	select {
	case res := <-b.done:
		// Leave the result for later waiters.
		b.done <- res
		return res.rows, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
