// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/molecula/rdfsail/errors"
	"github.com/stretchr/testify/require"
)

func TestBatchWriter_Backpressure(t *testing.T) {
	backend := &blockingBackend{MemoryBackend: NewMemoryBackend(), release: make(chan struct{})}
	w := NewBatchWriter(backend, func(ID) *rowSet { return nil },
		OptBatchWriterQueueCapacity(2),
		OptBatchWriterWorkers(1),
	)
	require.NoError(t, w.Open())

	const n = 100
	var enqueued int64
	done := make(chan error, 1)
	batches := make([]*Batch, n)
	go func() {
		for i := range batches {
			batches[i] = NewBatch(BatchStage, 1, 7, []Op{{Type: OpInsert, Triple: Triple{Subj: ID(i + 1), Pred: 7, Obj: 1}}})
			if err := w.Enqueue(context.Background(), batches[i]); err != nil {
				done <- err
				return
			}
			atomic.AddInt64(&enqueued, 1)
		}
		done <- nil
	}()

	// With the worker stuck the producer blocks once every buffer is full:
	// one batch in the worker, the hand-off buffer, one in the dispatcher,
	// and the queue itself.
	limit := int64(1 + workerQueueSize + 1 + 2)
	require.Eventually(t, func() bool { return atomic.LoadInt64(&enqueued) == limit }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt64(&enqueued); got != limit {
		t.Fatalf("enqueued=%d while blocked, want %d", got, limit)
	}

	// A producer with a deadline gives up instead of dropping the batch.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := w.Enqueue(ctx, NewBatch(BatchDiscard, 2, 7, nil)); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	close(backend.release)
	require.NoError(t, <-done)
	require.NoError(t, w.Close())

	for i, b := range batches {
		if err := b.Wait(context.Background()); err != nil {
			t.Fatalf("batch %d: %v", i, err)
		}
	}
	if got, want := backend.StagedLen(), n; got != want {
		t.Fatalf("staged=%d, want %d", got, want)
	}
}

func TestBatchWriter_CloseDrains(t *testing.T) {
	backend := NewMemoryBackend()
	w := NewBatchWriter(backend, func(ID) *rowSet { return nil }, OptBatchWriterWorkers(3))
	require.NoError(t, w.Open())

	var batches []*Batch
	for i := 0; i < 50; i++ {
		b := NewBatch(BatchStage, 1, ID(i%5+1), []Op{{Type: OpInsert, Triple: Triple{Subj: ID(i + 1), Pred: ID(i%5 + 1), Obj: 1}}})
		require.NoError(t, w.Enqueue(context.Background(), b))
		batches = append(batches, b)
	}
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	// Every accepted batch was applied before Close returned.
	for _, b := range batches {
		select {
		case <-b.done:
		default:
			t.Fatal("batch not applied")
		}
	}
	if got, want := backend.StagedLen(), 50; got != want {
		t.Fatalf("staged=%d, want %d", got, want)
	}

	if err := w.Enqueue(context.Background(), NewBatch(BatchStage, 1, 1, nil)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected Closed, got %v", err)
	}
}

func TestBatchWriter_NotOpen(t *testing.T) {
	w := NewBatchWriter(NewMemoryBackend(), func(ID) *rowSet { return nil })
	if err := w.Enqueue(context.Background(), NewBatch(BatchStage, 1, 1, nil)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected Closed, got %v", err)
	}
	require.NoError(t, w.Open())
	if err := w.Open(); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("expected IllegalState, got %v", err)
	}
	require.NoError(t, w.Close())
}

func TestBatchWriter_BucketOrder(t *testing.T) {
	backend := &recordingBackend{MemoryBackend: NewMemoryBackend(), seen: make(map[ID][]ID)}
	w := NewBatchWriter(backend, func(ID) *rowSet { return nil }, OptBatchWriterWorkers(4))
	require.NoError(t, w.Open())

	const buckets, perBucket = 8, 200
	for i := 0; i < perBucket; i++ {
		for b := ID(1); b <= buckets; b++ {
			op := Op{Type: OpInsert, Triple: Triple{Subj: ID(i + 1), Pred: b, Obj: 1}}
			require.NoError(t, w.Enqueue(context.Background(), NewBatch(BatchStage, 1, b, []Op{op})))
		}
	}
	require.NoError(t, w.Close())

	for b := ID(1); b <= buckets; b++ {
		seen := backend.seen[b]
		if len(seen) != perBucket {
			t.Fatalf("bucket %d: %d batches, want %d", b, len(seen), perBucket)
		}
		for i, subj := range seen {
			if subj != ID(i+1) {
				t.Fatalf("bucket %d: batch %d applied out of order: %d", b, i, subj)
			}
		}
	}
}

func TestBatchWriter_Commit(t *testing.T) {
	base := newRowSet().Set(Triple{Subj: 1, Pred: 2, Obj: 3}, struct{}{})
	backend := NewMemoryBackend()
	w := NewBatchWriter(backend, func(ID) *rowSet { return base }, OptBatchWriterWorkers(1))
	require.NoError(t, w.Open())
	defer w.Close()

	ctx := context.Background()
	stage := NewBatch(BatchStage, 9, 2, []Op{
		{Type: OpInsert, Triple: Triple{Subj: 4, Pred: 2, Obj: 3}},
		{Type: OpRemove, Triple: Triple{Subj: 1, Pred: 2, Obj: 3}},
	})
	commit := NewBatch(BatchCommit, 9, 2, []Op{
		{Type: OpInsert, Triple: Triple{Subj: 5, Pred: 2, Obj: 3}},
	})
	require.NoError(t, w.Enqueue(ctx, stage))
	require.NoError(t, w.Enqueue(ctx, commit))

	rows, err := commit.wait(ctx)
	require.NoError(t, err)
	if got, want := setLen(rows), 2; got != want {
		t.Fatalf("rows=%d, want %d", got, want)
	}
	for _, tr := range []Triple{{Subj: 4, Pred: 2, Obj: 3}, {Subj: 5, Pred: 2, Obj: 3}} {
		if !contains(rows, tr) {
			t.Fatalf("missing %s", tr)
		}
	}
	if n := backend.StagedLen(); n != 0 {
		t.Fatalf("staged=%d after commit", n)
	}
}

func TestBatchWriter_StorageError(t *testing.T) {
	backend := &faultyBackend{MemoryBackend: NewMemoryBackend(), failCommit: map[ID]bool{3: true}}
	w := NewBatchWriter(backend, func(ID) *rowSet { return nil })
	require.NoError(t, w.Open())
	defer w.Close()

	ctx := context.Background()
	ok := NewBatch(BatchCommit, 1, 2, []Op{{Type: OpInsert, Triple: Triple{Subj: 1, Pred: 2, Obj: 3}}})
	bad := NewBatch(BatchCommit, 1, 3, []Op{{Type: OpInsert, Triple: Triple{Subj: 1, Pred: 3, Obj: 3}}})
	require.NoError(t, w.Enqueue(ctx, ok))
	require.NoError(t, w.Enqueue(ctx, bad))

	require.NoError(t, ok.Wait(ctx))
	if err := bad.Wait(ctx); !errors.Is(err, ErrStorageIO) {
		t.Fatalf("expected StorageIO, got %v", err)
	}

	// The result stays available to later waiters.
	if err := bad.Wait(ctx); !errors.Is(err, ErrStorageIO) {
		t.Fatalf("expected StorageIO on second wait, got %v", err)
	}
}

// blockingBackend blocks every Stage until release is closed.
type blockingBackend struct {
	*MemoryBackend
	release chan struct{}
}

func (b *blockingBackend) Stage(txID uint64, bucket ID, ops []Op) error {
	<-b.release
	return b.MemoryBackend.Stage(txID, bucket, ops)
}

// recordingBackend records the subject of the first op of each staged batch.
type recordingBackend struct {
	*MemoryBackend
	mu   sync.Mutex
	seen map[ID][]ID
}

func (b *recordingBackend) Stage(txID uint64, bucket ID, ops []Op) error {
	b.mu.Lock()
	b.seen[bucket] = append(b.seen[bucket], ops[0].Triple.Subj)
	b.mu.Unlock()
	return b.MemoryBackend.Stage(txID, bucket, ops)
}

// faultyBackend fails writes to chosen buckets.
type faultyBackend struct {
	*MemoryBackend
	failStage  map[ID]bool
	failCommit map[ID]bool
}

func (b *faultyBackend) Stage(txID uint64, bucket ID, ops []Op) error {
	if b.failStage[bucket] {
		return errors.Errorf("disk full")
	}
	return b.MemoryBackend.Stage(txID, bucket, ops)
}

func (b *faultyBackend) Commit(txID uint64, bucket ID, ops []Op) error {
	if b.failCommit[bucket] {
		return errors.Errorf("disk full")
	}
	return b.MemoryBackend.Commit(txID, bucket, ops)
}
