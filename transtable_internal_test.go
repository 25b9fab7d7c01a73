// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/molecula/rdfsail/errors"
	"github.com/molecula/rdfsail/logger"
	"github.com/molecula/rdfsail/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionTable_Seal(t *testing.T) {
	tbl := newTransactionTable(1, 5, 2)
	if b := tbl.insert(Triple{Subj: 1, Pred: 5, Obj: 1}); b != nil {
		t.Fatal("unexpected batch")
	}
	b := tbl.insert(Triple{Subj: 2, Pred: 5, Obj: 1})
	require.NotNil(t, b)
	assert.Equal(t, BatchStage, b.Kind)
	assert.Equal(t, ID(5), b.Bucket)
	assert.Len(t, b.Ops, 2)
	assert.False(t, tbl.hasStaged())
	tbl.staged(b, nil)
	assert.True(t, tbl.hasStaged())

	tbl.remove(Triple{Subj: 9, Pred: 5, Obj: 1})
	commit := tbl.commitBatch()
	assert.Equal(t, BatchCommit, commit.Kind)
	if got, want := commit.Ops, []Op{{Type: OpRemove, Triple: Triple{Subj: 9, Pred: 5, Obj: 1}}}; !assert.Equal(t, want, got) {
		return
	}
	assert.Equal(t, "triples_5", tbl.Name())
}

func TestTransactionTable_Cancel(t *testing.T) {
	tbl := newTransactionTable(1, 5, 0)
	tr := Triple{Subj: 1, Pred: 5, Obj: 1}
	tbl.insert(tr)
	tbl.remove(tr)

	inserts, removes := tbl.overlay()
	assert.False(t, contains(inserts, tr))
	assert.True(t, contains(removes, tr))
	assert.Equal(t, int64(0), tbl.insertedCount)
	assert.Equal(t, int64(0), tbl.removedCount)

	// The ops still go to storage in order.
	assert.False(t, tbl.isEmpty())
	assert.Len(t, tbl.commitBatch().Ops, 2)

	tbl.insert(tr)
	inserts, removes = tbl.overlay()
	assert.True(t, contains(inserts, tr))
	assert.False(t, contains(removes, tr))
}

// A batch that could not be queued leaves the table unable to commit.
func TestTransactionTable_StageFailed(t *testing.T) {
	tbl := newTransactionTable(1, 5, 1)
	b := tbl.insert(Triple{Subj: 1, Pred: 5, Obj: 1})
	require.NotNil(t, b)
	tbl.staged(b, context.Canceled)
	assert.False(t, tbl.hasStaged())
	assert.False(t, tbl.isEmpty())
	assert.Equal(t, context.Canceled, tbl.err)

	// The first error is kept.
	tbl.staged(tbl.insert(Triple{Subj: 2, Pred: 5, Obj: 1}), context.DeadlineExceeded)
	assert.Equal(t, context.Canceled, tbl.err)
}

func TestOverlayRouter_Views(t *testing.T) {
	ctx := context.Background()
	tables := NewTripleTableManager(1)
	w := NewBatchWriter(NewMemoryBackend(), func(ID) *rowSet { return nil })
	require.NoError(t, w.Open())
	defer w.Close()

	base := newSnapshot().with(map[ID]*rowSet{
		10: newRowSet().Set(Triple{Subj: 1, Pred: 10, Obj: 1}, struct{}{}),
	})
	tables.load(10, Triple{Subj: 1, Pred: 10, Obj: 1})

	r := newOverlayRouter(1, tables, w, 0, logger.NopLogger)
	require.NoError(t, r.Insert(ctx, Triple{Subj: 2, Pred: 20, Obj: 1}))
	require.NoError(t, r.Insert(ctx, Triple{Subj: 3, Pred: 30, Obj: 1}))
	require.NoError(t, r.Remove(ctx, Triple{Subj: 1, Pred: 10, Obj: 1}))

	assert.Equal(t, unionViewName, r.TableName(Nil))
	assert.Equal(t, "triples_10", r.TableName(10))
	assert.Equal(t, "triples_other", r.TableName(20))
	assert.Equal(t, emptyViewName, r.TableName(99))
	assert.True(t, r.IsPredColumnPresent(30))
	assert.False(t, r.IsPredColumnPresent(10))
	assert.Equal(t, []ID{10, 20, 30}, r.PredicateIDs())

	if v := r.CombinedView(base, 99); v == nil || !v.IsEmpty() || v.Name() != emptyViewName {
		t.Fatalf("unexpected view for unknown predicate: %+v", v)
	}
	if v := r.CombinedView(base, 10); !v.IsEmpty() {
		t.Fatal("removed row visible")
	}
	if got, want := r.CombinedView(base, 20).Count(Pattern{}), 1; got != want {
		t.Fatalf("pred 20 count=%d, want %d", got, want)
	}
	if got, want := r.CombinedView(base, Nil).Count(Pattern{}), 2; got != want {
		t.Fatalf("union count=%d, want %d", got, want)
	}

	// A view is not affected by writes made after it was built.
	v := r.CombinedView(base, 30)
	require.NoError(t, r.Remove(ctx, Triple{Subj: 3, Pred: 30, Obj: 1}))
	assert.Equal(t, 1, v.Count(Pattern{}))
	assert.Equal(t, 0, r.CombinedView(base, 30).Count(Pattern{}))

	// Rolling back clears the registry.
	require.NoError(t, r.RolledBack(ctx))
	assert.True(t, r.IsEmpty())
	assert.Empty(t, r.PredicateIDs())
	assert.Equal(t, 1, r.CombinedView(base, 10).Count(Pattern{}))
}

func TestStore_CommitStorageFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		backend := &faultyBackend{MemoryBackend: NewMemoryBackend(), failCommit: map[ID]bool{20: true}}
		log := logger.NewBufferLogger()
		s := mustOpenInternalStore(t, nil, backend, OptStoreLogger(log))

		c, err := s.Connection()
		require.NoError(t, err)
		defer c.Close()
		require.NoError(t, c.Begin(Snapshot))
		require.NoError(t, c.AddStatement(ctx, 1, 10, 1))
		require.NoError(t, c.AddStatement(ctx, 1, 20, 1))
		if err := c.Commit(ctx); !errors.Is(err, ErrStorageIO) {
			t.Fatalf("expected StorageIO, got %v", err)
		}
		if c.IsActive() {
			t.Fatal("transaction still active")
		}

		// The bucket that was applied is published, the failed one is not.
		snap := s.latest()
		assert.Equal(t, 1, setLen(snap.bucket(10)))
		assert.Equal(t, 0, setLen(snap.bucket(20)))
		assert.Equal(t, 0, s.PinnedTransactions())
		if !strings.Contains(log.String(), "partial commit, 1 buckets applied, 1 failed") {
			t.Fatalf("partial commit not logged:\n%s", log.String())
		}

		// The store keeps working.
		require.NoError(t, c.Begin(ReadCommitted))
		require.NoError(t, c.AddStatement(ctx, 2, 10, 1))
		require.NoError(t, c.Commit(ctx))
		assert.Equal(t, 2, s.Size())
	})

	t.Run("Stage", func(t *testing.T) {
		backend := &faultyBackend{MemoryBackend: NewMemoryBackend(), failStage: map[ID]bool{20: true}}
		cfg := storage.NewDefaultConfig()
		cfg.BatchSize = 1
		s := mustOpenInternalStore(t, cfg, backend)

		c, err := s.Connection()
		require.NoError(t, err)
		defer c.Close()
		require.NoError(t, c.Begin(ReadCommitted))
		require.NoError(t, c.AddStatement(ctx, 1, 10, 1))
		require.NoError(t, c.AddStatement(ctx, 1, 20, 1))
		require.NoError(t, c.AddStatement(ctx, 2, 20, 1))
		if err := c.Commit(ctx); !errors.Is(err, ErrStorageIO) {
			t.Fatalf("expected StorageIO, got %v", err)
		}
		assert.Equal(t, 1, s.Size())
		assert.Equal(t, 0, backend.StagedLen())
	})
}

func TestConnection_StageEnqueueFailed(t *testing.T) {
	// Fill the writer until a statement gives up waiting for room.
	fill := func(t *testing.T, c *Connection) {
		t.Helper()
		for i := 1; i <= 100; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			err := c.AddStatement(ctx, ID(i), 10, 1)
			cancel()
			if err == nil {
				continue
			}
			if errors.Cause(err) != context.DeadlineExceeded {
				t.Fatalf("expected deadline exceeded, got %v", err)
			}
			return
		}
		t.Fatal("writer never filled up")
	}

	// within fails the test if fn does not return in time.
	within := func(t *testing.T, name string, fn func() error) error {
		t.Helper()
		done := make(chan error, 1)
		go func() { done <- fn() }()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatalf("%s blocked", name)
			return nil
		}
	}

	newStore := func(t *testing.T) (*Store, *blockingBackend) {
		backend := &blockingBackend{MemoryBackend: NewMemoryBackend(), release: make(chan struct{})}
		cfg := storage.NewDefaultConfig()
		cfg.BatchSize = 1
		cfg.QueueCapacity = 1
		cfg.Workers = 1
		return mustOpenInternalStore(t, cfg, backend), backend
	}

	t.Run("Commit", func(t *testing.T) {
		s, backend := newStore(t)
		c, err := s.Connection()
		require.NoError(t, err)
		require.NoError(t, c.Begin(Snapshot))
		fill(t, c)
		close(backend.release)

		err = within(t, "commit", func() error { return c.Commit(context.Background()) })
		if !errors.Is(err, ErrStorageIO) {
			t.Fatalf("expected StorageIO, got %v", err)
		}
		assert.Equal(t, 0, s.Size())
		assert.Equal(t, 0, backend.StagedLen())

		// Other transactions still get through.
		require.NoError(t, c.Begin(Serializable))
		require.NoError(t, c.AddStatement(context.Background(), 1, 20, 1))
		require.NoError(t, within(t, "commit", func() error { return c.Commit(context.Background()) }))
		assert.Equal(t, 1, s.Size())

		require.NoError(t, within(t, "close", s.Close))
	})

	t.Run("Rollback", func(t *testing.T) {
		s, backend := newStore(t)
		c, err := s.Connection()
		require.NoError(t, err)
		require.NoError(t, c.Begin(ReadCommitted))
		fill(t, c)
		close(backend.release)

		require.NoError(t, within(t, "rollback", func() error { return c.Rollback(context.Background()) }))
		assert.False(t, c.IsActive())
		assert.Equal(t, 0, backend.StagedLen())
		assert.Equal(t, 0, s.Size())

		require.NoError(t, within(t, "close", s.Close))
	})
}

func mustOpenInternalStore(tb testing.TB, cfg *storage.Config, backend Backend, opts ...StoreOption) *Store {
	tb.Helper()
	opts = append([]StoreOption{OptStoreBackend(backend), OptStoreLogger(logger.NewLogfLogger(tb))}, opts...)
	if cfg != nil {
		opts = append(opts, OptStoreConfig(cfg))
	}
	s, err := NewStore("", opts...)
	require.NoError(tb, err)
	require.NoError(tb, s.Open())
	tb.Cleanup(func() { s.Close() })
	return s
}
