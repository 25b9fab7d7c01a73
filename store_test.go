// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/molecula/rdfsail"
	"github.com/molecula/rdfsail/errors"
	"github.com/molecula/rdfsail/logger"
	"github.com/molecula/rdfsail/sailtest"
	"github.com/molecula/rdfsail/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsolation(t *testing.T) {
	sailtest.Run(t, func(t *testing.T) *rdfsail.Store {
		return MustOpenStore(t)
	})
}

func TestStore_OpenClose(t *testing.T) {
	s, err := rdfsail.NewStore("")
	require.NoError(t, err)
	require.NoError(t, s.Open())
	if err := s.Open(); !errors.Is(err, rdfsail.ErrIllegalState) {
		t.Fatalf("expected IllegalState on second open, got %v", err)
	}

	c, err := s.Connection()
	require.NoError(t, err)
	require.NoError(t, c.Begin(rdfsail.ReadCommitted))
	require.NoError(t, c.AddStatement(context.Background(), 1, 2, 3))

	// Closing the store rolls back open connections.
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	if c.IsActive() {
		t.Fatal("expected connection to be rolled back")
	}
	if _, err := s.Connection(); !errors.Is(err, rdfsail.ErrClosed) {
		t.Fatalf("expected Closed, got %v", err)
	}
	if err := c.Begin(rdfsail.ReadCommitted); !errors.Is(err, rdfsail.ErrClosed) {
		t.Fatalf("expected Closed on begin, got %v", err)
	}
}

func TestStore_InvalidBackend(t *testing.T) {
	cfg := storage.NewDefaultConfig()
	cfg.Backend = "unknown"
	s, err := rdfsail.NewStore("", rdfsail.OptStoreConfig(cfg))
	require.NoError(t, err)
	if err := s.Open(); !errors.Is(err, rdfsail.ErrBackendNotFound) {
		t.Fatalf("expected BackendNotFound, got %v", err)
	}
}

func TestConnection_Statements(t *testing.T) {
	ctx := context.Background()
	s := MustOpenStore(t)
	c := MustConnection(t, s)

	require.NoError(t, c.Begin(rdfsail.ReadCommitted))
	require.NoError(t, c.AddStatement(ctx, 10, 1, 20))
	require.NoError(t, c.AddStatement(ctx, 10, 1, 21, 5, 6))
	require.NoError(t, c.AddStatement(ctx, 11, 2, 20, 5))
	require.NoError(t, c.AddInferredStatement(ctx, 10, 2, 22))

	// Adding a statement twice keeps one row.
	require.NoError(t, c.AddStatement(ctx, 10, 1, 20))
	require.NoError(t, c.Commit(ctx))
	if got, want := s.Size(), 5; got != want {
		t.Fatalf("store size=%d, want %d", got, want)
	}

	t.Run("ByPredicate", func(t *testing.T) {
		got := MustCollect(t, c, 0, 1, 0, false)
		want := []rdfsail.Triple{
			{Subj: 10, Pred: 1, Obj: 20},
			{Subj: 10, Pred: 1, Obj: 21, Ctx: 5},
			{Subj: 10, Pred: 1, Obj: 21, Ctx: 6},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("ByContext", func(t *testing.T) {
		got := MustCollect(t, c, 0, 0, 0, false, 5)
		want := []rdfsail.Triple{
			{Subj: 10, Pred: 1, Obj: 21, Ctx: 5},
			{Subj: 11, Pred: 2, Obj: 20, Ctx: 5},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("DefaultContext", func(t *testing.T) {
		got := MustCollect(t, c, 0, 0, 0, true, rdfsail.Nil)
		want := []rdfsail.Triple{
			{Subj: 10, Pred: 1, Obj: 20},
			{Subj: 10, Pred: 2, Obj: 22, Inferred: true},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Inferred", func(t *testing.T) {
		if ok, err := c.HasStatement(ctx, 10, 2, 22, false); err != nil {
			t.Fatal(err)
		} else if ok {
			t.Fatal("inferred statement visible without includeInferred")
		}
		if ok, err := c.HasStatement(ctx, 10, 2, 22, true); err != nil {
			t.Fatal(err)
		} else if !ok {
			t.Fatal("expected inferred statement")
		}
	})

	t.Run("Size", func(t *testing.T) {
		n, err := c.Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, n)

		n, err = c.Size(ctx, 5, 6)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func TestConnection_Remove(t *testing.T) {
	ctx := context.Background()
	s := MustOpenStore(t)
	MustAdd(t, s, rdfsail.Triple{Subj: 1, Pred: 2, Obj: 3},
		rdfsail.Triple{Subj: 1, Pred: 2, Obj: 4, Ctx: 7},
		rdfsail.Triple{Subj: 1, Pred: 5, Obj: 4, Ctx: 7},
		rdfsail.Triple{Subj: 1, Pred: 2, Obj: 3, Inferred: true},
	)

	c := MustConnection(t, s)
	require.NoError(t, c.Begin(rdfsail.Serializable))
	require.NoError(t, c.RemoveStatements(ctx, 1, 2, rdfsail.Nil))

	// The explicit rows are gone from this transaction's view only.
	if got := MustCollect(t, c, 1, 2, 0, true); !cmp.Equal(got, []rdfsail.Triple{{Subj: 1, Pred: 2, Obj: 3, Inferred: true}}) {
		t.Fatalf("unexpected statements: %v", got)
	}
	other := MustConnection(t, s)
	if got := MustCollect(t, other, 1, 2, 0, false); len(got) != 2 {
		t.Fatalf("other connection sees %d statements, want 2", len(got))
	}

	require.NoError(t, c.Commit(ctx))
	if got, want := s.Size(), 2; got != want {
		t.Fatalf("size=%d, want %d", got, want)
	}

	require.NoError(t, c.Begin(rdfsail.ReadCommitted))
	require.NoError(t, c.RemoveInferredStatements(ctx, rdfsail.Nil, rdfsail.Nil, rdfsail.Nil))
	require.NoError(t, c.Commit(ctx))
	if got := MustCollect(t, other, 0, 0, 0, true); !cmp.Equal(got, []rdfsail.Triple{{Subj: 1, Pred: 5, Obj: 4, Ctx: 7}}) {
		t.Fatalf("unexpected statements: %v", got)
	}
}

func TestConnection_Clear(t *testing.T) {
	ctx := context.Background()
	s := MustOpenStore(t)
	MustAdd(t, s, rdfsail.Triple{Subj: 1, Pred: 2, Obj: 3},
		rdfsail.Triple{Subj: 1, Pred: 2, Obj: 3, Ctx: 7},
		rdfsail.Triple{Subj: 1, Pred: 4, Obj: 3, Ctx: 8},
		rdfsail.Triple{Subj: 1, Pred: 2, Obj: 3, Ctx: 7, Inferred: true},
	)

	c := MustConnection(t, s)
	require.NoError(t, c.Begin(rdfsail.Snapshot))
	require.NoError(t, c.Clear(ctx, 7))
	require.NoError(t, c.Commit(ctx))
	if got, want := s.Size(), 3; got != want {
		t.Fatalf("size=%d, want %d", got, want)
	}

	require.NoError(t, c.Begin(rdfsail.Snapshot))
	require.NoError(t, c.Clear(ctx))
	require.NoError(t, c.Commit(ctx))

	// Clear leaves inferred statements alone.
	if got := MustCollect(t, c, 0, 0, 0, true); !cmp.Equal(got, []rdfsail.Triple{{Subj: 1, Pred: 2, Obj: 3, Ctx: 7, Inferred: true}}) {
		t.Fatalf("unexpected statements: %v", got)
	}
}

func TestConnection_IllegalState(t *testing.T) {
	ctx := context.Background()
	s := MustOpenStore(t)
	c := MustConnection(t, s)

	if err := c.AddStatement(ctx, 1, 2, 3); !errors.Is(err, rdfsail.ErrIllegalState) {
		t.Fatalf("expected IllegalState outside transaction, got %v", err)
	}
	if err := c.RemoveStatements(ctx, 1, 2, 3); !errors.Is(err, rdfsail.ErrIllegalState) {
		t.Fatalf("expected IllegalState outside transaction, got %v", err)
	}

	// Commit and rollback without a transaction are no-ops.
	require.NoError(t, c.Commit(ctx))
	require.NoError(t, c.Rollback(ctx))

	require.NoError(t, c.Begin(rdfsail.ReadCommitted))
	if err := c.Begin(rdfsail.ReadCommitted); !errors.Is(err, rdfsail.ErrIllegalState) {
		t.Fatalf("expected IllegalState on nested begin, got %v", err)
	}
	require.NoError(t, c.Rollback(ctx))
	require.NoError(t, c.Rollback(ctx))
	if c.IsActive() {
		t.Fatal("expected inactive connection")
	}

	// Reads work without a transaction.
	if _, err := c.Size(ctx); err != nil {
		t.Fatal(err)
	}

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	if _, err := c.GetStatements(ctx, 0, 0, 0, false); !errors.Is(err, rdfsail.ErrClosed) {
		t.Fatalf("expected Closed, got %v", err)
	}
}

func TestConnection_InvalidArgument(t *testing.T) {
	ctx := context.Background()
	s := MustOpenStore(t)
	c := MustConnection(t, s)
	require.NoError(t, c.Begin(rdfsail.ReadCommitted))
	defer c.Rollback(ctx)

	for _, tt := range []struct{ subj, pred, obj rdfsail.ID }{
		{0, 2, 3},
		{1, 0, 3},
		{1, 2, 0},
		{1, rdfsail.OtherPred, 3},
	} {
		if err := c.AddStatement(ctx, tt.subj, tt.pred, tt.obj); !errors.Is(err, rdfsail.ErrInvalidArgument) {
			t.Fatalf("%v: expected InvalidArgument, got %v", tt, err)
		}
	}
}

func TestConnection_UnsupportedIsolationLevel(t *testing.T) {
	t.Run("Config", func(t *testing.T) {
		cfg := storage.NewDefaultConfig()
		cfg.MaxIsolationLevel = "READ_COMMITTED"
		s := MustOpenStore(t, rdfsail.OptStoreConfig(cfg))

		assert.True(t, s.IsIsolationSupported(rdfsail.ReadCommitted))
		assert.False(t, s.IsIsolationSupported(rdfsail.SnapshotRead))
		assert.Equal(t, rdfsail.ReadCommitted, s.DefaultIsolationLevel())

		c := MustConnection(t, s)
		if err := c.Begin(rdfsail.Serializable); !errors.Is(err, rdfsail.ErrUnsupportedIsolationLevel) {
			t.Fatalf("expected UnsupportedIsolationLevel, got %v", err)
		}
		if c.IsActive() {
			t.Fatal("expected no transaction")
		}
	})

	t.Run("Backend", func(t *testing.T) {
		s := MustOpenStore(t, rdfsail.OptStoreBackend(&cappedBackend{
			MemoryBackend: rdfsail.NewMemoryBackend(),
			max:           rdfsail.Snapshot,
		}))
		assert.True(t, s.IsIsolationSupported(rdfsail.Snapshot))
		assert.False(t, s.IsIsolationSupported(rdfsail.Serializable))
		assert.Equal(t, rdfsail.SnapshotRead, s.DefaultIsolationLevel())

		c := MustConnection(t, s)
		if err := c.Begin(rdfsail.Serializable); !errors.Is(err, rdfsail.ErrUnsupportedIsolationLevel) {
			t.Fatalf("expected UnsupportedIsolationLevel, got %v", err)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		s := MustOpenStore(t)
		assert.False(t, s.IsIsolationSupported(rdfsail.IsolationLevel(42)))
	})
}

func TestStore_OtherPredRouting(t *testing.T) {
	ctx := context.Background()
	cfg := storage.NewDefaultConfig()
	cfg.MaxPredicateTables = 1
	s := MustOpenStore(t, rdfsail.OptStoreConfig(cfg))

	MustAdd(t, s,
		rdfsail.Triple{Subj: 1, Pred: 10, Obj: 2},
		rdfsail.Triple{Subj: 1, Pred: 20, Obj: 2},
		rdfsail.Triple{Subj: 1, Pred: 30, Obj: 2},
		rdfsail.Triple{Subj: 2, Pred: 30, Obj: 2},
	)

	tables := s.TripleTables()
	assert.False(t, tables.IsPredColumnPresent(10))
	assert.True(t, tables.IsPredColumnPresent(20))
	assert.True(t, tables.IsPredColumnPresent(30))
	if got, want := len(tables.Tables()), 2; got != want {
		t.Fatalf("tables=%d, want %d", got, want)
	}
	if got, want := tables.Table(rdfsail.OtherPred).Size(), int64(3); got != want {
		t.Fatalf("shared table size=%d, want %d", got, want)
	}

	// Reads of a shared predicate only see that predicate.
	c := MustConnection(t, s)
	got := MustCollect(t, c, 0, 30, 0, false)
	want := []rdfsail.Triple{{Subj: 1, Pred: 30, Obj: 2}, {Subj: 2, Pred: 30, Obj: 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatal(diff)
	}

	// Removing through a shared predicate leaves the others.
	require.NoError(t, c.Begin(rdfsail.ReadCommitted))
	require.NoError(t, c.RemoveStatements(ctx, rdfsail.Nil, 20, rdfsail.Nil))
	require.NoError(t, c.Commit(ctx))
	if got, want := s.Size(), 3; got != want {
		t.Fatalf("size=%d, want %d", got, want)
	}
}

func TestStore_UnknownPredicate(t *testing.T) {
	s := MustOpenStore(t)
	MustAdd(t, s, rdfsail.Triple{Subj: 1, Pred: 2, Obj: 3})

	c := MustConnection(t, s)
	if got := MustCollect(t, c, 0, 99, 0, true); len(got) != 0 {
		t.Fatalf("unexpected statements: %v", got)
	}
	if _, ok := s.TripleTables().Lookup(99); ok {
		t.Fatal("reading a predicate must not route it")
	}
}

func TestConnection_LargeTransaction(t *testing.T) {
	ctx := context.Background()
	cfg := storage.NewDefaultConfig()
	cfg.BatchSize = 4
	cfg.Workers = 2
	backend := rdfsail.NewMemoryBackend()
	s := MustOpenStore(t, rdfsail.OptStoreConfig(cfg), rdfsail.OptStoreBackend(backend))

	c := MustConnection(t, s)
	require.NoError(t, c.Begin(rdfsail.Snapshot))
	for i := rdfsail.ID(1); i <= 100; i++ {
		require.NoError(t, c.AddStatement(ctx, i, 1+i%3, 7))
	}
	require.NoError(t, c.RemoveStatements(ctx, 1, rdfsail.Nil, rdfsail.Nil))
	require.NoError(t, c.Commit(ctx))
	if got, want := s.Size(), 99; got != want {
		t.Fatalf("size=%d, want %d", got, want)
	}
	if n := backend.StagedLen(); n != 0 {
		t.Fatalf("staged ops left after commit: %d", n)
	}

	require.NoError(t, c.Begin(rdfsail.Snapshot))
	for i := rdfsail.ID(200); i < 300; i++ {
		require.NoError(t, c.AddStatement(ctx, i, 1, 7))
	}
	require.NoError(t, c.Rollback(ctx))
	if got, want := s.Size(), 99; got != want {
		t.Fatalf("size=%d, want %d", got, want)
	}
	if n := backend.StagedLen(); n != 0 {
		t.Fatalf("staged ops left after rollback: %d", n)
	}
}

func TestStore_EmptyCommit(t *testing.T) {
	ctx := context.Background()
	s := MustOpenStore(t)
	c := MustConnection(t, s)

	version := s.Version()
	require.NoError(t, c.Begin(rdfsail.Serializable))
	if got, want := s.PinnedTransactions(), 1; got != want {
		t.Fatalf("pinned=%d, want %d", got, want)
	}
	if _, err := c.Size(ctx); err != nil {
		t.Fatal(err)
	}
	require.NoError(t, c.Commit(ctx))
	if got := s.PinnedTransactions(); got != 0 {
		t.Fatalf("pinned=%d after commit", got)
	}
	if s.Version() != version {
		t.Fatal("empty commit published a snapshot")
	}
}

// cappedBackend is a memory backend that limits the isolation level.
type cappedBackend struct {
	*rdfsail.MemoryBackend
	max rdfsail.IsolationLevel
}

func (b *cappedBackend) MaxIsolationLevel() rdfsail.IsolationLevel { return b.max }

// MustOpenStore returns an open in-memory store that is closed when the test
// ends.
func MustOpenStore(tb testing.TB, opts ...rdfsail.StoreOption) *rdfsail.Store {
	tb.Helper()
	opts = append([]rdfsail.StoreOption{rdfsail.OptStoreLogger(logger.NewLogfLogger(tb))}, opts...)
	s, err := rdfsail.NewStore("", opts...)
	if err != nil {
		tb.Fatal(err)
	} else if err := s.Open(); err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() {
		if err := s.Close(); err != nil {
			tb.Error(err)
		}
	})
	return s
}

// MustConnection returns a connection that is closed when the test ends.
func MustConnection(tb testing.TB, s *rdfsail.Store) *rdfsail.Connection {
	tb.Helper()
	c, err := s.Connection()
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() { c.Close() })
	return c
}

// MustAdd commits triples in one transaction.
func MustAdd(tb testing.TB, s *rdfsail.Store, triples ...rdfsail.Triple) {
	tb.Helper()
	if err := rdfsail.Update(context.Background(), s, rdfsail.ReadCommitted, func(c *rdfsail.Connection) error {
		for _, t := range triples {
			var err error
			if t.Inferred {
				err = c.AddInferredStatement(context.Background(), t.Subj, t.Pred, t.Obj, t.Ctx)
			} else {
				err = c.AddStatement(context.Background(), t.Subj, t.Pred, t.Obj, t.Ctx)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		tb.Fatal(err)
	}
}

// MustCollect returns the statements matching the pattern.
func MustCollect(tb testing.TB, c *rdfsail.Connection, subj, pred, obj rdfsail.ID, includeInferred bool, contexts ...rdfsail.ID) []rdfsail.Triple {
	tb.Helper()
	itr, err := c.GetStatements(context.Background(), subj, pred, obj, includeInferred, contexts...)
	if err != nil {
		tb.Fatal(err)
	}
	a, err := rdfsail.Collect(itr)
	if err != nil {
		tb.Fatal(err)
	}
	return a
}
