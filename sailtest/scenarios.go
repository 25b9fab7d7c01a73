// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package sailtest checks that a store honors the guarantees of each
// isolation level. The scenarios return errors rather than failing a test so
// that the same checks can run from the command line against a configured
// backend.
package sailtest

import (
	"context"
	"fmt"
	"time"

	"github.com/molecula/rdfsail"
	"github.com/molecula/rdfsail/errors"
	"golang.org/x/sync/errgroup"
)

// Scenario is one isolation check. Fn is run for every supported level at or
// above MinLevel.
type Scenario struct {
	Name     string
	MinLevel rdfsail.IsolationLevel
	Fn       func(ctx context.Context, s *rdfsail.Store, level rdfsail.IsolationLevel) error
}

// Scenarios lists every isolation check.
var Scenarios = []Scenario{
	{"ReadPending", rdfsail.ReadUncommitted, ReadPending},
	{"RollbackTriple", rdfsail.ReadUncommitted, RollbackTriple},
	{"ReadCommitted", rdfsail.ReadCommitted, ReadCommitted},
	{"SnapshotRead", rdfsail.SnapshotRead, SnapshotRead},
	{"RepeatableRead", rdfsail.Snapshot, RepeatableRead},
	{"Snapshot", rdfsail.Snapshot, Snapshot},
	{"Serializable", rdfsail.Serializable, Serializable},
}

// Latch is how long a scenario waits for another connection to reach a
// step before giving up.
var Latch = time.Second

// Statements of a scenario live in their own context so that a scenario
// can run against a store that already holds data.
const (
	scenarioContext rdfsail.ID = 1 << 48

	subjA   rdfsail.ID = 1<<48 + 1
	predB   rdfsail.ID = 1<<48 + 2
	objC    rdfsail.ID = 1<<48 + 3
	counter rdfsail.ID = 1<<48 + 4
	value   rdfsail.ID = 1<<48 + 5
	objBase rdfsail.ID = 1 << 49
)

// ReadPending checks that a transaction sees its own pending writes.
func ReadPending(ctx context.Context, s *rdfsail.Store, level rdfsail.IsolationLevel) error {
	c, err := begin(ctx, s, level)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.AddStatement(ctx, subjA, predB, objC, scenarioContext); err != nil {
		return err
	}
	if err := expectCount(ctx, c, subjA, predB, objC, 1, "pending insert"); err != nil {
		return err
	}
	if err := c.RemoveStatements(ctx, subjA, predB, objC, scenarioContext); err != nil {
		return err
	}
	if err := expectCount(ctx, c, subjA, predB, objC, 0, "pending remove"); err != nil {
		return err
	}
	return c.Commit(ctx)
}

// RollbackTriple checks that a rolled back transaction leaves no trace,
// both for inserts and for removes of committed statements.
func RollbackTriple(ctx context.Context, s *rdfsail.Store, level rdfsail.IsolationLevel) error {
	c, err := begin(ctx, s, level)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.AddStatement(ctx, subjA, predB, objC, scenarioContext); err != nil {
		return err
	} else if err := c.Rollback(ctx); err != nil {
		return err
	} else if err := expectCount(ctx, c, subjA, predB, objC, 0, "after rolled back insert"); err != nil {
		return err
	}

	if err := addCommitted(ctx, s, rdfsail.Triple{Subj: subjA, Pred: predB, Obj: objC, Ctx: scenarioContext}); err != nil {
		return err
	}
	if err := c.Begin(level); err != nil {
		return err
	} else if err := c.RemoveStatements(ctx, subjA, predB, objC, scenarioContext); err != nil {
		return err
	} else if err := c.Rollback(ctx); err != nil {
		return err
	}
	return expectCount(ctx, c, subjA, predB, objC, 1, "after rolled back remove")
}

// ReadCommitted checks that other connections never see pending writes.
func ReadCommitted(ctx context.Context, s *rdfsail.Store, level rdfsail.IsolationLevel) error {
	added, read := make(chan struct{}), make(chan struct{})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := begin(ctx, s, level)
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.AddStatement(ctx, subjA, predB, objC, scenarioContext); err != nil {
			return err
		}
		close(added)
		if err := await(ctx, read, "reader"); err != nil {
			return err
		}
		return c.Commit(ctx)
	})
	g.Go(func() error {
		if err := await(ctx, added, "writer"); err != nil {
			return err
		}
		c, err := begin(ctx, s, level)
		if err != nil {
			return err
		}
		defer c.Close()
		err = expectCount(ctx, c, subjA, predB, objC, 0, "uncommitted insert of another connection")
		close(read)
		if err != nil {
			return err
		}
		return c.Commit(ctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	c, err := begin(ctx, s, level)
	if err != nil {
		return err
	}
	defer c.Close()
	return expectCount(ctx, c, subjA, predB, objC, 1, "committed insert of another connection")
}

// SnapshotRead checks that an open iteration is unaffected by writes made
// while it runs, by its own connection or by others.
func SnapshotRead(ctx context.Context, s *rdfsail.Store, level rdfsail.IsolationLevel) error {
	const n = 100
	want := make([]rdfsail.Triple, n)
	for i := range want {
		want[i] = rdfsail.Triple{Subj: subjA, Pred: predB, Obj: objBase + rdfsail.ID(i), Ctx: scenarioContext}
	}
	if err := addCommitted(ctx, s, want...); err != nil {
		return err
	}

	c, err := begin(ctx, s, level)
	if err != nil {
		return err
	}
	defer c.Close()

	itr, err := c.GetStatements(ctx, subjA, rdfsail.Nil, rdfsail.Nil, false, scenarioContext)
	if err != nil {
		return err
	}
	defer itr.Close()

	seen := make(map[rdfsail.Triple]struct{})
	for i := 0; itr.Next(); i++ {
		t := itr.Triple()
		if _, ok := seen[t]; ok {
			return errors.Errorf("statement %v returned twice", t)
		}
		seen[t] = struct{}{}

		// Interleave writes that sort both before and after the cursor.
		if i%10 == 0 {
			if err := c.AddStatement(ctx, subjA, predB, objBase+n+rdfsail.ID(i), scenarioContext); err != nil {
				return err
			}
			if err := addCommitted(ctx, s, rdfsail.Triple{Subj: subjA, Pred: predB, Obj: objBase - 1 - rdfsail.ID(i), Ctx: scenarioContext}); err != nil {
				return err
			}
		}
	}
	if err := itr.Err(); err != nil {
		return err
	}
	if err := expectSet(seen, want); err != nil {
		return err
	}
	return c.Rollback(ctx)
}

// RepeatableRead checks that a statement read once stays readable for the
// rest of the transaction after another connection removes it.
func RepeatableRead(ctx context.Context, s *rdfsail.Store, level rdfsail.IsolationLevel) error {
	if err := addCommitted(ctx, s, rdfsail.Triple{Subj: subjA, Pred: predB, Obj: objC, Ctx: scenarioContext}); err != nil {
		return err
	}

	c, err := begin(ctx, s, level)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := expectCount(ctx, c, subjA, predB, objC, 1, "before concurrent remove"); err != nil {
		return err
	}

	if err := rdfsail.Update(ctx, s, rdfsail.ReadCommitted, func(o *rdfsail.Connection) error {
		return o.RemoveStatements(ctx, subjA, predB, objC, scenarioContext)
	}); err != nil {
		return err
	}

	if err := expectCount(ctx, c, subjA, predB, objC, 1, "after concurrent remove"); err != nil {
		return err
	}
	return c.Rollback(ctx)
}

// Snapshot checks that a transaction iterating its own 1000 inserts gets
// exactly those while other connections keep changing the same subject.
func Snapshot(ctx context.Context, s *rdfsail.Store, level rdfsail.IsolationLevel) error {
	const n = 1000

	c, err := begin(ctx, s, level)
	if err != nil {
		return err
	}
	defer c.Close()

	want := make([]rdfsail.Triple, n)
	for i := range want {
		want[i] = rdfsail.Triple{Subj: subjA, Pred: predB, Obj: objBase + rdfsail.ID(i), Ctx: scenarioContext}
		if err := c.AddStatement(ctx, subjA, predB, want[i].Obj, scenarioContext); err != nil {
			return err
		}
	}

	started, done := make(chan struct{}), make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		close(started)
		for i := rdfsail.ID(0); ; i++ {
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			t := rdfsail.Triple{Subj: subjA, Pred: predB, Obj: objBase + n + i%50, Ctx: scenarioContext}
			if err := addCommitted(gctx, s, t); err != nil {
				return err
			}
			if err := rdfsail.Update(gctx, s, rdfsail.ReadCommitted, func(o *rdfsail.Connection) error {
				return o.RemoveStatements(gctx, t.Subj, t.Pred, t.Obj, scenarioContext)
			}); err != nil {
				return err
			}
		}
	})
	g.Go(func() error {
		defer close(done)
		if err := await(gctx, started, "concurrent writer"); err != nil {
			return err
		}
		for round := 0; round < 3; round++ {
			itr, err := c.GetStatements(gctx, subjA, rdfsail.Nil, rdfsail.Nil, false, scenarioContext)
			if err != nil {
				return err
			}
			seen := make(map[rdfsail.Triple]struct{})
			for itr.Next() {
				t := itr.Triple()
				if _, ok := seen[t]; ok {
					itr.Close()
					return errors.Errorf("round %d: statement %v returned twice", round, t)
				}
				seen[t] = struct{}{}
			}
			itr.Close()
			if err := itr.Err(); err != nil {
				return err
			}
			if err := expectSet(seen, want); err != nil {
				return errors.Wrapf(err, "round %d", round)
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return c.Rollback(ctx)
}

// Serializable runs two transactions that both read a counter of 1 and add
// 3 and 5 to it. The result must be 9 if both commit, or 4 or 6 if one of
// them is aborted.
func Serializable(ctx context.Context, s *rdfsail.Store, level rdfsail.IsolationLevel) error {
	if err := addCommitted(ctx, s, rdfsail.Triple{Subj: counter, Pred: value, Obj: 1, Ctx: scenarioContext}); err != nil {
		return err
	}

	var read [2]chan struct{}
	for i := range read {
		read[i] = make(chan struct{})
	}
	var conflicts [2]bool
	incr := func(i int, delta rdfsail.ID) func() error {
		return func() error {
			c, err := begin(ctx, s, level)
			if err != nil {
				return err
			}
			defer c.Close()

			v, err := readCounter(ctx, c)
			if err != nil {
				return err
			}
			close(read[i])
			if err := await(ctx, read[1-i], "other incrementer"); err != nil {
				return err
			}

			if err := c.RemoveStatements(ctx, counter, value, v, scenarioContext); err != nil {
				return err
			} else if err := c.AddStatement(ctx, counter, value, v+delta, scenarioContext); err != nil {
				return err
			}
			if err := c.Commit(ctx); errors.Is(err, rdfsail.ErrTransactionConflict) {
				conflicts[i] = true
				return nil
			} else if err != nil {
				return err
			}
			return nil
		}
	}

	var g errgroup.Group
	g.Go(incr(0, 3))
	g.Go(incr(1, 5))
	if err := g.Wait(); err != nil {
		return err
	}

	c, err := s.Connection()
	if err != nil {
		return err
	}
	defer c.Close()
	v, err := readCounter(ctx, c)
	if err != nil {
		return err
	}
	switch {
	case !conflicts[0] && !conflicts[1] && v == 9:
	case conflicts[0] && !conflicts[1] && v == 6:
	case !conflicts[0] && conflicts[1] && v == 4:
	default:
		return errors.Errorf("counter is %d with conflicts %v", v, conflicts)
	}
	return nil
}

func begin(ctx context.Context, s *rdfsail.Store, level rdfsail.IsolationLevel) (*rdfsail.Connection, error) {
	c, err := s.Connection()
	if err != nil {
		return nil, err
	}
	if err := c.Begin(level); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func addCommitted(ctx context.Context, s *rdfsail.Store, triples ...rdfsail.Triple) error {
	return rdfsail.Update(ctx, s, rdfsail.ReadCommitted, func(c *rdfsail.Connection) error {
		for _, t := range triples {
			if err := c.AddStatement(ctx, t.Subj, t.Pred, t.Obj, t.Ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func readCounter(ctx context.Context, c *rdfsail.Connection) (rdfsail.ID, error) {
	itr, err := c.GetStatements(ctx, counter, value, rdfsail.Nil, false, scenarioContext)
	if err != nil {
		return 0, err
	}
	a, err := rdfsail.Collect(itr)
	if err != nil {
		return 0, err
	} else if len(a) != 1 {
		return 0, errors.Errorf("expected one counter value, got %v", a)
	}
	return a[0].Obj, nil
}

func expectCount(ctx context.Context, c *rdfsail.Connection, subj, pred, obj rdfsail.ID, want int, what string) error {
	itr, err := c.GetStatements(ctx, subj, pred, obj, false, scenarioContext)
	if err != nil {
		return err
	}
	a, err := rdfsail.Collect(itr)
	if err != nil {
		return err
	} else if len(a) != want {
		return errors.Errorf("%s: expected %d statements, got %d", what, want, len(a))
	}
	return nil
}

func expectSet(seen map[rdfsail.Triple]struct{}, want []rdfsail.Triple) error {
	if len(seen) != len(want) {
		return errors.Errorf("expected %d statements, got %d", len(want), len(seen))
	}
	for _, t := range want {
		if _, ok := seen[t]; !ok {
			return errors.Errorf("statement %v missing", t)
		}
	}
	return nil
}

func await(ctx context.Context, ch <-chan struct{}, who string) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(Latch):
		return fmt.Errorf("timed out waiting for %s", who)
	}
}
