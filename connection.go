// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/molecula/rdfsail/errors"
	"github.com/molecula/rdfsail/logger"
)

type txState int

const (
	stateInactive txState = iota
	stateActive
	stateCommitting
	stateRollingBack
)

func (s txState) String() string {
	switch s {
	case stateInactive:
		return "INACTIVE"
	case stateActive:
		return "ACTIVE"
	case stateCommitting:
		return "COMMITTING"
	case stateRollingBack:
		return "ROLLING_BACK"
	default:
		return fmt.Sprintf("txState(%d)", int(s))
	}
}

// Connection is a handle to a Store that runs at most one transaction at a
// time. A Connection is meant to be used from one goroutine; Close and
// closing its iterators are safe from any goroutine.
//
// Reads are allowed whether or not a transaction is active. Outside of a
// transaction they see the latest committed state. Writes require an
// active transaction.
type Connection struct {
	mu     sync.Mutex
	id     uuid.UUID
	store  *Store
	logger logger.Logger
	closed bool

	state  txState
	level  IsolationLevel
	txID   uint64
	begun  time.Time
	snap   *snapshot // pinned for Snapshot and Serializable
	router *OverlayRouter
	reads  []Pattern // recorded for Serializable

	maxExecutionTime time.Duration
}

func newConnection(s *Store) *Connection {
	id := uuid.New()
	return &Connection{
		id:     id,
		store:  s,
		logger: s.Logger.WithPrefix(fmt.Sprintf("[conn %s] ", id.String()[:8])),
	}
}

// ID returns the unique identifier of the connection.
func (c *Connection) ID() string { return c.id.String() }

// IsActive returns true if a transaction is running.
func (c *Connection) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != stateInactive
}

// IsolationLevel returns the level of the running transaction, or of the
// last one if none is running.
func (c *Connection) IsolationLevel() IsolationLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// SetMaxExecutionTime limits how long iterations opened afterwards may stay
// open. Zero means no limit.
func (c *Connection) SetMaxExecutionTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxExecutionTime = d
}

// Begin starts a transaction at level.
func (c *Connection) Begin(level IsolationLevel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New(ErrClosed, "connection closed")
	}
	if !c.store.IsIsolationSupported(level) {
		return errors.Newf(ErrUnsupportedIsolationLevel, "isolation level %s not supported", level)
	}
	if c.state != stateInactive {
		return errors.Newf(ErrIllegalState, "cannot begin: transaction is %s", c.state)
	}

	c.level = level
	c.txID = c.store.newTxID()
	c.begun = time.Now()
	c.router = newOverlayRouter(c.txID, c.store.tables, c.store.writer, c.store.config.BatchSize, c.logger)
	if level.pinsSnapshot() {
		c.snap = c.store.pin()
	}
	c.state = stateActive
	c.logger.Debugf("begin tx %d at %s", c.txID, level)
	return nil
}

// AddStatement adds subj pred obj to each of contexts, or to the default
// context if none are given.
func (c *Connection) AddStatement(ctx context.Context, subj, pred, obj ID, contexts ...ID) error {
	return c.add(ctx, subj, pred, obj, false, contexts)
}

// AddInferredStatement adds an inferred statement.
func (c *Connection) AddInferredStatement(ctx context.Context, subj, pred, obj ID, contexts ...ID) error {
	return c.add(ctx, subj, pred, obj, true, contexts)
}

func (c *Connection) add(ctx context.Context, subj, pred, obj ID, inferred bool, contexts []ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writable(); err != nil {
		return err
	}
	if subj == Nil || pred == Nil || obj == Nil {
		return errors.New(ErrInvalidArgument, "statement must have subject, predicate and object")
	} else if pred == OtherPred {
		return errors.New(ErrInvalidArgument, "reserved predicate")
	}

	if len(contexts) == 0 {
		contexts = []ID{Nil}
	}
	for _, cx := range contexts {
		t := Triple{Subj: subj, Pred: pred, Obj: obj, Ctx: cx, Inferred: inferred}
		if err := c.router.Insert(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// RemoveStatements removes the explicit statements matching the pattern.
// Nil matches anything; no contexts means all contexts.
func (c *Connection) RemoveStatements(ctx context.Context, subj, pred, obj ID, contexts ...ID) error {
	return c.remove(ctx, subj, pred, obj, false, contexts)
}

// RemoveInferredStatements removes the inferred statements matching the
// pattern.
func (c *Connection) RemoveInferredStatements(ctx context.Context, subj, pred, obj ID, contexts ...ID) error {
	return c.remove(ctx, subj, pred, obj, true, contexts)
}

// Clear removes every explicit statement in contexts, or in the whole store
// if none are given.
func (c *Connection) Clear(ctx context.Context, contexts ...ID) error {
	return c.remove(ctx, Nil, Nil, Nil, false, contexts)
}

func (c *Connection) remove(ctx context.Context, subj, pred, obj ID, inferred bool, contexts []ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writable(); err != nil {
		return err
	}

	// Resolve the pattern against what this transaction sees.
	p := Pattern{Subj: subj, Pred: pred, Obj: obj, Contexts: contexts, IncludeInferred: inferred}
	c.recordRead(p)
	var matches []Triple
	itr := c.view(pred).iterate(p)
	for t, ok := itr.next(); ok; t, ok = itr.next() {
		if t.Inferred == inferred {
			matches = append(matches, t)
		}
	}
	for _, t := range matches {
		if err := c.router.Remove(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// writable returns an error unless a transaction is active.
func (c *Connection) writable() error {
	if c.closed {
		return errors.New(ErrClosed, "connection closed")
	} else if c.state != stateActive {
		return errors.Newf(ErrIllegalState, "cannot modify: transaction is %s", c.state)
	}
	return nil
}

// GetStatements returns the statements matching the pattern. The iteration
// reads a fixed view: later writes, including this connection's own, do not
// change it. The caller must close the iterator.
func (c *Connection) GetStatements(ctx context.Context, subj, pred, obj ID, includeInferred bool, contexts ...ID) (*StatementIterator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New(ErrClosed, "connection closed")
	}

	p := Pattern{Subj: subj, Pred: pred, Obj: obj, Contexts: contexts, IncludeInferred: includeInferred}
	c.recordRead(p)
	atomic.AddInt64(&c.store.iterations, 1)
	release := func() { atomic.AddInt64(&c.store.iterations, -1) }
	return newStatementIterator(ctx, c.view(pred).iterate(p), c.maxExecutionTime, release), nil
}

// HasStatement returns true if a statement matches the pattern.
func (c *Connection) HasStatement(ctx context.Context, subj, pred, obj ID, includeInferred bool, contexts ...ID) (bool, error) {
	itr, err := c.GetStatements(ctx, subj, pred, obj, includeInferred, contexts...)
	if err != nil {
		return false, err
	}
	defer itr.Close()
	ok := itr.Next()
	return ok, itr.Err()
}

// Size returns the number of explicit statements in contexts, or in the
// whole store if none are given.
func (c *Connection) Size(ctx context.Context, contexts ...ID) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, errors.New(ErrClosed, "connection closed")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p := Pattern{Contexts: contexts}
	c.recordRead(p)
	return c.view(Nil).Count(p), nil
}

// view returns what this connection sees for pred. Caller must hold c.mu.
func (c *Connection) view(pred ID) *View {
	if c.state != stateActive {
		return buildView(c.store.tables, c.store.latest(), nil, pred)
	}
	base := c.snap
	if base == nil {
		base = c.store.latest()
	}
	return c.router.CombinedView(base, pred)
}

// recordRead remembers p for serializable validation. Caller must hold c.mu.
func (c *Connection) recordRead(p Pattern) {
	if c.state == stateActive && c.level == Serializable {
		c.reads = append(c.reads, p.clone())
	}
}

// Commit makes the transaction's writes visible to other connections. It is
// a no-op without an active transaction. On TransactionConflict the
// transaction is rolled back; callers at Snapshot or Serializable must check
// the error.
func (c *Connection) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New(ErrClosed, "connection closed")
	} else if c.state != stateActive {
		return nil
	}
	return c.commit(ctx)
}

func (c *Connection) commit(ctx context.Context) error {
	c.state = stateCommitting
	defer c.end()

	if c.router.IsEmpty() {
		metricCommits.WithLabelValues(c.level.String()).Inc()
		return nil
	}

	err := c.store.commit(ctx, c)
	if errors.Is(err, ErrTransactionConflict) {
		c.state = stateRollingBack
		if rerr := c.router.RolledBack(ctx); rerr != nil {
			c.logger.Warnf("rolling back conflicted tx %d: %v", c.txID, rerr)
		}
		metricRollbacks.Inc()
		c.logger.Debugf("tx %d aborted: %v", c.txID, err)
		return err
	} else if err != nil {
		c.logger.Errorf("commit tx %d: %v", c.txID, err)
		return err
	}

	metricCommits.WithLabelValues(c.level.String()).Inc()
	c.logger.Debugf("commit tx %d in %s", c.txID, time.Since(c.begun))
	return nil
}

// Rollback discards the transaction's writes. It is a no-op without an
// active transaction.
func (c *Connection) Rollback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New(ErrClosed, "connection closed")
	} else if c.state != stateActive {
		return nil
	}
	return c.rollback(ctx)
}

func (c *Connection) rollback(ctx context.Context) error {
	c.state = stateRollingBack
	defer c.end()
	metricRollbacks.Inc()
	c.logger.Debugf("rollback tx %d", c.txID)
	return c.router.RolledBack(ctx)
}

// end releases the transaction's resources. Caller must hold c.mu.
func (c *Connection) end() {
	if c.snap != nil {
		c.store.unpin(c.snap)
		c.snap = nil
	}
	c.router = nil
	c.reads = nil
	c.state = stateInactive
}

// Close rolls back a running transaction and releases the connection.
// Closing twice is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	var err error
	if c.state == stateActive {
		err = c.rollback(context.Background())
	}
	c.closed = true
	c.mu.Unlock()

	c.store.removeConnection(c)
	return err
}
