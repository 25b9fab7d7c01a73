// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/molecula/rdfsail/errors"
)

// StatementIterator is a lazy, closeable sequence of statements.
//
//	itr, err := conn.GetStatements(ctx, subj, Nil, Nil, false)
//	if err != nil {
//		return err
//	}
//	defer itr.Close()
//	for itr.Next() {
//		t := itr.Triple()
//	}
//	return itr.Err()
//
// Close may be called from any goroutine, any number of times. The iterator
// closes itself when its context is done or its execution time runs out.
type StatementIterator struct {
	mu   sync.Mutex // serializes Next with closing
	rows *rowIterator
	cur  Triple
	err  error

	closed    int32
	closeOnce sync.Once
	release   func()
	stops     []func() bool
}

func newStatementIterator(ctx context.Context, rows *rowIterator, maxTime time.Duration, release func()) *StatementIterator {
	itr := &StatementIterator{rows: rows, release: release}
	if maxTime > 0 {
		t := time.AfterFunc(maxTime, func() {
			itr.closeWith(errors.Newf(ErrQueryInterrupted, "maximum execution time of %s exceeded", maxTime))
		})
		itr.stops = append(itr.stops, t.Stop)
	}
	if ctx.Done() != nil {
		itr.stops = append(itr.stops, context.AfterFunc(ctx, func() {
			itr.closeWith(errors.Coded(ErrQueryInterrupted, ctx.Err(), "iteration interrupted"))
		}))
	}
	metricOpenIterations.Inc()
	return itr
}

// Next moves to the next statement. It returns false when the iteration is
// exhausted, failed, or closed.
func (itr *StatementIterator) Next() bool {
	itr.mu.Lock()
	defer itr.mu.Unlock()
	if atomic.LoadInt32(&itr.closed) == 1 {
		return false
	}
	t, ok := itr.rows.next()
	if !ok {
		itr.mu.Unlock()
		itr.Close()
		itr.mu.Lock()
		return false
	}
	itr.cur = t
	return true
}

// Triple returns the current statement.
func (itr *StatementIterator) Triple() Triple {
	itr.mu.Lock()
	defer itr.mu.Unlock()
	return itr.cur
}

// Err returns the error that ended the iteration early, if any.
func (itr *StatementIterator) Err() error {
	itr.mu.Lock()
	defer itr.mu.Unlock()
	return itr.err
}

// Close ends the iteration and releases its snapshot.
func (itr *StatementIterator) Close() error {
	itr.closeWith(nil)
	return nil
}

func (itr *StatementIterator) closeWith(err error) {
	itr.closeOnce.Do(func() {
		atomic.StoreInt32(&itr.closed, 1)
		for _, stop := range itr.stops {
			stop()
		}

		// Wait for a running Next to observe the flag.
		itr.mu.Lock()
		itr.err = err
		itr.rows = nil
		itr.mu.Unlock()

		if itr.release != nil {
			itr.release()
		}
		metricOpenIterations.Dec()
	})
}

// Collect drains itr and closes it.
func Collect(itr *StatementIterator) ([]Triple, error) {
	defer itr.Close()
	var a []Triple
	for itr.Next() {
		a = append(a, itr.Triple())
	}
	return a, itr.Err()
}
