// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"context"
	"time"

	"github.com/molecula/rdfsail/errors"
	"github.com/sethvargo/go-retry"
)

const (
	// DefaultUpdateRetries is how often Update retries a conflicting
	// transaction.
	DefaultUpdateRetries = 5

	// DefaultUpdateBackoff is the base of Update's Fibonacci backoff.
	DefaultUpdateBackoff = 10 * time.Millisecond
)

// Update runs fn in a transaction at level on a new connection and commits
// it. If the commit fails with TransactionConflict, the whole transaction,
// including fn, is retried with backoff. Any other error is returned as is.
//
// The store itself never retries; Update is for callers that want it.
func Update(ctx context.Context, s *Store, level IsolationLevel, fn func(c *Connection) error) error {
	b := retry.WithMaxRetries(DefaultUpdateRetries, retry.NewFibonacci(DefaultUpdateBackoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := update(ctx, s, level, fn)
		if errors.Is(err, ErrTransactionConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func update(ctx context.Context, s *Store, level IsolationLevel, fn func(c *Connection) error) error {
	c, err := s.Connection()
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Begin(level); err != nil {
		return err
	}
	if err := fn(c); err != nil {
		if rerr := c.Rollback(ctx); rerr != nil {
			s.Logger.Warnf("rolling back failed update: %v", rerr)
		}
		return err
	}
	return c.Commit(ctx)
}
