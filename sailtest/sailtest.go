// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package sailtest

import (
	"context"
	"testing"

	"github.com/molecula/rdfsail"
	"github.com/molecula/rdfsail/errors"
)

// Result is the outcome of one scenario at one level.
type Result struct {
	Scenario string
	Level    rdfsail.IsolationLevel
	Err      error
}

// Reset removes every statement the scenarios write.
func Reset(ctx context.Context, s *rdfsail.Store) error {
	return rdfsail.Update(ctx, s, rdfsail.ReadCommitted, func(c *rdfsail.Connection) error {
		if err := c.Clear(ctx, scenarioContext); err != nil {
			return err
		}
		return c.RemoveInferredStatements(ctx, rdfsail.Nil, rdfsail.Nil, rdfsail.Nil, scenarioContext)
	})
}

// RunScenario resets the scenario statements and runs sc at level.
func RunScenario(ctx context.Context, s *rdfsail.Store, sc Scenario, level rdfsail.IsolationLevel) error {
	if err := Reset(ctx, s); err != nil {
		return errors.Wrap(err, "resetting")
	}
	if err := sc.Fn(ctx, s, level); err != nil {
		return err
	}
	return Reset(ctx, s)
}

// Check runs every scenario at every level the store supports and calls fn
// with each result. Levels below a scenario's minimum are skipped.
func Check(ctx context.Context, s *rdfsail.Store, fn func(Result)) {
	for _, sc := range Scenarios {
		for _, level := range rdfsail.IsolationLevels {
			if level < sc.MinLevel || !s.IsIsolationSupported(level) {
				continue
			}
			fn(Result{Scenario: sc.Name, Level: level, Err: RunScenario(ctx, s, sc, level)})
		}
	}
}

// Run runs every scenario as a subtest against a fresh store per level.
// newStore must return an open store; Run closes it.
func Run(t *testing.T, newStore func(t *testing.T) *rdfsail.Store) {
	t.Helper()
	for _, sc := range Scenarios {
		sc := sc
		t.Run(sc.Name, func(t *testing.T) {
			for _, level := range rdfsail.IsolationLevels {
				if level < sc.MinLevel {
					continue
				}
				level := level
				t.Run(level.String(), func(t *testing.T) {
					s := newStore(t)
					defer func() {
						if err := s.Close(); err != nil {
							t.Fatalf("closing store: %v", err)
						}
					}()
					if !s.IsIsolationSupported(level) {
						t.Skipf("%s not supported", level)
					}
					if err := sc.Fn(context.Background(), s, level); err != nil {
						t.Fatal(err)
					}
				})
			}
		})
	}
}
