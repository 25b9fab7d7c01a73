// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package sailtest

import (
	"testing"

	"github.com/molecula/rdfsail"
	"github.com/stretchr/testify/require"
)

// TestBackend checks the staging contract of a backend. newBackend must
// return an unopened backend over dir; it is called again with the same dir
// to check what survives a reopen.
func TestBackend(t *testing.T, newBackend func(t *testing.T, dir string) rdfsail.Backend) {
	dir := t.TempDir()
	const bucket, other = rdfsail.ID(5), rdfsail.OtherPred

	t1 := rdfsail.Triple{Subj: 1, Pred: 5, Obj: 1}
	t2 := rdfsail.Triple{Subj: 1, Pred: 5, Obj: 2, Ctx: 9}
	t3 := rdfsail.Triple{Subj: 2, Pred: 5, Obj: 3, Inferred: true}
	t4 := rdfsail.Triple{Subj: 3, Pred: 5, Obj: 4}
	big := rdfsail.Triple{Subj: 1<<63 + 7, Pred: 1<<63 + 1, Obj: ^rdfsail.ID(0) - 1, Ctx: 1 << 62}

	b := newBackend(t, dir)
	require.NoError(t, b.Open())

	// Staged ops apply in order, followed by the commit's own ops.
	require.NoError(t, b.Stage(1, bucket, []rdfsail.Op{{Type: rdfsail.OpInsert, Triple: t1}, {Type: rdfsail.OpInsert, Triple: t2}}))
	require.NoError(t, b.Stage(1, bucket, []rdfsail.Op{{Type: rdfsail.OpRemove, Triple: t1}}))
	require.NoError(t, b.Commit(1, bucket, []rdfsail.Op{{Type: rdfsail.OpInsert, Triple: t3}}))
	require.NoError(t, b.Commit(2, other, []rdfsail.Op{{Type: rdfsail.OpInsert, Triple: big}}))

	// Discarded ops never reach committed rows.
	require.NoError(t, b.Stage(3, bucket, []rdfsail.Op{{Type: rdfsail.OpInsert, Triple: t4}}))
	require.NoError(t, b.Discard(3, bucket))
	require.NoError(t, b.Commit(3, bucket, nil))

	want := map[rdfsail.ID][]rdfsail.Triple{bucket: {t2, t3}, other: {big}}
	require.Equal(t, want, loadAll(t, b))

	// Staged ops of an unfinished transaction do not survive a reopen.
	require.NoError(t, b.Stage(4, bucket, []rdfsail.Op{{Type: rdfsail.OpRemove, Triple: t2}}))
	require.NoError(t, b.Close())

	b = newBackend(t, dir)
	require.NoError(t, b.Open())
	defer b.Close()
	require.NoError(t, b.Commit(4, bucket, nil))
	require.Equal(t, want, loadAll(t, b))
}

// loadAll returns the committed rows of b by bucket in storage order.
func loadAll(t *testing.T, b rdfsail.Backend) map[rdfsail.ID][]rdfsail.Triple {
	t.Helper()
	m := make(map[rdfsail.ID][]rdfsail.Triple)
	require.NoError(t, b.Load(func(bucket rdfsail.ID, tr rdfsail.Triple) error {
		m[bucket] = append(m[bucket], tr)
		return nil
	}))
	for _, a := range m {
		rdfsail.SortTriples(a)
	}
	return m
}
