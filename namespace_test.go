// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail_test

import (
	"testing"

	"github.com/molecula/rdfsail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespaceMap(t *testing.T) {
	m := rdfsail.NewNamespaceMap()
	assert.False(t, m.Dirty())

	require.NoError(t, m.Set("rdf", "http://www.w3.org/1999/02/22-rdf-syntax-ns#"))
	require.NoError(t, m.Set("ex", "http://example.org/"))
	require.NoError(t, m.Set("owl", "http://www.w3.org/2002/07/owl#"))
	assert.True(t, m.Dirty())

	entries, ok := m.Snapshot()
	require.True(t, ok)
	assert.Len(t, entries, 3)
	assert.False(t, m.Dirty())
	if _, ok := m.Snapshot(); ok {
		t.Fatal("snapshot of a clean map")
	}

	// Setting the same binding again changes nothing.
	require.NoError(t, m.Set("ex", "http://example.org/"))
	assert.False(t, m.Dirty())

	// Rebinding keeps the position.
	require.NoError(t, m.Set("rdf", "urn:rdf"))
	require.NoError(t, m.Remove("ex"))
	require.NoError(t, m.Remove("missing"))
	assert.Equal(t, []rdfsail.Namespace{
		{Prefix: "rdf", Name: "urn:rdf"},
		{Prefix: "owl", Name: "http://www.w3.org/2002/07/owl#"},
	}, namespaces(m))

	name, ok := m.Get("owl")
	assert.True(t, ok)
	assert.Equal(t, "http://www.w3.org/2002/07/owl#", name)
	_, ok = m.Get("ex")
	assert.False(t, ok)

	// Iteration stops when fn returns false.
	var n int
	m.Iterate(func(rdfsail.Namespace) bool { n++; return false })
	assert.Equal(t, 1, n)

	require.NoError(t, m.Sync())
	require.NoError(t, m.Clear())
	assert.True(t, m.Dirty())
	assert.Empty(t, namespaces(m))

	m.MarkDirty()
	require.NoError(t, m.Close())
	assert.False(t, m.Dirty())
}

func TestStore_Namespaces(t *testing.T) {
	s := MustOpenStore(t)
	ns := s.Namespaces()
	require.NotNil(t, ns)
	require.NoError(t, ns.Set("ex", "http://example.org/"))
	name, ok := ns.Get("ex")
	assert.True(t, ok)
	assert.Equal(t, "http://example.org/", name)
}

func namespaces(ns rdfsail.NamespaceStore) []rdfsail.Namespace {
	var a []rdfsail.Namespace
	ns.Iterate(func(n rdfsail.Namespace) bool {
		a = append(a, n)
		return true
	})
	return a
}
