// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"sync"
)

// Namespace maps a prefix to a namespace name.
type Namespace struct {
	Prefix string
	Name   string
}

// NamespaceStore is a small persisted prefix map kept next to the triples.
// It requires one writer at a time and is safe to use between transactions.
type NamespaceStore interface {
	// Get returns the name bound to prefix.
	Get(prefix string) (name string, ok bool)

	// Set binds prefix to name. Rebinding a prefix keeps its position.
	Set(prefix, name string) error

	// Remove unbinds prefix.
	Remove(prefix string) error

	// Iterate calls fn for each binding in insertion order until fn
	// returns false.
	Iterate(fn func(ns Namespace) bool)

	// Clear removes every binding.
	Clear() error

	// Sync writes unsaved changes to storage.
	Sync() error

	// Close syncs and releases the store.
	Close() error
}

// NamespaceMap is an insertion-ordered prefix map with a dirty flag. It is
// the in-memory NamespaceStore and the cache of persistent ones.
type NamespaceMap struct {
	mu      sync.RWMutex
	entries []Namespace
	index   map[string]int
	dirty   bool
}

// NewNamespaceMap returns an empty map.
func NewNamespaceMap() *NamespaceMap {
	return &NamespaceMap{index: make(map[string]int)}
}

func (m *NamespaceMap) Get(prefix string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[prefix]
	if !ok {
		return "", false
	}
	return m.entries[i].Name, true
}

func (m *NamespaceMap) Set(prefix, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.index[prefix]; ok {
		if m.entries[i].Name != name {
			m.entries[i].Name = name
			m.dirty = true
		}
		return nil
	}
	m.index[prefix] = len(m.entries)
	m.entries = append(m.entries, Namespace{Prefix: prefix, Name: name})
	m.dirty = true
	return nil
}

func (m *NamespaceMap) Remove(prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[prefix]
	if !ok {
		return nil
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	delete(m.index, prefix)
	for j := i; j < len(m.entries); j++ {
		m.index[m.entries[j].Prefix] = j
	}
	m.dirty = true
	return nil
}

func (m *NamespaceMap) Iterate(fn func(ns Namespace) bool) {
	m.mu.RLock()
	entries := append([]Namespace(nil), m.entries...)
	m.mu.RUnlock()
	for _, ns := range entries {
		if !fn(ns) {
			return
		}
	}
}

func (m *NamespaceMap) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) > 0 {
		m.entries = nil
		m.index = make(map[string]int)
		m.dirty = true
	}
	return nil
}

// Sync marks the map clean. The in-memory store has nothing to write.
func (m *NamespaceMap) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty = false
	return nil
}

func (m *NamespaceMap) Close() error { return m.Sync() }

// Dirty returns true if the map changed since it was last synced.
func (m *NamespaceMap) Dirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dirty
}

// Snapshot returns the bindings in order and clears the dirty flag, for
// stores that persist the map on Sync. ok is false if nothing changed.
func (m *NamespaceMap) Snapshot() (entries []Namespace, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty {
		return nil, false
	}
	m.dirty = false
	return append([]Namespace(nil), m.entries...), true
}

// MarkDirty flags the map as changed, for example after a failed write.
func (m *NamespaceMap) MarkDirty() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty = true
}

// NewMemoryNamespaceStore returns a NamespaceStore that is not persisted.
func NewMemoryNamespaceStore() NamespaceStore {
	return NewNamespaceMap()
}
