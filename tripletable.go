// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// DefaultMaxPredicateTables is the number of predicates that get a dedicated
// table before new predicates are routed to the shared OtherPred bucket.
const DefaultMaxPredicateTables = 256

// TripleTable is the committed storage of one predicate bucket. The rows
// themselves live in the store's published snapshot; the table keeps the
// bookkeeping that query planning consumes.
type TripleTable struct {
	bucket ID
	size   int64 // approximate row count
}

// Bucket returns the bucket identifier of the table.
func (t *TripleTable) Bucket() ID { return t.bucket }

// Name returns the table name used in logs and views.
func (t *TripleTable) Name() string { return tableName(t.bucket) }

// PredColumnPresent returns true if rows of many predicates share this table.
func (t *TripleTable) PredColumnPresent() bool { return t.bucket == OtherPred }

// Size returns the approximate number of rows in the table.
func (t *TripleTable) Size() int64 { return atomic.LoadInt64(&t.size) }

// modified adjusts the size estimate, never going below zero.
func (t *TripleTable) modified(inserted, removed int64) {
	for {
		old := atomic.LoadInt64(&t.size)
		n := old + inserted - removed
		if n < 0 {
			n = 0
		}
		if atomic.CompareAndSwapInt64(&t.size, old, n) {
			return
		}
	}
}

func tableName(bucket ID) string {
	if bucket == OtherPred {
		return "triples_other"
	}
	return fmt.Sprintf("triples_%d", uint64(bucket))
}

// TripleTableManager routes predicates to triple tables. A predicate gets a
// dedicated table until MaxPredicateTables is reached; later predicates share
// the OtherPred table. Routes never change once assigned.
type TripleTableManager struct {
	mu     sync.RWMutex
	max    int
	routes map[ID]ID // predicate to bucket
	tables map[ID]*TripleTable

	// removed holds removed rows reported without the table lock; they are
	// folded into the estimate on the next locked update.
	removed int64
}

// NewTripleTableManager returns a manager that allows up to max dedicated
// predicate tables.
func NewTripleTableManager(max int) *TripleTableManager {
	if max < 0 {
		max = 0
	}
	return &TripleTableManager{
		max:    max,
		routes: make(map[ID]ID),
		tables: make(map[ID]*TripleTable),
	}
}

// Route returns the bucket for pred, assigning one if pred is new.
func (m *TripleTableManager) Route(pred ID) ID {
	m.mu.RLock()
	b, ok := m.routes[pred]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.route(pred)
}

// route assigns a bucket to pred. Caller must hold the write lock.
func (m *TripleTableManager) route(pred ID) ID {
	if b, ok := m.routes[pred]; ok {
		return b
	}
	b := OtherPred
	if pred != OtherPred && m.dedicated() < m.max {
		b = pred
	}
	m.routes[pred] = b
	if m.tables[b] == nil {
		m.tables[b] = &TripleTable{bucket: b}
	}
	return b
}

// dedicated returns the number of dedicated tables. Caller must hold a lock.
func (m *TripleTableManager) dedicated() int {
	n := len(m.tables)
	if m.tables[OtherPred] != nil {
		n--
	}
	return n
}

// Lookup returns the bucket for pred without assigning one.
func (m *TripleTableManager) Lookup(pred ID) (ID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.routes[pred]
	return b, ok
}

// IsPredColumnPresent returns true if pred is stored in the shared table.
func (m *TripleTableManager) IsPredColumnPresent(pred ID) bool {
	b, ok := m.Lookup(pred)
	return ok && b == OtherPred
}

// Table returns the table for bucket b, or nil if none exists.
func (m *TripleTableManager) Table(b ID) *TripleTable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tables[b]
}

// Tables returns all tables ordered by bucket.
func (m *TripleTableManager) Tables() []*TripleTable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a := make([]*TripleTable, 0, len(m.tables))
	for _, t := range m.tables {
		a = append(a, t)
	}
	sort.Slice(a, func(i, j int) bool { return a[i].bucket < a[j].bucket })
	return a
}

// PredicateIDs returns every predicate with a route, in ascending order.
func (m *TripleTableManager) PredicateIDs() []ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a := make([]ID, 0, len(m.routes))
	for p := range m.routes {
		a = append(a, p)
	}
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	return a
}

// load registers a row read from a backend while the store opens. Rows in
// a dedicated bucket pin that bucket to its predicate; rows in the shared
// bucket pin their predicate to it.
func (m *TripleTableManager) load(bucket ID, t Triple) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[t.Pred]; !ok {
		m.routes[t.Pred] = bucket
	}
	tbl := m.tables[bucket]
	if tbl == nil {
		tbl = &TripleTable{bucket: bucket}
		m.tables[bucket] = tbl
	}
	tbl.size++
}

// Inserted adds n rows to the size estimate of bucket b.
func (m *TripleTableManager) Inserted(b ID, n int64) {
	if t := m.Table(b); t != nil {
		t.modified(n, 0)
	}
}

// Removed records count removed rows across all tables. When locked is
// false the count is deferred until the next locked call, so callers that
// do not hold the commit lock never touch the estimates directly.
func (m *TripleTableManager) Removed(count int64, locked bool) {
	if !locked {
		atomic.AddInt64(&m.removed, count)
		return
	}
	count += atomic.SwapInt64(&m.removed, 0)
	if count <= 0 {
		return
	}

	// Spread the aggregate over the tables in proportion to their size.
	tables := m.Tables()
	var total int64
	for _, t := range tables {
		total += t.Size()
	}
	if total == 0 {
		return
	}
	for _, t := range tables {
		share := count * t.Size() / total
		t.modified(0, share)
	}
}

// Size returns the approximate number of committed rows in all tables.
func (m *TripleTableManager) Size() int64 {
	var n int64
	for _, t := range m.Tables() {
		n += t.Size()
	}
	return n
}
