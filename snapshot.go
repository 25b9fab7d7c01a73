// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"github.com/benbjohnson/immutable"
)

// rowSet is an immutable ordered set of triples.
type rowSet = immutable.SortedMap[Triple, struct{}]

type tripleComparer struct{}

func (tripleComparer) Compare(a, b Triple) int { return compareTriples(a, b) }

// newRowSet returns an empty row set.
func newRowSet() *rowSet {
	return immutable.NewSortedMap[Triple, struct{}](tripleComparer{})
}

// idHasher hashes bucket identifiers for immutable.Map.
type idHasher struct{}

func (idHasher) Hash(id ID) uint32 {
	return uint32(id) ^ uint32(id>>32)
}

func (idHasher) Equal(a, b ID) bool { return a == b }

// snapshot is a committed state of the store. Snapshots are never modified
// after they are published; commits publish a new one.
type snapshot struct {
	version uint64
	buckets *immutable.Map[ID, *rowSet]
}

func newSnapshot() *snapshot {
	return &snapshot{
		buckets: immutable.NewMap[ID, *rowSet](idHasher{}),
	}
}

// bucket returns the committed rows of bucket b, or nil if it has none.
func (s *snapshot) bucket(b ID) *rowSet {
	rows, _ := s.buckets.Get(b)
	return rows
}

// bucketIDs returns the identifiers of every bucket with committed rows.
func (s *snapshot) bucketIDs() []ID {
	ids := make([]ID, 0, s.buckets.Len())
	itr := s.buckets.Iterator()
	for !itr.Done() {
		b, rows, _ := itr.Next()
		if setLen(rows) > 0 {
			ids = append(ids, b)
		}
	}
	return ids
}

// len returns the total number of committed rows.
func (s *snapshot) len() int {
	var n int
	itr := s.buckets.Iterator()
	for !itr.Done() {
		_, rows, _ := itr.Next()
		n += setLen(rows)
	}
	return n
}

// with returns a new snapshot that replaces the given buckets.
func (s *snapshot) with(updates map[ID]*rowSet) *snapshot {
	buckets := s.buckets
	for b, rows := range updates {
		if setLen(rows) == 0 {
			buckets = buckets.Delete(b)
			continue
		}
		buckets = buckets.Set(b, rows)
	}
	return &snapshot{version: s.version + 1, buckets: buckets}
}

// applyOps returns rows with ops applied in order.
func applyOps(rows *rowSet, ops []Op) *rowSet {
	if rows == nil {
		rows = newRowSet()
	}
	for _, op := range ops {
		switch op.Type {
		case OpInsert:
			rows = rows.Set(op.Triple, struct{}{})
		case OpRemove:
			rows = rows.Delete(op.Triple)
		}
	}
	return rows
}
