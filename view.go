// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"github.com/benbjohnson/immutable"
)

// View is a read-only relation: committed rows of one or more buckets
// merged with the pending rows of the transaction that asked for it. A
// view holds immutable sets only, so it never changes after it is built.
type View struct {
	name  string
	parts []viewPart
}

type viewPart struct {
	rows    *rowSet // committed rows; may be nil
	inserts *rowSet // pending inserts; may be nil
	removes *rowSet // pending removes; may be nil

	// pred restricts a shared bucket to one predicate.
	pred ID
}

// emptyView is returned for predicates that have no rows at all.
func emptyView() *View {
	return &View{name: emptyViewName}
}

// Name returns the name of the table or union the view reads.
func (v *View) Name() string { return v.name }

// IsEmpty returns true if no row is visible through the view.
func (v *View) IsEmpty() bool {
	_, ok := v.iterate(Pattern{IncludeInferred: true}).next()
	return !ok
}

// Count returns the number of rows matching p.
func (v *View) Count(p Pattern) int {
	var n int
	itr := v.iterate(p)
	for _, ok := itr.next(); ok; _, ok = itr.next() {
		n++
	}
	return n
}

func (v *View) iterate(p Pattern) *rowIterator {
	return &rowIterator{parts: v.parts, pattern: p, idx: -1}
}

// rowIterator walks the parts of a view in order. Within a part it returns
// the visible committed rows followed by the pending inserts.
type rowIterator struct {
	parts   []viewPart
	pattern Pattern
	idx     int

	phase int // 0: committed rows, 1: pending inserts
	cur   *immutable.SortedMapIterator[Triple, struct{}]
}

func (itr *rowIterator) next() (Triple, bool) {
	for {
		if itr.cur == nil || itr.cur.Done() {
			if !itr.advance() {
				return Triple{}, false
			}
			continue
		}

		t, _, ok := itr.cur.Next()
		if !ok {
			continue
		}
		part := &itr.parts[itr.idx]
		if itr.pastRange(t) {
			itr.cur = nil
			continue
		}
		if part.pred != Nil && t.Pred != part.pred {
			continue
		}
		if !itr.pattern.Matches(t) {
			continue
		}
		if itr.phase == 0 {
			// Pending sets shadow committed rows.
			if contains(part.removes, t) || contains(part.inserts, t) {
				continue
			}
		}
		return t, true
	}
}

// advance moves to the next non-empty set of the current or next part.
func (itr *rowIterator) advance() bool {
	for {
		if itr.idx >= 0 && itr.phase == 0 {
			itr.phase = 1
		} else {
			itr.idx++
			itr.phase = 0
		}
		if itr.idx >= len(itr.parts) {
			itr.cur = nil
			return false
		}

		part := &itr.parts[itr.idx]
		set := part.rows
		if itr.phase == 1 {
			set = part.inserts
		}
		if setLen(set) == 0 {
			continue
		}
		itr.cur = set.Iterator()
		itr.seek()
		return true
	}
}

// seek positions the iterator at the first row that can match the pattern.
func (itr *rowIterator) seek() {
	pred := itr.pattern.Pred
	if pred == Nil {
		pred = itr.parts[itr.idx].pred
	}
	if pred == Nil {
		return
	}
	start := Triple{Pred: pred}
	if itr.pattern.Pred != Nil {
		start.Subj = itr.pattern.Subj
	}
	itr.cur.Seek(start)
}

// pastRange returns true once rows sorted after t cannot match.
func (itr *rowIterator) pastRange(t Triple) bool {
	pred := itr.pattern.Pred
	if pred == Nil {
		pred = itr.parts[itr.idx].pred
	}
	if pred == Nil {
		return false
	}
	if t.Pred != pred {
		return true
	}
	return itr.pattern.Pred != Nil && itr.pattern.Subj != Nil && t.Subj != itr.pattern.Subj
}

func setLen(set *rowSet) int {
	if set == nil {
		return 0
	}
	return set.Len()
}

func contains(set *rowSet, t Triple) bool {
	if set == nil {
		return false
	}
	_, ok := set.Get(t)
	return ok
}
