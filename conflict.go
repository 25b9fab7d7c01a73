// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"sync"

	"github.com/molecula/rdfsail/errors"
)

// commitRecord is the write set of one published commit.
type commitRecord struct {
	version uint64
	writes  map[Triple]struct{}
}

// commitLog holds the write sets of commits that a running snapshot
// transaction may still conflict with. Guarded by the store's commit lock.
type commitLog struct {
	records []commitRecord
}

func (l *commitLog) append(version uint64, writes map[Triple]struct{}) {
	l.records = append(l.records, commitRecord{version: version, writes: writes})
}

// prune drops records that no pinned transaction can see as concurrent.
// With no pins every record is dropped.
func (l *commitLog) prune(pins *pinSet) {
	min, ok := pins.min()
	if !ok {
		l.records = l.records[:0]
		return
	}
	i := 0
	for i < len(l.records) && l.records[i].version <= min {
		i++
	}
	if i > 0 {
		l.records = append(l.records[:0], l.records[i:]...)
	}
}

// validate checks a transaction that read the snapshot at version against
// every commit published after it. Snapshot transactions conflict on
// overlapping writes; serializable transactions also conflict when a
// concurrent commit wrote a triple matching one of their reads.
func (l *commitLog) validate(level IsolationLevel, version uint64, writes map[Triple]struct{}, reads []Pattern) error {
	for _, rec := range l.records {
		if rec.version <= version {
			continue
		}
		for t := range writes {
			if _, ok := rec.writes[t]; ok {
				return errors.Newf(ErrTransactionConflict, "write-write conflict on %s with commit %d", t, rec.version)
			}
		}
		if level < Serializable {
			continue
		}
		for _, p := range reads {
			for t := range rec.writes {
				if p.Matches(t) {
					return errors.Newf(ErrTransactionConflict, "read of %s invalidated by commit %d", p, rec.version)
				}
			}
		}
	}
	return nil
}

// pinSet counts the snapshot versions held by running transactions.
type pinSet struct {
	mu     sync.Mutex
	counts map[uint64]int
}

func newPinSet() *pinSet {
	return &pinSet{counts: make(map[uint64]int)}
}

func (p *pinSet) pin(version uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[version]++
}

func (p *pinSet) unpin(version uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts[version] <= 1 {
		delete(p.counts, version)
		return
	}
	p.counts[version]--
}

// min returns the oldest pinned version.
func (p *pinSet) min() (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var min uint64
	var ok bool
	for v := range p.counts {
		if !ok || v < min {
			min, ok = v, true
		}
	}
	return min, ok
}

// len returns the number of pinned transactions.
func (p *pinSet) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int
	for _, c := range p.counts {
		n += c
	}
	return n
}
