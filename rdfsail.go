// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package rdfsail implements the transactional storage core of an RDF triple
// store. Connections run transactions at one of six isolation levels; pending
// writes live in per-predicate overlay tables and are applied to committed
// storage by an asynchronous batch writer.
package rdfsail

import (
	"fmt"
	"math"
	"sort"

	"github.com/molecula/rdfsail/errors"
)

// Error codes returned by the storage core. Use errors.Is(err, code) to test.
const (
	ErrIllegalState              errors.Code = "IllegalState"
	ErrUnsupportedIsolationLevel errors.Code = "UnsupportedIsolationLevel"
	ErrStorageIO                 errors.Code = "StorageIO"
	ErrTransactionConflict       errors.Code = "TransactionConflict"
	ErrClosed                    errors.Code = "Closed"
	ErrInvalidArgument           errors.Code = "InvalidArgument"
	ErrQueryInterrupted          errors.Code = "QueryInterrupted"
	ErrBackendNotFound           errors.Code = "BackendNotFound"
)

// ID is an interned identifier for a resource, a literal, or a context.
// Resolving IDs to values is done outside of the storage core.
type ID uint64

const (
	// Nil is the wildcard in patterns and the default context of a triple.
	Nil ID = 0

	// OtherPred is the shared bucket holding rows for predicates that do not
	// have a dedicated table. Rows in it carry an explicit predicate column.
	OtherPred ID = math.MaxUint64
)

// Triple is a statement in a context. Two triples are the same statement
// only if every field is equal.
type Triple struct {
	Subj ID
	Pred ID
	Obj  ID
	Ctx  ID

	// Inferred marks statements added by an inferencer rather than a user.
	Inferred bool
}

// String returns a debug representation of t.
func (t Triple) String() string {
	s := fmt.Sprintf("(%d %d %d %d)", t.Subj, t.Pred, t.Obj, t.Ctx)
	if t.Inferred {
		s += "*"
	}
	return s
}

// compareTriples orders triples by predicate, subject, object, context,
// explicit before inferred. Predicate first keeps a predicate's rows
// contiguous inside the shared bucket.
func compareTriples(a, b Triple) int {
	switch {
	case a.Pred != b.Pred:
		return compareIDs(a.Pred, b.Pred)
	case a.Subj != b.Subj:
		return compareIDs(a.Subj, b.Subj)
	case a.Obj != b.Obj:
		return compareIDs(a.Obj, b.Obj)
	case a.Ctx != b.Ctx:
		return compareIDs(a.Ctx, b.Ctx)
	case a.Inferred == b.Inferred:
		return 0
	case b.Inferred:
		return -1
	default:
		return 1
	}
}

// SortTriples sorts a in storage order.
func SortTriples(a []Triple) {
	sort.Slice(a, func(i, j int) bool { return compareTriples(a[i], a[j]) < 0 })
}

func compareIDs(a, b ID) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

// Pattern matches triples. Nil fields match anything. An empty Contexts list
// matches every context; otherwise a triple must be in one of the listed
// contexts, where Nil names the default context.
type Pattern struct {
	Subj     ID
	Pred     ID
	Obj      ID
	Contexts []ID

	IncludeInferred bool
}

// Matches returns true if t satisfies the pattern.
func (p Pattern) Matches(t Triple) bool {
	if p.Subj != Nil && p.Subj != t.Subj {
		return false
	} else if p.Pred != Nil && p.Pred != t.Pred {
		return false
	} else if p.Obj != Nil && p.Obj != t.Obj {
		return false
	} else if t.Inferred && !p.IncludeInferred {
		return false
	}
	if len(p.Contexts) == 0 {
		return true
	}
	for _, c := range p.Contexts {
		if c == t.Ctx {
			return true
		}
	}
	return false
}

// clone returns a copy of p that does not share its Contexts slice.
func (p Pattern) clone() Pattern {
	other := p
	if p.Contexts != nil {
		other.Contexts = append([]ID(nil), p.Contexts...)
	}
	return other
}

// String returns a debug representation of p.
func (p Pattern) String() string {
	return fmt.Sprintf("(%d %d %d %v inferred=%v)", p.Subj, p.Pred, p.Obj, p.Contexts, p.IncludeInferred)
}

// OpType is the kind of a mutation.
type OpType uint8

const (
	OpInsert OpType = iota + 1
	OpRemove
)

func (t OpType) String() string {
	switch t {
	case OpInsert:
		return "insert"
	case OpRemove:
		return "remove"
	default:
		return fmt.Sprintf("OpType(%d)", uint8(t))
	}
}

// Op is a single mutation of a triple.
type Op struct {
	Type   OpType
	Triple Triple
}
