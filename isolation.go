// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"fmt"
	"strings"

	"github.com/molecula/rdfsail/errors"
)

// IsolationLevel is the set of guarantees a transaction gets. Levels are
// totally ordered and each level implies every weaker one.
type IsolationLevel int

const (
	// None offers no isolation. Begin is advisory.
	None IsolationLevel = iota

	// ReadUncommitted lets a connection see its own pending writes.
	ReadUncommitted

	// ReadCommitted hides pending writes from other connections and makes
	// rollback undo them entirely.
	ReadCommitted

	// SnapshotRead gives each opened iteration a fixed view of the store.
	SnapshotRead

	// Snapshot gives the whole transaction the view the store had at Begin.
	Snapshot

	// Serializable aborts transactions whose reads were invalidated by a
	// concurrent commit.
	Serializable
)

// IsolationLevels lists every level from weakest to strongest.
var IsolationLevels = []IsolationLevel{None, ReadUncommitted, ReadCommitted, SnapshotRead, Snapshot, Serializable}

var isolationLevelNames = [...]string{
	None:            "NONE",
	ReadUncommitted: "READ_UNCOMMITTED",
	ReadCommitted:   "READ_COMMITTED",
	SnapshotRead:    "SNAPSHOT_READ",
	Snapshot:        "SNAPSHOT",
	Serializable:    "SERIALIZABLE",
}

// String returns the canonical name of the level.
func (l IsolationLevel) String() string {
	if l < None || l > Serializable {
		return fmt.Sprintf("IsolationLevel(%d)", int(l))
	}
	return isolationLevelNames[l]
}

// IsCompatibleWith returns true if a transaction at l also satisfies every
// guarantee of other.
func (l IsolationLevel) IsCompatibleWith(other IsolationLevel) bool {
	return l.valid() && other.valid() && l >= other
}

func (l IsolationLevel) valid() bool {
	return l >= None && l <= Serializable
}

// pinsSnapshot returns true if transactions at l read one snapshot from
// Begin to Commit.
func (l IsolationLevel) pinsSnapshot() bool {
	return l >= Snapshot
}

// ParseIsolationLevel parses a level name. Names are case insensitive and
// may use dashes or spaces instead of underscores.
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.NewReplacer("-", "_", " ", "_").Replace(name)
	for i, n := range isolationLevelNames {
		if n == name {
			return IsolationLevel(i), nil
		}
	}
	return None, errors.Newf(ErrUnsupportedIsolationLevel, "unknown isolation level: %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (l IsolationLevel) MarshalText() ([]byte, error) {
	if !l.valid() {
		return nil, errors.Newf(ErrUnsupportedIsolationLevel, "invalid isolation level: %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *IsolationLevel) UnmarshalText(text []byte) error {
	v, err := ParseIsolationLevel(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}
