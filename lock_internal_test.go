// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/molecula/rdfsail/errors"
	"github.com/stretchr/testify/require"
)

func TestLockDir(t *testing.T) {
	dir := t.TempDir()

	l, err := lockDir(dir)
	require.NoError(t, err)

	if _, err := lockDir(dir); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("expected IllegalState, got %v", err)
	}

	buf, err := os.ReadFile(filepath.Join(dir, LockFileName))
	require.NoError(t, err)
	if !strings.HasPrefix(string(buf), "pid=") {
		t.Fatalf("unexpected lock file contents: %q", buf)
	}

	require.NoError(t, l.Release())
	require.NoError(t, l.Release())

	other, err := lockDir(dir)
	require.NoError(t, err)
	require.NoError(t, other.Release())
}

func TestLockDir_MissingDir(t *testing.T) {
	if _, err := lockDir(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error")
	}
}
