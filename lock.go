// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package rdfsail

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/molecula/rdfsail/errors"
)

// LockFileName is the lock file created in a store's data directory.
const LockFileName = "rdfsail.lock"

// dirLock is an exclusive advisory lock on a data directory. It is held from
// Store.Open until Store.Close.
type dirLock struct {
	mu   sync.Mutex
	file *os.File
}

// lockDir locks dir, failing immediately if another process or store holds
// it. The lock file records the owner for diagnostics.
func lockDir(dir string) (*dirLock, error) {
	path := filepath.Join(dir, LockFileName)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "opening lock file")
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		return nil, errors.Coded(ErrIllegalState, err, fmt.Sprintf("data directory %s is locked", dir))
	}
	if err := file.Truncate(0); err == nil {
		fmt.Fprintf(file, "pid=%d time=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	}
	return &dirLock{file: file}, nil
}

// Release unlocks the directory. Releasing twice is a no-op.
func (l *dirLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	var lastErr error
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		lastErr = errors.Wrap(err, "unlock")
	}
	if err := l.file.Close(); err != nil {
		lastErr = errors.Wrap(err, "closing lock file")
	}
	l.file = nil
	return lastErr
}
