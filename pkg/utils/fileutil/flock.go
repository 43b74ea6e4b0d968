package fileutil

import (
	"os"
)

// Releaser releases an advisory lock taken with NewLock.
type Releaser interface {
	Release() error
}

// OpenLocked opens name and takes an exclusive non-blocking lock on it.
// The returned file is closed again when the lock is held elsewhere.
func OpenLocked(name string, flag int, perm os.FileMode) (*os.File, Releaser, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, nil, err
	}
	l, err := NewLock(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, l, nil
}
