// Package lock provides the advisory file lock that keeps sweeps exclusive
// across svcmon invocations.
package lock

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// ErrLockedElsewhere is returned if Acquire can't take the file lock because
// another process holds it.
var ErrLockedElsewhere = errors.New("file already locked elsewhere")

// FileLock is a held flock on a path. Release it with Unlock.
type FileLock struct {
	l *flock.Flock
}

// Acquire takes the lock on path without blocking. It returns
// ErrLockedElsewhere if the lock is already held.
func Acquire(path string) (*FileLock, error) {
	if path == "" {
		return nil, errors.New("empty lock path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create lock directory")
	}

	l := flock.New(path)

	locked, err := l.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire lock")
	}

	if !locked {
		return nil, ErrLockedElsewhere
	}

	return &FileLock{l: l}, nil
}

// Unlock releases the flock. The lock file itself is left in place.
func (f *FileLock) Unlock() error {
	return errors.Wrap(f.l.Unlock(), "failed to release lock")
}
