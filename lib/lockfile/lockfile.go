// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.
//
// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE. See the GNU General Public License for
// more details.
//
// You should have received a copy of the GNU General Public License along
// with this program. If not, see <http://www.gnu.org/licenses/>.

// Package lockfile takes an exclusive lock on a receiver's target
// directory for the lifetime of the server process, standing in for
// spec.md's out-of-scope "target-directory locking via a PID file"
// collaborator.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock is a held exclusive lock on a target directory, plus the PID file
// backing it.
type Lock struct {
	flock *flock.Flock
	path  string
}

// pathFor returns the lock file path for a target directory: a dotfile
// named after the target's base name, sitting next to it.
func pathFor(target string) string {
	abs, err := filepath.Abs(target)
	if err != nil {
		abs = target
	}
	base := filepath.Base(abs)
	return filepath.Join(filepath.Dir(abs), "."+base+".dropbox.lock")
}

// Acquire takes an exclusive, non-blocking lock on target's lock file and
// writes the current PID into it. ErrLocked is returned if another
// process already holds it — the caller (cmd/dropboxd) turns that into a
// startup failure, since spec.md's connection lifecycle already rejects a
// second live session over the wire; this catches the case of two
// receiver processes started against the same target before either
// accepts a connection.
func Acquire(target string) (*Lock, error) {
	path := pathFor(target)
	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lockfile: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	// flock.Flock keeps its own fd for the advisory lock; we write the PID
	// through a second, independent open so callers (or operators running
	// `cat` on the lock file) see the holder without touching flock's fd.
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644); err != nil {
		fl.Unlock()
		return nil, fmt.Errorf("lockfile: %w", err)
	}

	return &Lock{flock: fl, path: path}, nil
}

// ErrLocked is returned by Acquire when another process already holds the
// lock on this target directory.
var ErrLocked = fmt.Errorf("lockfile: target is already locked by another process")

// Release unlocks and removes the lock file.
func (l *Lock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return err
	}
	return os.Remove(l.path)
}

// Path returns the lock file's filesystem path.
func (l *Lock) Path() string {
	return l.path
}
