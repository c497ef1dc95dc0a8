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

// Package receiver implements the receiver side of the protocol: the
// per-connection file-in-progress state machine (component G) and the
// single-active-session connection loop (component H).
package receiver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/dropboxd/dropboxd/lib/events"
	"github.com/dropboxd/dropboxd/lib/logger"
	"github.com/dropboxd/dropboxd/lib/metrics"
	"github.com/dropboxd/dropboxd/lib/osutil"
	"github.com/dropboxd/dropboxd/lib/wire"
)

var (
	l  = logger.DefaultLogger
	dl = l.NewFacility("receiver", "receiver file-state machine and session loop")
)

// state is the file-in-progress status, spec.md §3 "File-in-progress".
type state int

const (
	idle state = iota
	creating
	changing
)

// StateViolationError is returned by the command dispatcher for a frame
// whose code is not a command the receiver accepts (OK, NOK, ABORT,
// SETTINGS or REJECTED arriving from the sender): the dispatcher replies
// ABORT and the session ends. A command that is illegal only in the
// current state (e.g. CREATE_FILE while already Creating) is answered
// with ABORT by the FileState handler itself and does not end the
// session.
type StateViolationError struct {
	State state
	Code  wire.Code
}

func (e *StateViolationError) Error() string {
	return fmt.Sprintf("receiver: %s illegal while in state %d", e.Code, e.State)
}

// pendingMeta buffers the metadata a Creating file accumulates before
// DONE applies it all at once, per spec.md's deferred-reply design.
type pendingMeta struct {
	timestamps    wire.Timestamps
	hasTimestamps bool
	permModes     wire.PermModes
	hasPermModes  bool
	owner         wire.Owner
	hasOwner      bool
}

// FileState is one connection's file-in-progress record: the open
// handle, the current state, and pending metadata for Creating.
type FileState struct {
	targetDir string
	blockSize uint64

	state   state
	path    string
	file    *os.File
	pending pendingMeta
	lastErr error
}

// NewFileState creates an Idle file-state machine rooted at targetDir.
func NewFileState(targetDir string, blockSize uint64) *FileState {
	return &FileState{targetDir: targetDir, blockSize: blockSize, state: idle}
}

func (fs *FileState) resolve(relPath string) string {
	return filepath.Join(fs.targetDir, relPath)
}

func errno(err error) int32 {
	var errnoErr syscall.Errno
	if errors.As(err, &errnoErr) {
		return int32(errnoErr)
	}
	return -1
}

// HandleCreateFile implements the Idle --CREATE_FILE--> Creating
// transition.
func (fs *FileState) HandleCreateFile(relPath string) (wire.Code, []byte) {
	if fs.state != idle {
		return wire.ABORT, wire.EncodeAbort(wire.Abort{ErrorNumber: errno(syscall.EBUSY)})
	}

	var f *os.File
	err := osutil.InWritableDir(func(path string) error {
		var openErr error
		f, openErr = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0666)
		return openErr
	}, fs.resolve(relPath))
	if errors.Is(err, os.ErrExist) {
		return wire.NOK, nil
	}
	if err != nil {
		fs.lastErr = err
		return wire.ABORT, wire.EncodeAbort(wire.Abort{ErrorNumber: errno(err)})
	}

	fs.state = creating
	fs.path = relPath
	fs.file = f
	fs.pending = pendingMeta{}
	return wire.OK, nil
}

// HandleChangeFile implements the Idle --CHANGE_FILE--> Changing
// transition.
func (fs *FileState) HandleChangeFile(relPath string) (wire.Code, []byte) {
	if fs.state != idle {
		return wire.ABORT, wire.EncodeAbort(wire.Abort{ErrorNumber: errno(syscall.EBUSY)})
	}

	path := fs.resolve(relPath)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return wire.NOK, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		fs.lastErr = err
		return wire.ABORT, wire.EncodeAbort(wire.Abort{ErrorNumber: errno(err)})
	}

	fs.state = changing
	fs.path = relPath
	fs.file = f
	return wire.OK, nil
}

// HandleDeleteFile implements the Idle --DELETE_FILE--> Idle transition
// (it never changes state; it's legal only while Idle).
func (fs *FileState) HandleDeleteFile(relPath string) (wire.Code, []byte) {
	if fs.state != idle {
		return wire.ABORT, wire.EncodeAbort(wire.Abort{ErrorNumber: errno(syscall.EBUSY)})
	}

	err := osutil.InWritableDir(os.Remove, fs.resolve(relPath))
	if err != nil {
		fs.lastErr = err
		return wire.ABORT, wire.EncodeAbort(wire.Abort{ErrorNumber: errno(err)})
	}
	events.Default.Log(events.FileDeleted, relPath)
	return wire.OK, nil
}

// HandleSetTimestamps applies SET_TIMESTAMPS: immediately if Changing,
// buffered if Creating.
func (fs *FileState) HandleSetTimestamps(ts wire.Timestamps) (wire.Code, []byte) {
	switch fs.state {
	case creating:
		fs.pending.timestamps = ts
		fs.pending.hasTimestamps = true
		return wire.OK, nil
	case changing:
		if err := applyTimestamps(fs.file, ts); err != nil {
			fs.lastErr = err
			return wire.ABORT, wire.EncodeAbort(wire.Abort{ErrorNumber: errno(err)})
		}
		return wire.OK, nil
	default:
		return wire.ABORT, wire.EncodeAbort(wire.Abort{ErrorNumber: errno(syscall.EINVAL)})
	}
}

// HandleSetPermModes applies SET_PERM_MODES, symmetric to timestamps.
func (fs *FileState) HandleSetPermModes(p wire.PermModes) (wire.Code, []byte) {
	switch fs.state {
	case creating:
		fs.pending.permModes = p
		fs.pending.hasPermModes = true
		return wire.OK, nil
	case changing:
		if err := fs.file.Chmod(os.FileMode(p.Mode) & os.ModePerm); err != nil {
			fs.lastErr = err
			return wire.NOK, nil
		}
		return wire.OK, nil
	default:
		return wire.ABORT, wire.EncodeAbort(wire.Abort{ErrorNumber: errno(syscall.EINVAL)})
	}
}

// HandleSetOwner applies SET_OWNER, symmetric to timestamps.
func (fs *FileState) HandleSetOwner(o wire.Owner) (wire.Code, []byte) {
	switch fs.state {
	case creating:
		fs.pending.owner = o
		fs.pending.hasOwner = true
		return wire.OK, nil
	case changing:
		if err := fs.file.Chown(int(o.UID), int(o.GID)); err != nil {
			fs.lastErr = err
			return wire.NOK, nil
		}
		return wire.OK, nil
	default:
		return wire.ABORT, wire.EncodeAbort(wire.Abort{ErrorNumber: errno(syscall.EINVAL)})
	}
}

// HandleWriteBlock applies WRITE_BLOCK: an empty block seeks fs_block_size
// bytes forward (a sparse hole), otherwise it writes the bytes at the
// file's current offset.
func (fs *FileState) HandleWriteBlock(data []byte) (wire.Code, []byte) {
	if fs.state != creating && fs.state != changing {
		return wire.ABORT, wire.EncodeAbort(wire.Abort{ErrorNumber: errno(syscall.EINVAL)})
	}

	if len(data) == 0 {
		if _, err := fs.file.Seek(int64(fs.blockSize), io.SeekCurrent); err != nil {
			fs.lastErr = err
			return wire.ABORT, wire.EncodeAbort(wire.Abort{ErrorNumber: errno(err)})
		}
		return wire.OK, nil
	}

	if _, err := fs.file.Write(data); err != nil {
		fs.lastErr = err
		return wire.ABORT, wire.EncodeAbort(wire.Abort{ErrorNumber: errno(err)})
	}
	metrics.AddBytesWritten(len(data))
	return wire.OK, nil
}

// DeferredReply is one of the three replies Creating→DONE emits, in the
// fixed order timestamps, perm_modes, owner.
type DeferredReply struct {
	Code    wire.Code
	Payload []byte
}

// HandleDone closes the open file and, if the state was Creating, returns
// the three deferred replies for the buffered metadata, in order. If the
// state was Changing, it returns no replies (each SET_ was already
// replied to immediately).
func (fs *FileState) HandleDone() []DeferredReply {
	defer func() {
		if fs.file != nil {
			fs.file.Close()
		}
		fs.file = nil
		fs.path = ""
		fs.state = idle
	}()

	if fs.state != creating {
		return nil
	}

	path := fs.path
	replies := make([]DeferredReply, 3)
	replies[0] = applyPending("timestamps", fs.pending.hasTimestamps, func() error {
		return applyTimestamps(fs.file, fs.pending.timestamps)
	})
	replies[1] = applyPending("perm_modes", fs.pending.hasPermModes, func() error {
		return fs.file.Chmod(os.FileMode(fs.pending.permModes.Mode) & os.ModePerm)
	})
	replies[2] = applyPending("owner", fs.pending.hasOwner, func() error {
		return fs.file.Chown(int(fs.pending.owner.UID), int(fs.pending.owner.GID))
	})

	events.Default.Log(events.FileCreated, path)
	return replies
}

func applyPending(name string, has bool, apply func() error) DeferredReply {
	if !has {
		return DeferredReply{Code: wire.OK}
	}
	if err := apply(); err != nil {
		dl.Debugln("deferred", name, "failed:", err)
		return DeferredReply{Code: wire.NOK}
	}
	return DeferredReply{Code: wire.OK}
}

// LastError returns the most recent OS error this state machine
// encountered, for ABORT payload construction by the caller.
func (fs *FileState) LastError() error {
	return fs.lastErr
}

// InProgress reports whether a file is currently open (Creating or
// Changing).
func (fs *FileState) InProgress() bool {
	return fs.state != idle
}
