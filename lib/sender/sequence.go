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

// Package sender implements the sender side of the protocol: the initial
// traversal (component D), the scripted per-file request sequences
// (component E), and the live filesystem watch engine (component F).
package sender

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/time/rate"

	"github.com/dropboxd/dropboxd/lib/events"
	"github.com/dropboxd/dropboxd/lib/logger"
	"github.com/dropboxd/dropboxd/lib/wire"
)

var (
	l  = logger.DefaultLogger
	dl = l.NewFacility("sender", "sender-side request sequences and traversal")
)

// fatalReplyError is returned when a step expected OK/NOK but got
// something else; an ABORT reply is reported as *AbortError instead.
type fatalReplyError struct {
	step string
	got  wire.Code
}

func (e *fatalReplyError) Error() string {
	return fmt.Sprintf("sender: unexpected reply to %s: %s", e.step, e.got)
}

// AbortError wraps a receiver ABORT frame's error number.
type AbortError struct {
	Errno int32
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("sender: peer aborted, errno=%d", e.Errno)
}

// Session bundles everything a request sequence needs: the connection,
// the shared read buffer, and the negotiated block size.
type Session struct {
	Conn      io.ReadWriter
	Buf       *wire.Buffer
	BlockSize uint64
	Sparse    bool

	// Limiter throttles WRITE_BLOCK content bytes when non-nil. It never
	// gates the small fixed-layout control frames, only the payload
	// actually read off disk.
	Limiter *rate.Limiter
}

// expectOKNOK reads one reply frame and reports whether it was OK (true),
// NOK (false, non-fatal), or returns an error for anything else,
// including ABORT.
func (s *Session) expectOKNOK(step string) (bool, error) {
	f, err := wire.Read(s.Conn, s.Buf)
	if err != nil {
		return false, err
	}
	switch f.Code {
	case wire.OK:
		return true, nil
	case wire.NOK:
		return false, nil
	case wire.ABORT:
		return false, &AbortError{Errno: wire.DecodeAbort(f.Payload).ErrorNumber}
	default:
		return false, &fatalReplyError{step: step, got: f.Code}
	}
}

// CreateSequence runs spec.md §4.E's create sequence for one regular file:
// CREATE_FILE, the three metadata SETs, the content stream, DONE, and the
// three deferred replies. relPath is the path as seen by the receiver;
// absPath is used to open and stat the file locally.
func (s *Session) CreateSequence(relPath, absPath string) error {
	if err := wire.SendPath(s.Conn, wire.CREATE_FILE, relPath); err != nil {
		return err
	}
	ok, err := s.expectOKNOK("CREATE_FILE")
	if err != nil {
		return err
	}
	if !ok {
		dl.Debugln("CREATE_FILE skipped (NOK):", relPath)
		events.Default.Log(events.FileSkipped, relPath)
		return nil
	}

	f, err := os.Open(absPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	// The three metadata SETs are sent back-to-back with no reply read in
	// between: their replies are deferred until after DONE (spec.md
	// §4.E step 7), unlike ChangeSequence's rounds where each SET is
	// replied to immediately.
	if err := wire.SendTimestamps(s.Conn, statTimestamps(info)); err != nil {
		return err
	}
	if err := wire.SendPermModes(s.Conn, wire.PermModes{Mode: uint64(info.Mode().Perm())}); err != nil {
		return err
	}
	uid, gid := statOwner(info)
	if err := wire.SendOwner(s.Conn, wire.Owner{UID: uid, GID: gid}); err != nil {
		return err
	}
	if err := s.streamContent(f); err != nil {
		return err
	}
	if err := wire.SendEmpty(s.Conn, wire.DONE); err != nil {
		return err
	}

	// Three deferred replies, strictly in this order: timestamps, perm
	// modes, owner.
	for _, step := range []string{"SET_TIMESTAMPS(deferred)", "SET_PERM_MODES(deferred)", "SET_OWNER(deferred)"} {
		if ok, err := s.expectOKNOK(step); err != nil {
			return err
		} else if !ok {
			dl.Debugln(step, "returned NOK for", relPath)
		}
	}

	events.Default.Log(events.FileCreated, relPath)
	return nil
}

// ChangeSequence runs three CHANGE_FILE/SET_<field>/DONE rounds on
// ATTRIB, one per metadata field, in the order timestamps, perm modes,
// owner.
func (s *Session) ChangeSequence(relPath, absPath string) error {
	info, err := os.Stat(absPath)
	if err != nil {
		return err
	}

	rounds := []func() error{
		func() error { return s.changeRound(relPath, func() error { return s.sendTimestamps(info) }) },
		func() error { return s.changeRound(relPath, func() error { return s.sendPermModes(info) }) },
		func() error { return s.changeRound(relPath, func() error { return s.sendOwner(info) }) },
	}
	for _, round := range rounds {
		if err := round(); err != nil {
			return err
		}
	}

	events.Default.Log(events.FileChanged, relPath)
	return nil
}

func (s *Session) changeRound(relPath string, sendField func() error) error {
	if err := wire.SendPath(s.Conn, wire.CHANGE_FILE, relPath); err != nil {
		return err
	}
	ok, err := s.expectOKNOK("CHANGE_FILE")
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := sendField(); err != nil {
		return err
	}
	// The receiver sends no reply to DONE while Changing: each SET was
	// already replied to.
	return wire.SendEmpty(s.Conn, wire.DONE)
}

// DeleteSequence sends DELETE_FILE alone; a NOK reply is logged but not
// fatal (spec.md's plain delete sequence, on MOVED_FROM/DELETE).
func (s *Session) DeleteSequence(relPath string) error {
	if err := wire.SendPath(s.Conn, wire.DELETE_FILE, relPath); err != nil {
		return err
	}
	ok, err := s.expectOKNOK("DELETE_FILE")
	if err != nil {
		return err
	}
	if !ok {
		dl.Debugln("DELETE_FILE returned NOK:", relPath)
	} else {
		events.Default.Log(events.FileDeleted, relPath)
	}
	return nil
}

// RewriteSequence is spec.md's delete-then-create sequence, run on
// CLOSE_WRITE of a file the receiver already has.
func (s *Session) RewriteSequence(relPath, absPath string) error {
	if err := s.DeleteSequence(relPath); err != nil {
		return err
	}
	return s.CreateSequence(relPath, absPath)
}

func (s *Session) sendTimestamps(info os.FileInfo) error {
	ts := statTimestamps(info)
	if err := wire.SendTimestamps(s.Conn, ts); err != nil {
		return err
	}
	return s.expectSetReply("SET_TIMESTAMPS")
}

func (s *Session) sendPermModes(info os.FileInfo) error {
	if err := wire.SendPermModes(s.Conn, wire.PermModes{Mode: uint64(info.Mode().Perm())}); err != nil {
		return err
	}
	return s.expectSetReply("SET_PERM_MODES")
}

func (s *Session) sendOwner(info os.FileInfo) error {
	uid, gid := statOwner(info)
	if err := wire.SendOwner(s.Conn, wire.Owner{UID: uid, GID: gid}); err != nil {
		return err
	}
	return s.expectSetReply("SET_OWNER")
}

// expectSetReply reads the immediate reply to a SET_* frame sent from
// within a change round, where every step is replied to immediately
// (unlike the create sequence's three deferred replies, which
// CreateSequence reads for itself after DONE without going through
// sendTimestamps/sendPermModes/sendOwner).
func (s *Session) expectSetReply(step string) error {
	ok, err := s.expectOKNOK(step)
	if err != nil {
		return err
	}
	if !ok {
		dl.Debugln(step, "returned NOK")
	}
	return nil
}

func (s *Session) streamContent(f *os.File) error {
	buf := make([]byte, s.BlockSize)
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			block := buf[:n]
			if s.Sparse && isAllZero(block) {
				block = nil
			}
			if s.Limiter != nil && len(block) > 0 {
				if err := waitForTokens(s.Limiter, len(block)); err != nil {
					return err
				}
			}
			if err := wire.SendBlock(s.Conn, block); err != nil {
				return err
			}
			if ok, err := s.expectOKNOK("WRITE_BLOCK"); err != nil {
				return err
			} else if !ok {
				dl.Debugln("WRITE_BLOCK returned NOK, continuing")
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// waitForTokens consumes n tokens from limiter, split into burst-sized
// chunks since rate.Limiter.WaitN rejects requests larger than its burst.
func waitForTokens(limiter *rate.Limiter, n int) error {
	burst := limiter.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := limiter.WaitN(context.Background(), chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
