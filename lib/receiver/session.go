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

package receiver

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/dropboxd/dropboxd/lib/evloop"
	"github.com/dropboxd/dropboxd/lib/events"
	"github.com/dropboxd/dropboxd/lib/wire"
)

// Config configures one Listen run of the receiver session loop.
type Config struct {
	Listener  net.Listener
	TargetDir string
	BlockSize uint64
}

// Listen drives spec.md §4.H's session loop: it accepts at most one
// active connection at a time, rejecting concurrent clients with
// REJECTED, and runs the command loop to completion for the active one.
// It returns when a termination signal is received or the listener
// errors.
func Listen(cfg Config) error {
	loop := evloop.New(os.Interrupt, syscall.SIGTERM, syscall.SIGPIPE)

	acceptCh := make(chan interface{}, 1)
	go func() {
		for {
			conn, err := cfg.Listener.Accept()
			if err != nil {
				acceptCh <- err
				return
			}
			acceptCh <- conn
		}
	}()
	loop.Watch("accept", acceptCh)

	// sessionDoneCh carries the conn whose command loop goroutine just
	// finished, so the single-threaded select loop below is the only
	// place that ever mutates `active` — no lock needed.
	sessionDoneCh := make(chan interface{}, 1)
	loop.Watch("session-done", sessionDoneCh)

	var active net.Conn
	var runErr error

	err := loop.Run(func(ev evloop.Event) evloop.Disposition {
		switch ev.Source {
		case "signal":
			l.Infoln("received signal, shutting down:", ev.Value)
			if active != nil {
				wire.SendEmpty(active, wire.END_CONNECTION)
				active.Close()
			}
			return evloop.Break

		case "session-done":
			if conn, _ := ev.Value.(net.Conn); conn == active {
				active = nil
			}
			return evloop.Continue

		case "accept":
			switch v := ev.Value.(type) {
			case error:
				runErr = v
				return evloop.ErrorExit
			case net.Conn:
				if active != nil {
					l.Infoln("rejecting concurrent connection from", v.RemoteAddr())
					wire.SendEmpty(v, wire.REJECTED)
					v.Close()
					events.Default.Log(events.SessionRejected, v.RemoteAddr().String())
					return evloop.Continue
				}
				active = v
				events.Default.Log(events.SessionStarted, v.RemoteAddr().String())
				if err := wire.SendSettings(active, wire.Settings{FSBlockSize: cfg.BlockSize}); err != nil {
					l.Warnln("sending SETTINGS:", err)
					active.Close()
					active = nil
					return evloop.Continue
				}
				go func(conn net.Conn) {
					err := runCommandLoop(conn, cfg.TargetDir, cfg.BlockSize)
					events.Default.Log(events.SessionEnded, conn.RemoteAddr().String())
					if err != nil && !errors.Is(err, io.EOF) {
						l.Infoln("session ended:", err)
					}
					conn.Close()
					sessionDoneCh <- conn
				}(active)
				return evloop.Continue
			}
		}
		return evloop.Continue
	})
	if err != nil {
		return err
	}
	return runErr
}

// runCommandLoop drives one accepted connection's command stream through
// a FileState machine until END_CONNECTION, EOF, or a fatal error.
func runCommandLoop(conn net.Conn, targetDir string, blockSize uint64) error {
	fs := NewFileState(targetDir, blockSize)
	buf := &wire.Buffer{}

	for {
		frame, err := wire.Read(conn, buf)
		if err != nil {
			var unk *wire.UnknownMessageError
			if errors.As(err, &unk) {
				l.Warnln("unknown message code, aborting session:", err)
				wire.SendAbort(conn, int32(syscall.EPROTO))
				return err
			}
			return err
		}

		if err := dispatch(conn, fs, frame); err != nil {
			return err
		}
		if frame.Code == wire.END_CONNECTION {
			return nil
		}
	}
}

func dispatch(conn net.Conn, fs *FileState, frame wire.Frame) error {
	switch frame.Code {
	case wire.CREATE_FILE:
		code, payload := fs.HandleCreateFile(wire.DecodePath(frame.Payload))
		return wire.Send(conn, code, payload)

	case wire.CHANGE_FILE:
		code, payload := fs.HandleChangeFile(wire.DecodePath(frame.Payload))
		return wire.Send(conn, code, payload)

	case wire.DELETE_FILE:
		code, payload := fs.HandleDeleteFile(wire.DecodePath(frame.Payload))
		return wire.Send(conn, code, payload)

	case wire.SET_TIMESTAMPS:
		code, payload := fs.HandleSetTimestamps(wire.DecodeTimestamps(frame.Payload))
		return wire.Send(conn, code, payload)

	case wire.SET_PERM_MODES:
		code, payload := fs.HandleSetPermModes(wire.DecodePermModes(frame.Payload))
		return wire.Send(conn, code, payload)

	case wire.SET_OWNER:
		code, payload := fs.HandleSetOwner(wire.DecodeOwner(frame.Payload))
		return wire.Send(conn, code, payload)

	case wire.WRITE_BLOCK:
		code, payload := fs.HandleWriteBlock(frame.Payload)
		return wire.Send(conn, code, payload)

	case wire.DONE:
		for _, reply := range fs.HandleDone() {
			if err := wire.Send(conn, reply.Code, reply.Payload); err != nil {
				return err
			}
		}
		return nil

	case wire.END_CONNECTION:
		return nil

	default:
		wire.SendAbort(conn, int32(syscall.EPROTO))
		return &StateViolationError{State: fs.state, Code: frame.Code}
	}
}
