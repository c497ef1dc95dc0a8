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

package sender

import (
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/syncthing/notify"
	"golang.org/x/time/rate"

	"github.com/dropboxd/dropboxd/lib/evloop"
	"github.com/dropboxd/dropboxd/lib/events"
	"github.com/dropboxd/dropboxd/lib/wire"
)

// Config configures one Run of the sender against a source directory.
type Config struct {
	Conn       net.Conn
	SourceRoot string
	OneShot    bool // skip the watch phase after initial traversal
	Sparse     bool

	// BytesPerSecond caps WRITE_BLOCK content throughput when non-zero.
	BytesPerSecond int
}

// Run performs the handshake, the initial full traversal, and then (unless
// OneShot) enters the live watch loop until the connection closes or a
// termination signal arrives.
func Run(cfg Config) error {
	buf := &wire.Buffer{}
	f, err := wire.Read(cfg.Conn, buf)
	if err != nil {
		return fmt.Errorf("sender: handshake: %w", err)
	}
	if f.Code == wire.REJECTED {
		return fmt.Errorf("sender: connection rejected: receiver already has an active session")
	}
	if f.Code != wire.SETTINGS {
		return fmt.Errorf("sender: handshake: expected SETTINGS, got %s", f.Code)
	}
	settings := wire.DecodeSettings(f.Payload)

	sess := &Session{Conn: cfg.Conn, Buf: buf, BlockSize: settings.FSBlockSize, Sparse: cfg.Sparse}
	if cfg.BytesPerSecond > 0 {
		sess.Limiter = rate.NewLimiter(rate.Limit(cfg.BytesPerSecond), cfg.BytesPerSecond)
	}

	events.Default.Log(events.SessionStarted, cfg.SourceRoot)
	defer events.Default.Log(events.SessionEnded, cfg.SourceRoot)

	if err := Traverse(cfg.SourceRoot, sess.CreateSequence); err != nil {
		return err
	}

	if cfg.OneShot {
		return wire.SendEmpty(cfg.Conn, wire.END_CONNECTION)
	}

	return watchLoop(cfg, sess)
}

func watchLoop(cfg Config, sess *Session) error {
	w, err := NewWatcher(cfg.SourceRoot)
	if err != nil {
		return fmt.Errorf("sender: watch: %w", err)
	}
	defer w.Close()

	loop := evloop.New(os.Interrupt, syscall.SIGTERM, syscall.SIGPIPE)

	notifyCh := make(chan interface{}, 128)
	go func() {
		for ev := range w.Events() {
			notifyCh <- ev
		}
		close(notifyCh)
	}()
	loop.Watch("notify", notifyCh)

	closedCh := make(chan interface{})
	go func() {
		one := make([]byte, 1)
		cfg.Conn.Read(one) //nolint: errcheck — any return (EOF or data) means the peer side is done or misbehaving
		close(closedCh)
	}()
	loop.Watch("socket-closed", closedCh)

	var loopErr error
	runErr := loop.Run(func(ev evloop.Event) evloop.Disposition {
		switch ev.Source {
		case "signal":
			l.Infoln("received signal, shutting down:", ev.Value)
			return evloop.Break
		case "socket-closed":
			l.Infoln("peer closed connection")
			loopErr = fmt.Errorf("sender: connection closed by peer")
			return evloop.ErrorExit
		case "notify":
			info := ev.Value.(notify.EventInfo)
			if err := dispatchEvent(w, sess, info); err != nil {
				loopErr = err
				return evloop.ErrorExit
			}
			return evloop.Continue
		}
		return evloop.Continue
	})
	if runErr != nil && loopErr == nil {
		loopErr = runErr
	}
	if loopErr != nil {
		return loopErr
	}

	return wire.SendEmpty(sess.Conn, wire.END_CONNECTION)
}

func dispatchEvent(w *Watcher, sess *Session, info notify.EventInfo) error {
	kind, ok := Classify(info.Event())
	if !ok {
		return nil
	}
	relPath := w.ResolvePath(info, kind)
	absPath := w.root + string(os.PathSeparator) + relPath

	switch kind {
	case KindCloseWrite:
		return sess.RewriteSequence(relPath, absPath)
	case KindAttrib:
		return sess.ChangeSequence(relPath, absPath)
	case KindRemoved:
		w.UnwatchFile(relPath)
		return sess.DeleteSequence(relPath)
	case KindAdded:
		if err := w.WatchFile(relPath); err != nil {
			dl.Debugln("failed to watch new file", relPath, err)
		}
		return sess.CreateSequence(relPath, absPath)
	}
	return nil
}
