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
	"os"
	"path/filepath"

	"github.com/syncthing/notify"

	"github.com/dropboxd/dropboxd/lib/watchlist"
)

// fileEvents is the inotify mask a file subscription watches: CLOSE_WRITE
// and ATTRIB, per spec.md §4.F.
const fileEvents = notify.InCloseWrite | notify.InAttrib

// dirEvents is the inotify mask the source root's own subscription
// watches: CREATE, DELETE, MOVED_FROM, MOVED_TO.
const dirEvents = notify.InCreate | notify.InDelete | notify.InMovedFrom | notify.InMovedTo

// Watcher owns the live notify.Watcher and the ordered watchlist.List
// that backs spec.md's "at most one active watcher per descriptor"
// invariant plus reverse-scan name resolution.
type Watcher struct {
	root   string
	events chan notify.EventInfo
	list   *watchlist.List

	// nextID hands out descriptor ids; notify.EventInfo doesn't expose a
	// subscription handle, only the watched path and raw event, so a
	// descriptor here just identifies "the subscription installed for
	// this path" rather than an OS-level watch descriptor number.
	nextID watchlist.DescriptorID
	byPath map[string]watchlist.DescriptorID
}

// NewWatcher installs subscriptions on root (directory events) and on
// every regular file child (file events), and returns a Watcher ready to
// feed its Events channel into a sender event loop.
func NewWatcher(root string) (*Watcher, error) {
	w := &Watcher{
		root:   root,
		events: make(chan notify.EventInfo, 128),
		list:   watchlist.New(),
		byPath: make(map[string]watchlist.DescriptorID),
	}

	if err := notify.Watch(root, w.events, dirEvents); err != nil {
		return nil, err
	}
	w.register(root, "")

	entries, err := os.ReadDir(root)
	if err != nil {
		notify.Stop(w.events)
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := w.WatchFile(entry.Name()); err != nil {
			dl.Debugln("failed to watch", entry.Name(), err)
		}
	}

	return w, nil
}

func (w *Watcher) register(absPath, relPath string) watchlist.DescriptorID {
	id := w.nextID
	w.nextID++
	w.byPath[absPath] = id
	w.list.Add(id, relPath)
	return id
}

// WatchFile installs a file-level subscription for relPath (a name
// directly under root), used both at startup and on CREATE/MOVED_TO.
func (w *Watcher) WatchFile(relPath string) error {
	absPath := filepath.Join(w.root, relPath)
	if err := notify.Watch(absPath, w.events, fileEvents); err != nil {
		return err
	}
	w.register(absPath, relPath)
	return nil
}

// UnwatchFile removes relPath's entry from the watchlist, idempotently
// (spec.md: MOVED_FROM/DELETE removal is a no-op if already removed).
//
// github.com/syncthing/notify's Stop only detaches an entire delivery
// channel, not a single watched path, so the underlying inotify watch
// for a deleted file is left registered until the process exits (it'll
// simply report IN_IGNORED once the file is gone, which Classify treats
// as an unrecognized event and drops); what matters for spec.md's
// invariant is that the watchlist itself — the thing name resolution and
// teardown ordering consult — drops the entry immediately.
func (w *Watcher) UnwatchFile(relPath string) {
	absPath := filepath.Join(w.root, relPath)
	id, ok := w.byPath[absPath]
	if !ok {
		return
	}
	delete(w.byPath, absPath)
	w.list.RemoveLast(id)
}

// Events exposes the raw notify channel for the sender's evloop.Loop to
// multiplex alongside the socket and signals.
func (w *Watcher) Events() <-chan notify.EventInfo {
	return w.events
}

// Close tears down every subscription. github.com/syncthing/notify ties
// subscriptions to the delivery channel rather than to individual paths,
// so one Stop retires every Watch call registered on w.events at once;
// the watchlist's TeardownOrder is not consulted.
func (w *Watcher) Close() {
	notify.Stop(w.events)
}

// Kind classifies a raw notify event into one of spec.md §4.F's four
// dispositions.
type Kind int

const (
	KindCloseWrite Kind = iota
	KindAttrib
	KindRemoved // MOVED_FROM or DELETE
	KindAdded   // MOVED_TO or CREATE
)

// Classify maps a notify.Event bitmask to a Kind, or false if it's none
// of the four spec.md cares about (also filters the IS_DIR bit the
// underlying inotify event may carry, via the notify library already
// excluding directory self-events from the masks we subscribed to).
func Classify(ev notify.Event) (Kind, bool) {
	switch {
	case ev&notify.InCloseWrite != 0:
		return KindCloseWrite, true
	case ev&notify.InAttrib != 0:
		return KindAttrib, true
	case ev&(notify.InMovedFrom|notify.InDelete) != 0:
		return KindRemoved, true
	case ev&(notify.InMovedTo|notify.InCreate) != 0:
		return KindAdded, true
	default:
		return 0, false
	}
}

// ResolvePath implements spec.md's name resolution: for file-subscription
// events (CLOSE_WRITE, ATTRIB) the name is recovered by reverse-scanning
// the watcher list; for directory-subscription events (CREATE, DELETE,
// MOVED_FROM, MOVED_TO) the event already carries the path.
func (w *Watcher) ResolvePath(ev notify.EventInfo, kind Kind) string {
	if kind == KindAdded || kind == KindRemoved {
		rel, err := filepath.Rel(w.root, ev.Path())
		if err == nil {
			return rel
		}
	}
	if id, ok := w.byPath[ev.Path()]; ok {
		if rel, ok := w.list.PathFor(id); ok {
			return rel
		}
	}
	rel, _ := filepath.Rel(w.root, ev.Path())
	return rel
}
