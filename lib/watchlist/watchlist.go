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

// Package watchlist holds the sender's ordered list of active filesystem
// watchers, one per subscribed path (the source root plus one per regular
// file child). Descriptor identity comes from whatever the watch engine
// (lib/sender, backed by github.com/syncthing/notify) hands back when it
// installs a subscription.
package watchlist

import "github.com/dropboxd/dropboxd/lib/syncutil"

// DescriptorID identifies one filesystem subscription. The watch engine
// that owns the actual notify.Watcher decides what this means; the list
// itself only ever compares IDs for equality.
type DescriptorID uint64

// Entry is one (descriptor, path) pair. At most one Entry per DescriptorID
// is ever active at a time; multiple entries may transiently share a
// RelativePath during a rename (MOVED_FROM racing MOVED_TO).
type Entry struct {
	Descriptor   DescriptorID
	RelativePath string
}

// List is the ordered watcher list the sender event loop owns. It is
// appended to only at the tail, and removed from by a reverse scan so
// that entries installed later (nested, i.e. file watches installed
// after the directory watch) are torn down before the ones installed
// earlier.
type List struct {
	mut     syncutil.RWMutex
	entries []Entry
}

func New() *List {
	return &List{mut: syncutil.NewRWMutex()}
}

// Add appends a new watcher entry.
func (l *List) Add(id DescriptorID, relativePath string) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.entries = append(l.entries, Entry{Descriptor: id, RelativePath: relativePath})
}

// RemoveLast removes the most recently added entry for this descriptor,
// if any, and reports whether one was found. Used on MOVED_FROM/DELETE,
// which spec.md requires be idempotent — a second removal for the same
// name is simply a no-op.
func (l *List) RemoveLast(id DescriptorID) (Entry, bool) {
	l.mut.Lock()
	defer l.mut.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Descriptor == id {
			e := l.entries[i]
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return e, true
		}
	}
	return Entry{}, false
}

// PathFor resolves a file-subscription event's descriptor to the relative
// path it watches, by reverse-scanning for the most recent match (spec.md
// §4.F "Name resolution").
func (l *List) PathFor(id DescriptorID) (string, bool) {
	l.mut.RLock()
	defer l.mut.RUnlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Descriptor == id {
			return l.entries[i].RelativePath, true
		}
	}
	return "", false
}

// TeardownOrder returns every entry in reverse-insertion order, the order
// in which they must be unsubscribed so nested watches go before their
// parent.
func (l *List) TeardownOrder() []Entry {
	l.mut.RLock()
	defer l.mut.RUnlock()
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}

// Len reports the number of active watcher entries.
func (l *List) Len() int {
	l.mut.RLock()
	defer l.mut.RUnlock()
	return len(l.entries)
}
