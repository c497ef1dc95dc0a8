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

package evloop

import (
	"os"
	"reflect"
)

// selectOnce builds a reflect.Select over the registered sources (the set
// varies between the sender's and receiver's loop, so a static select
// statement can't express it) and returns the one event that fired. A
// source closing is not itself an event: it is dropped from the set and
// the select is retried, until either a live source fires or none are
// left.
func (l *Loop) selectOnce() (Event, bool) {
	for {
		if len(l.sources) == 0 && l.sigCh == nil {
			return Event{}, false
		}

		names := make([]string, 0, len(l.sources)+1)
		cases := make([]reflect.SelectCase, 0, len(l.sources)+1)

		for name, ch := range l.sources {
			names = append(names, name)
			cases = append(cases, reflect.SelectCase{
				Dir:  reflect.SelectRecv,
				Chan: reflect.ValueOf(ch),
			})
		}
		if l.sigCh != nil {
			names = append(names, "signal")
			cases = append(cases, reflect.SelectCase{
				Dir:  reflect.SelectRecv,
				Chan: reflect.ValueOf(l.sigCh),
			})
		}

		chosen, recv, recvOK := reflect.Select(cases)
		name := names[chosen]

		if !recvOK {
			if name == "signal" {
				l.sigCh = nil
			} else {
				delete(l.sources, name)
			}
			continue
		}

		if name == "signal" {
			return Event{Source: "signal", Value: recv.Interface().(os.Signal)}, true
		}
		return Event{Source: name, Value: recv.Interface()}, true
	}
}
