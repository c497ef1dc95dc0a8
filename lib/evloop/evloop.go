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

// Package evloop implements spec.md's component C, the event multiplexer,
// the idiomatic Go way: a select over channels instead of poll plus a
// signalfd. Both the sender and the receiver build one Loop, register
// their readable/closed sources as channels, and Run it; os/signal.Notify
// feeds the same loop exactly as cmd/syncthing/monitor.go does for its
// own restart-on-signal select.
package evloop

import (
	"os"
	"os/signal"
)

// Disposition is the callback's verdict for one wake of the loop.
type Disposition int

const (
	// Continue keeps the loop running.
	Continue Disposition = iota
	// Break exits the loop cleanly (no error).
	Break
	// ErrorExit exits the loop reporting err from Run.
	ErrorExit
)

// Event is one ready source delivered to the loop's callback. Source
// identifies which registered channel fired; Value carries whatever that
// channel produced (a socket read result, a batch of notify.EventInfo,
// nil for a bare signal).
type Event struct {
	Source string
	Value  interface{}
}

// Loop multiplexes an arbitrary set of named channels plus an os/signal
// channel, and dispatches whichever one is ready to a single callback
// per spec.md's "all ready events from a single wake are passed to
// exactly one callback invocation" ordering guarantee — here that's
// trivially true since select only ever picks one ready case per wake,
// and Go delivers them to the loop one at a time rather than batching
// a ready-set, which is the idiomatic relaxation of the poll-based
// original.
type Loop struct {
	sources map[string]<-chan interface{}
	sigCh   chan os.Signal
}

// New creates a Loop watching the given OS signals in addition to
// whatever sources are registered with Watch.
func New(signals ...os.Signal) *Loop {
	l := &Loop{
		sources: make(map[string]<-chan interface{}),
	}
	if len(signals) > 0 {
		l.sigCh = make(chan os.Signal, 1)
		signal.Notify(l.sigCh, signals...)
	}
	return l
}

// Watch registers a named source channel. Run selects over every
// registered source plus the signal channel from New.
func (l *Loop) Watch(name string, ch <-chan interface{}) {
	l.sources[name] = ch
}

// Callback is invoked once per wake with the event that fired, or with
// Source == "signal" and Value holding the os.Signal received.
type Callback func(Event) Disposition

// Run blocks, dispatching each ready source to cb, until cb returns
// Break or ErrorExit, or every registered source channel is closed (in
// which case Run returns nil — there is nothing left to wait on).
func (l *Loop) Run(cb Callback) error {
	for {
		ev, ok := l.selectOnce()
		if !ok {
			// All channels closed; nothing left to multiplex.
			return nil
		}

		switch cb(ev) {
		case Continue:
			continue
		case Break:
			return nil
		case ErrorExit:
			return &multiplexError{event: ev}
		}
	}
}

type multiplexError struct {
	event Event
}

func (e *multiplexError) Error() string {
	return "evloop: callback requested exit on event from " + e.event.Source
}
