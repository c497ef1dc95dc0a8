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

// Package events provides event subscription and polling functionality
// used to tap the sender's and receiver's activity for auditing and
// metrics, without coupling either one to a particular sink.
package events

import (
	"errors"
	"sync"
	"time"

	"github.com/dropboxd/dropboxd/lib/logger"
)

var (
	l     = logger.DefaultLogger
	dl    = l.NewFacility("events", "event subscription and polling")
	debug = dl.ShouldDebug
)

type EventType uint64

const (
	Ping EventType = 1 << iota
	SessionStarted
	SessionRejected
	SessionEnded
	FileCreated
	FileChanged
	FileDeleted
	FileSkipped
	FileAborted

	AllEvents = (1 << iota) - 1
)

func (t EventType) String() string {
	switch t {
	case Ping:
		return "Ping"
	case SessionStarted:
		return "SessionStarted"
	case SessionRejected:
		return "SessionRejected"
	case SessionEnded:
		return "SessionEnded"
	case FileCreated:
		return "FileCreated"
	case FileChanged:
		return "FileChanged"
	case FileDeleted:
		return "FileDeleted"
	case FileSkipped:
		return "FileSkipped"
	case FileAborted:
		return "FileAborted"
	default:
		return "Unknown"
	}
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

const BufferSize = 64

type Logger struct {
	subs   map[int]*Subscription
	nextID int
	mutex  sync.Mutex
}

type Event struct {
	ID   int         `json:"id"`
	Time time.Time   `json:"time"`
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

type Subscription struct {
	mask   EventType
	id     int
	events chan Event
	mutex  sync.Mutex
}

// Default is the process-wide event bus both the sender and the receiver
// log into; cmd/dropboxd's audit sink and lib/metrics both subscribe to it.
var Default = NewLogger()

var (
	ErrTimeout = errors.New("timeout")
	ErrClosed  = errors.New("closed")
)

func NewLogger() *Logger {
	return &Logger{
		subs: make(map[int]*Subscription),
	}
}

func (l *Logger) Log(t EventType, data interface{}) {
	l.mutex.Lock()
	if debug() {
		dl.Debugln("log", l.nextID, t.String(), data)
	}
	e := Event{
		ID:   l.nextID,
		Time: time.Now(),
		Type: t,
		Data: data,
	}
	l.nextID++
	for _, s := range l.subs {
		if s.mask&t != 0 {
			select {
			case s.events <- e:
			default:
				// Subscriber too slow; drop the event rather than block
				// the logger that produced it.
			}
		}
	}
	l.mutex.Unlock()
}

func (l *Logger) Subscribe(mask EventType) *Subscription {
	l.mutex.Lock()
	s := &Subscription{
		mask:   mask,
		id:     l.nextID,
		events: make(chan Event, BufferSize),
	}
	l.nextID++
	l.subs[s.id] = s
	l.mutex.Unlock()
	return s
}

func (l *Logger) Unsubscribe(s *Subscription) {
	l.mutex.Lock()
	delete(l.subs, s.id)
	close(s.events)
	l.mutex.Unlock()
}

// C returns the channel events are delivered on.
func (s *Subscription) C() <-chan Event {
	return s.events
}

func (s *Subscription) Poll(timeout time.Duration) (Event, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	to := time.After(timeout)
	select {
	case e, ok := <-s.events:
		if !ok {
			return e, ErrClosed
		}
		return e, nil
	case <-to:
		return Event{}, ErrTimeout
	}
}
