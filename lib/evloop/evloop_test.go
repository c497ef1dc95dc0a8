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
	"testing"
	"time"
)

func TestDispatchesRegisteredSource(t *testing.T) {
	l := New()
	ch := make(chan interface{}, 1)
	l.Watch("x", ch)
	ch <- 42

	var got Event
	err := l.Run(func(ev Event) Disposition {
		got = ev
		return Break
	})
	if err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if got.Source != "x" || got.Value.(int) != 42 {
		t.Fatalf("got %+v, want Source=x Value=42", got)
	}
}

func TestExitsWhenAllSourcesClose(t *testing.T) {
	l := New()
	ch := make(chan interface{})
	l.Watch("x", ch)
	close(ch)

	called := false
	err := l.Run(func(ev Event) Disposition {
		called = true
		return Continue
	})
	if err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if called {
		t.Fatal("callback should not be invoked for a closed source")
	}
}

func TestErrorExitPropagatesAsError(t *testing.T) {
	l := New()
	ch := make(chan interface{}, 1)
	l.Watch("x", ch)
	ch <- struct{}{}

	err := l.Run(func(ev Event) Disposition {
		return ErrorExit
	})
	if err == nil {
		t.Fatal("expected non-nil error from ErrorExit")
	}
}

func TestMultipleSourcesBothDeliver(t *testing.T) {
	l := New()
	a := make(chan interface{}, 1)
	b := make(chan interface{}, 1)
	l.Watch("a", a)
	l.Watch("b", b)
	a <- 1
	b <- 2

	seen := map[string]bool{}
	count := 0
	err := l.Run(func(ev Event) Disposition {
		seen[ev.Source] = true
		count++
		if count == 2 {
			return Break
		}
		return Continue
	})
	if err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("expected both sources delivered, got %v", seen)
	}
}

func TestRunWithNoSourcesReturnsImmediately(t *testing.T) {
	l := New()
	done := make(chan struct{})
	go func() {
		l.Run(func(ev Event) Disposition { return Continue })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return for an empty loop")
	}
}
