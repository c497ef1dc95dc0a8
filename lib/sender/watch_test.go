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
	"testing"

	"github.com/syncthing/notify"
)

func TestClassifyMapsRawInotifyMasks(t *testing.T) {
	cases := []struct {
		ev   notify.Event
		want Kind
	}{
		{notify.InCloseWrite, KindCloseWrite},
		{notify.InAttrib, KindAttrib},
		{notify.InMovedFrom, KindRemoved},
		{notify.InDelete, KindRemoved},
		{notify.InMovedTo, KindAdded},
		{notify.InCreate, KindAdded},
	}
	for _, c := range cases {
		got, ok := Classify(c.ev)
		if !ok {
			t.Errorf("Classify(%v) reported not-ok", c.ev)
			continue
		}
		if got != c.want {
			t.Errorf("Classify(%v) = %v, want %v", c.ev, got, c.want)
		}
	}
}

func TestClassifyRejectsUnknownMask(t *testing.T) {
	if _, ok := Classify(notify.Event(0)); ok {
		t.Error("Classify(0) should report not-ok")
	}
}
