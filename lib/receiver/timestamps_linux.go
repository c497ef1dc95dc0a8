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

//go:build linux

package receiver

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/dropboxd/dropboxd/lib/wire"
)

// applyTimestamps sets atime/mtime on the already-open fd with
// nanosecond precision via futimens, which os.Chtimes can't reach (it
// only takes time.Time, whose conversion loses the sub-second remainder
// the wire format carries separately).
func applyTimestamps(f *os.File, ts wire.Timestamps) error {
	times := [2]unix.Timespec{
		{Sec: ts.Atim.Sec, Nsec: ts.Atim.Nsec},
		{Sec: ts.Mtim.Sec, Nsec: ts.Mtim.Nsec},
	}
	return unix.Futimens(int(f.Fd()), &times)
}
