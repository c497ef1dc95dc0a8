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

package sender

import (
	"os"
	"syscall"

	"github.com/dropboxd/dropboxd/lib/wire"
)

// statTimestamps pulls nanosecond-precision atime/mtime off the raw
// syscall.Stat_t, which os.FileInfo.ModTime alone doesn't expose for
// atime.
func statTimestamps(info os.FileInfo) wire.Timestamps {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		mt := info.ModTime()
		return wire.Timestamps{
			Atim: wire.Timespec{Sec: mt.Unix(), Nsec: int64(mt.Nanosecond())},
			Mtim: wire.Timespec{Sec: mt.Unix(), Nsec: int64(mt.Nanosecond())},
		}
	}
	return wire.Timestamps{
		Atim: wire.Timespec{Sec: int64(st.Atim.Sec), Nsec: int64(st.Atim.Nsec)},
		Mtim: wire.Timespec{Sec: int64(st.Mtim.Sec), Nsec: int64(st.Mtim.Nsec)},
	}
}

// statOwner extracts the numeric uid/gid off the raw syscall.Stat_t.
func statOwner(info os.FileInfo) (uid, gid uint64) {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Uid), uint64(st.Gid)
	}
	return 0, 0
}
