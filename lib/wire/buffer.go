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

package wire

// Frame is one received message: its code and its payload bytes exactly
// as they arrived on the wire, so len(Payload) is the on-wire payload
// size. For fixed-layout codes the payload stays big-endian; the
// Decode* functions in codec.go turn it into the host-layout struct.
type Frame struct {
	Code    Code
	Payload []byte
}

// Buffer is a grow-on-demand byte buffer that carries one received
// frame's raw wire bytes. It is created and owned by the caller of Read,
// which lends it mutably on each call; Read only ever grows it, never
// shrinks it. The zero value is ready to use.
type Buffer struct {
	data []byte
}

// Ensure grows the buffer, if necessary, so that it has at least n bytes
// of capacity, and returns a slice of exactly n bytes backed by it.
func (b *Buffer) Ensure(n int) []byte {
	if cap(b.data) < n {
		grown := make([]byte, n)
		copy(grown, b.data)
		b.data = grown
	}
	if len(b.data) < n {
		b.data = b.data[:n]
	}
	return b.data[:n]
}

// Cap reports the buffer's current capacity.
func (b *Buffer) Cap() int {
	return cap(b.data)
}
