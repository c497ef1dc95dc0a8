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

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// writeFull writes b to w in full, looping over short writes the way a
// blocking write(2) retried across EINTR would. The io.Writer contract
// already requires Write to report an error whenever n < len(b), so this
// only matters for writers that return partial success without an error;
// it costs nothing for the common case of one Write call completing b.
func writeFull(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// UnknownMessageError is returned by Read when a frame's code is outside
// [OK, Count).
type UnknownMessageError struct {
	Code Code
}

func (e *UnknownMessageError) Error() string {
	return fmt.Sprintf("wire: unknown message code %d", uint8(e.Code))
}

// ErrWouldBlock is returned by TryRead when no complete frame is
// available yet on a non-blocking read attempt.
var ErrWouldBlock = errors.New("wire: would block")

// Send writes one frame: the header (code, big-endian payload length)
// followed by payload, verbatim. It performs loop-until-complete writes;
// short or interrupted writes are retried transparently by the standard
// library's net.Conn/io.Writer contract, and any error that escapes is
// reported as-is (the caller's Soft/Fatal distinction lives one level up,
// in lib/sender and lib/receiver).
func Send(w io.Writer, code Code, payload []byte) error {
	var hdr [HeaderSize]byte
	hdr[0] = byte(code)
	binary.BigEndian.PutUint64(hdr[1:], uint64(len(payload)))
	if err := writeFull(w, hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return writeFull(w, payload)
}

// SendEmpty sends a code with no payload (OK, NOK, DONE, END_CONNECTION,
// REJECTED).
func SendEmpty(w io.Writer, code Code) error {
	return Send(w, code, nil)
}

// SendPath sends CREATE_FILE, CHANGE_FILE or DELETE_FILE with a
// NUL-terminated path payload.
func SendPath(w io.Writer, code Code, path string) error {
	return Send(w, code, EncodePath(path))
}

// SendBlock sends a WRITE_BLOCK frame. An empty data slice produces an
// empty on-wire payload, which the receiver interprets as a sparse hole.
func SendBlock(w io.Writer, data []byte) error {
	return Send(w, WRITE_BLOCK, data)
}

// SendAbort sends ABORT with the given error number.
func SendAbort(w io.Writer, errno int32) error {
	return Send(w, ABORT, EncodeAbort(Abort{ErrorNumber: errno}))
}

// SendSettings sends the handshake SETTINGS frame.
func SendSettings(w io.Writer, s Settings) error {
	return Send(w, SETTINGS, EncodeSettings(s))
}

// SendTimestamps sends SET_TIMESTAMPS.
func SendTimestamps(w io.Writer, t Timestamps) error {
	return Send(w, SET_TIMESTAMPS, EncodeTimestamps(t))
}

// SendPermModes sends SET_PERM_MODES.
func SendPermModes(w io.Writer, p PermModes) error {
	return Send(w, SET_PERM_MODES, EncodePermModes(p))
}

// SendOwner sends SET_OWNER.
func SendOwner(w io.Writer, o Owner) error {
	return Send(w, SET_OWNER, EncodeOwner(o))
}

// EncodePath renders a path as a NUL-terminated byte string, the wire
// representation for CREATE_FILE/CHANGE_FILE/DELETE_FILE.
func EncodePath(path string) []byte {
	b := make([]byte, len(path)+1)
	copy(b, path)
	return b
}

// DecodePath strips the trailing NUL from a path payload.
func DecodePath(payload []byte) string {
	return string(bytes.TrimRight(payload, "\x00"))
}

func putArgs(args ...uint64) []byte {
	b := make([]byte, 8*len(args))
	for i, a := range args {
		binary.BigEndian.PutUint64(b[i*8:], a)
	}
	return b
}

func getArgs(b []byte, n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.BigEndian.Uint64(b[i*8:])
	}
	return out
}

// EncodeAbort projects an Abort payload into its big-endian wire form.
func EncodeAbort(a Abort) []byte {
	return putArgs(uint64(uint32(a.ErrorNumber)))
}

// DecodeAbort decodes an ABORT payload back to host layout.
func DecodeAbort(payload []byte) Abort {
	v := getArgs(payload, 1)
	return Abort{ErrorNumber: int32(uint32(v[0]))}
}

// EncodeSettings projects a Settings payload into its big-endian wire form.
func EncodeSettings(s Settings) []byte {
	return putArgs(s.FSBlockSize)
}

// DecodeSettings decodes a SETTINGS payload back to host layout.
func DecodeSettings(payload []byte) Settings {
	v := getArgs(payload, 1)
	return Settings{FSBlockSize: v[0]}
}

// EncodePermModes projects a PermModes payload into its big-endian wire form.
func EncodePermModes(p PermModes) []byte {
	return putArgs(p.Mode)
}

// DecodePermModes decodes a SET_PERM_MODES payload back to host layout.
func DecodePermModes(payload []byte) PermModes {
	v := getArgs(payload, 1)
	return PermModes{Mode: v[0]}
}

// EncodeOwner projects an Owner payload into its big-endian wire form.
func EncodeOwner(o Owner) []byte {
	return putArgs(o.UID, o.GID)
}

// DecodeOwner decodes a SET_OWNER payload back to host layout.
func DecodeOwner(payload []byte) Owner {
	v := getArgs(payload, 2)
	return Owner{UID: v[0], GID: v[1]}
}

// EncodeTimestamps projects a Timestamps payload into its big-endian wire form.
func EncodeTimestamps(t Timestamps) []byte {
	return putArgs(uint64(t.Atim.Sec), uint64(t.Atim.Nsec), uint64(t.Mtim.Sec), uint64(t.Mtim.Nsec))
}

// DecodeTimestamps decodes a SET_TIMESTAMPS payload back to host layout.
func DecodeTimestamps(payload []byte) Timestamps {
	v := getArgs(payload, 4)
	return Timestamps{
		Atim: Timespec{Sec: int64(v[0]), Nsec: int64(v[1])},
		Mtim: Timespec{Sec: int64(v[2]), Nsec: int64(v[3])},
	}
}

// Read reads one frame from r into buf, growing buf as needed, and
// returns the decoded Frame. It performs loop-until-complete reads (an
// EOF before a frame is fully read is reported as io.ErrUnexpectedEOF,
// while an EOF before the first header byte is returned as io.EOF);
// a code outside [OK, Count) is reported as *UnknownMessageError without
// attempting to read beyond the header.
func Read(r io.Reader, buf *Buffer) (Frame, error) {
	hdr := buf.Ensure(HeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Frame{}, err
	}
	code := Code(hdr[0])
	size := binary.BigEndian.Uint64(hdr[1:])
	if !code.Valid() {
		return Frame{}, &UnknownMessageError{Code: code}
	}

	full := buf.Ensure(HeaderSize + int(size))
	payload := full[HeaderSize:]
	if size > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return Frame{}, err
		}
	}

	return Frame{Code: code, Payload: payload}, nil
}

// TryRead attempts a non-blocking read of one frame from conn: it arms
// an immediate read deadline so a call that would otherwise block
// instead returns ErrWouldBlock. This is the non-blocking counterpart
// used where a caller wants to drain whatever has already arrived
// without suspending the event loop (e.g. best-effort draining on
// peer-close).
func TryRead(conn net.Conn, buf *Buffer) (Frame, error) {
	if err := conn.SetReadDeadline(time.Now()); err != nil {
		return Frame{}, err
	}
	defer conn.SetReadDeadline(time.Time{})

	f, err := Read(conn, buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return Frame{}, ErrWouldBlock
		}
		return Frame{}, err
	}
	return f, nil
}
