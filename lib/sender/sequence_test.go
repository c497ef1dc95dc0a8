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
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/dropboxd/dropboxd/lib/wire"
)

// readFrame reads and copies one frame off conn, failing the test on error.
func readFrame(t *testing.T, conn net.Conn, buf *wire.Buffer) wire.Frame {
	t.Helper()
	f, err := wire.Read(conn, buf)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return wire.Frame{Code: f.Code, Payload: append([]byte(nil), f.Payload...)}
}

// driveCreateSequence plays the receiver side of spec.md §4.E's create
// sequence: CREATE_FILE replied immediately, the three metadata SETs and
// the WRITE_BLOCK stream consumed without individual replies to the SETs
// (they're deferred), then three replies after DONE in order.
func driveCreateSequence(t *testing.T, conn net.Conn, createReply wire.Code) []wire.Frame {
	t.Helper()
	buf := &wire.Buffer{}
	var got []wire.Frame

	f := readFrame(t, conn, buf)
	got = append(got, f)
	if err := wire.SendEmpty(conn, createReply); err != nil {
		t.Fatalf("reply to CREATE_FILE: %v", err)
	}
	if createReply != wire.OK {
		return got
	}

	for _, want := range []wire.Code{wire.SET_TIMESTAMPS, wire.SET_PERM_MODES, wire.SET_OWNER} {
		f := readFrame(t, conn, buf)
		if f.Code != want {
			t.Fatalf("got %s, want %s", f.Code, want)
		}
		got = append(got, f)
	}

	for {
		f := readFrame(t, conn, buf)
		got = append(got, f)
		if f.Code == wire.DONE {
			break
		}
		if f.Code != wire.WRITE_BLOCK {
			t.Fatalf("got %s, want WRITE_BLOCK or DONE", f.Code)
		}
		if err := wire.SendEmpty(conn, wire.OK); err != nil {
			t.Fatalf("reply to WRITE_BLOCK: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		if err := wire.SendEmpty(conn, wire.OK); err != nil {
			t.Fatalf("deferred reply %d: %v", i, err)
		}
	}
	return got
}

func TestCreateSequenceHappyPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var frames []wire.Frame
	done := make(chan struct{})
	go func() {
		frames = driveCreateSequence(t, server, wire.OK)
		close(done)
	}()

	sess := &Session{Conn: client, Buf: &wire.Buffer{}, BlockSize: 4096}
	if err := sess.CreateSequence("a.txt", path); err != nil {
		t.Fatalf("CreateSequence: %v", err)
	}
	<-done

	if len(frames) != 6 {
		t.Fatalf("got %d frames, want 6", len(frames))
	}
	wantOrder := []wire.Code{wire.CREATE_FILE, wire.SET_TIMESTAMPS, wire.SET_PERM_MODES, wire.SET_OWNER, wire.WRITE_BLOCK, wire.DONE}
	for i, code := range wantOrder {
		if frames[i].Code != code {
			t.Errorf("frame %d = %s, want %s", i, frames[i].Code, code)
		}
	}
	if got := wire.DecodePath(frames[0].Payload); got != "a.txt" {
		t.Errorf("CREATE_FILE path = %q, want a.txt", got)
	}
	if got := string(frames[4].Payload); got != "hello world" {
		t.Errorf("WRITE_BLOCK payload = %q, want %q", got, "hello world")
	}
}

func TestCreateSequenceSkippedOnNOK(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("x"), 0644)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var frames []wire.Frame
	done := make(chan struct{})
	go func() {
		frames = driveCreateSequence(t, server, wire.NOK)
		close(done)
	}()

	sess := &Session{Conn: client, Buf: &wire.Buffer{}, BlockSize: 4096}
	if err := sess.CreateSequence("a.txt", path); err != nil {
		t.Fatalf("CreateSequence: %v", err)
	}
	<-done

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1 (CREATE_FILE only, skipped)", len(frames))
	}
}

func TestSparseWriteBlockIsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sparse.bin")
	zeros := make([]byte, 4096)
	os.WriteFile(path, zeros, 0644)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var frames []wire.Frame
	done := make(chan struct{})
	go func() {
		frames = driveCreateSequence(t, server, wire.OK)
		close(done)
	}()

	sess := &Session{Conn: client, Buf: &wire.Buffer{}, BlockSize: 4096, Sparse: true}
	if err := sess.CreateSequence("sparse.bin", path); err != nil {
		t.Fatalf("CreateSequence: %v", err)
	}
	<-done

	if len(frames[4].Payload) != 0 {
		t.Fatalf("sparse WRITE_BLOCK payload len = %d, want 0", len(frames[4].Payload))
	}
}

func TestDeleteSequenceNOKIsNotFatal(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		buf := &wire.Buffer{}
		readFrame(t, server, buf)
		wire.SendEmpty(server, wire.NOK)
		close(done)
	}()

	sess := &Session{Conn: client, Buf: &wire.Buffer{}, BlockSize: 4096}
	if err := sess.DeleteSequence("gone.txt"); err != nil {
		t.Fatalf("DeleteSequence: %v", err)
	}
	<-done
}

func TestAbortIsFatal(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		buf := &wire.Buffer{}
		readFrame(t, server, buf) // CREATE_FILE
		wire.SendAbort(server, 5)
		close(done)
	}()

	sess := &Session{Conn: client, Buf: &wire.Buffer{}, BlockSize: 4096}
	err := sess.CreateSequence("a.txt", filepath.Join(t.TempDir(), "a.txt"))
	<-done
	if err == nil {
		t.Fatal("expected error from ABORT")
	}
	abortErr, ok := err.(*AbortError)
	if !ok {
		t.Fatalf("error type = %T, want *AbortError", err)
	}
	if abortErr.Errno != 5 {
		t.Fatalf("Errno = %d, want 5", abortErr.Errno)
	}
}

func TestChangeSequenceHappyPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("x"), 0644)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var frames []wire.Frame
	done := make(chan struct{})
	go func() {
		buf := &wire.Buffer{}
		for i := 0; i < 9; i++ {
			f := readFrame(t, server, buf)
			frames = append(frames, f)
			// DONE while Changing gets no reply from the receiver.
			if f.Code != wire.DONE {
				wire.SendEmpty(server, wire.OK)
			}
		}
		close(done)
	}()

	sess := &Session{Conn: client, Buf: &wire.Buffer{}, BlockSize: 4096}
	if err := sess.ChangeSequence("a.txt", path); err != nil {
		t.Fatalf("ChangeSequence: %v", err)
	}
	<-done

	wantOrder := []wire.Code{
		wire.CHANGE_FILE, wire.SET_TIMESTAMPS, wire.DONE,
		wire.CHANGE_FILE, wire.SET_PERM_MODES, wire.DONE,
		wire.CHANGE_FILE, wire.SET_OWNER, wire.DONE,
	}
	if len(frames) != len(wantOrder) {
		t.Fatalf("got %d frames, want %d", len(frames), len(wantOrder))
	}
	for i, code := range wantOrder {
		if frames[i].Code != code {
			t.Errorf("frame %d = %s, want %s", i, frames[i].Code, code)
		}
	}
}
