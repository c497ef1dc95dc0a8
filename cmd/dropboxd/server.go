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

package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/thejerf/suture/v4"

	"github.com/dropboxd/dropboxd/lib/lockfile"
	"github.com/dropboxd/dropboxd/lib/receiver"
)

// ServerCmd runs the receiver: it listens on Port, takes an exclusive
// lock on Target, and drives the single-active-session command loop
// until a termination signal arrives.
type ServerCmd struct {
	Target    string `arg:"" help:"Target directory to receive files into."`
	Port      int    `short:"p" default:"22000" help:"TCP port to listen on."`
	Force     bool   `short:"f" help:"Skip the target-must-be-empty precondition."`
	BlockSize int    `default:"131072" help:"Filesystem block size advertised to senders."`
}

// receiverService adapts Listen to suture's Service interface, giving
// the daemon automatic restart-on-panic the way cmd/syncthing/monitor.go
// restarts the whole process, but in-process and per-service here.
type receiverService struct {
	ln     net.Listener
	target string
	block  uint64
}

// Serve runs one generation of the receiver. receiver.Listen already owns
// its own os/signal handling via lib/evloop and returns nil on a clean
// signal-triggered shutdown, so that case is translated to
// suture.ErrDoNotRestart rather than left to suture's own restart policy,
// which otherwise treats any return (nil included) as an unexpected stop.
func (s *receiverService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- receiver.Listen(receiver.Config{Listener: s.ln, TargetDir: s.target, BlockSize: s.block}) }()
	select {
	case err := <-errCh:
		if err == nil {
			return suture.ErrDoNotRestart
		}
		return err
	case <-ctx.Done():
		s.ln.Close()
		<-errCh
		return suture.ErrDoNotRestart
	}
}

func (c *ServerCmd) Run(cli *CLI) error {
	if err := ensureTarget(c.Target, c.Force); err != nil {
		return err
	}

	lock, err := lockfile.Acquire(c.Target)
	if err != nil {
		return fmt.Errorf("acquiring lock on %s: %w", c.Target, err)
	}
	defer lock.Release()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", c.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", c.Port, err)
	}

	l.Infof("dropboxd server listening on :%d, target %s", c.Port, c.Target)

	sup := suture.NewSimple("dropboxd-server")
	sup.Add(&receiverService{ln: ln, target: c.Target, block: uint64(c.BlockSize)})
	return sup.Serve(context.Background())
}

// ensureTarget requires Target to exist and, unless force is set, be
// empty — spec.md §6's "target directory must exist and (absent --force)
// be empty" precondition, enforced by cmd/dropboxd rather than by
// lib/receiver itself.
func ensureTarget(target string, force bool) error {
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("target directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("target %s is not a directory", target)
	}
	if force {
		return nil
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return fmt.Errorf("target %s is not empty (use --force to override)", target)
	}
	return nil
}
