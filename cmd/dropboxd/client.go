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
	"fmt"
	"net"

	"github.com/dropboxd/dropboxd/lib/sender"
)

// ClientCmd runs the sender: it dials Host and mirrors Source's
// immediate-child regular files, then watches for further changes
// unless OneShot is set.
type ClientCmd struct {
	Host      string `arg:"" help:"Receiver address, host:port."`
	Source    string `arg:"" help:"Source directory to synchronize from."`
	OneShot   bool   `short:"o" help:"Exit after the initial sync instead of watching for changes."`
	Sparse    bool   `short:"s" help:"Send sparse holes instead of zero-filled blocks."`
	RateLimit int    `short:"r" help:"Cap content throughput to this many bytes per second (0 = unlimited)."`
}

func (c *ClientCmd) Run(cli *CLI) error {
	conn, err := net.Dial("tcp", c.Host)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.Host, err)
	}
	defer conn.Close()

	l.Infof("dropboxd client connected to %s, source %s", c.Host, c.Source)

	return sender.Run(sender.Config{
		Conn:           conn,
		SourceRoot:     c.Source,
		OneShot:        c.OneShot,
		Sparse:         c.Sparse,
		BytesPerSecond: c.RateLimit,
	})
}
