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
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	_ "github.com/dropboxd/dropboxd/lib/automaxprocs"
	"github.com/dropboxd/dropboxd/lib/logger"
)

var l = logger.DefaultLogger

// recorder keeps recent warning-or-above log lines so a fatal exit can
// dump context beyond the single error message kong prints.
var recorder = logger.NewRecorder(l, logger.LevelWarn, 50, 10)

// CLI is the top-level kong command tree: `dropboxd server TARGET` runs
// the receiver, `dropboxd client HOST SOURCE` runs the sender.
type CLI struct {
	Debug       string `short:"d" help:"Comma-separated facility names to trace, or 'all'." env:"DROPBOXD_TRACE"`
	Verbose     bool   `short:"v" help:"Also write every event to stderr as one JSON line. Does not change which log lines are printed."`
	Quiet       bool   `short:"q" help:"Does not change which log lines are printed; lines of every level are always written."`
	Foreground  bool   `short:"n" default:"true" help:"Log to stderr. With --foreground=false, log to dropboxd.log in the working directory instead; backgrounding the process itself is left to the caller."`
	MetricsAddr string `help:"If set, serve Prometheus metrics on this address (server only)."`

	Server ServerCmd `cmd:"" help:"Run the receiver, accepting one sender connection at a time."`
	Client ClientCmd `cmd:"" help:"Run the sender against a running receiver."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("dropboxd"),
		kong.Description("One-way directory synchronizer."),
		kong.UsageOnError(),
	)

	l.SetFlags(logger.DefaultFlags)
	if !cli.Foreground {
		f, err := os.OpenFile("dropboxd.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "opening log file:", err)
			os.Exit(1)
		}
		l.SetOutput(f)
	}
	if cli.Debug != "" {
		l.SetTraceList(cli.Debug)
	}
	switch {
	case cli.Verbose:
		l.SetFlags(logger.DefaultFlags)
	case cli.Quiet:
	}

	if cli.Debug != "" || cli.Verbose {
		startAuditSink()
	}
	if cli.MetricsAddr != "" && strings.HasPrefix(ctx.Command(), "server") {
		startMetricsServer(cli.MetricsAddr)
	}

	err := ctx.Run(&cli)
	if err != nil {
		for _, line := range recorder.Since(time.Time{}) {
			fmt.Fprintln(os.Stderr, line.When.Format("15:04:05"), line.Message)
		}
	}
	ctx.FatalIfErrorf(err)
	os.Exit(0)
}
