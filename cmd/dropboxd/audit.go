// Copyright (C) 2015 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"encoding/json"
	"os"

	"github.com/dropboxd/dropboxd/lib/events"
)

// startAuditSink subscribes to events.Default and writes one JSON object
// per line to stderr, for the lifetime of the process. It is enabled
// whenever tracing or verbose logging is requested, mirroring the
// teacher's -auditfile flag but fixed to stderr since dropboxd has no
// separate audit log file of its own.
func startAuditSink() {
	sub := events.Default.Subscribe(events.AllEvents)
	enc := json.NewEncoder(os.Stderr)
	go func() {
		for ev := range sub.C() {
			enc.Encode(ev)
		}
	}()
}
