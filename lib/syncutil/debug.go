// Copyright (C) 2015 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package syncutil

import (
	"os"
	"strings"
	"time"

	"github.com/dropboxd/dropboxd/lib/logger"
)

var (
	l  = logger.DefaultLogger
	dl = l.NewFacility("sync", "synchronization primitives")

	// debug is latched once at startup from DROPBOXD_TRACE, not from
	// dl.ShouldDebug(), since NewMutex et al. pick an implementation once
	// and can't swap it out from under live callers later on.
	debug     = traceEnabled("sync")
	threshold = 100 * time.Millisecond
)

func traceEnabled(facility string) bool {
	for _, name := range strings.Split(os.Getenv("DROPBOXD_TRACE"), ",") {
		name = strings.TrimSpace(name)
		if name == "all" || name == facility {
			return true
		}
	}
	return false
}
