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

// Package metrics exposes Prometheus counters and gauges for session and
// transfer activity. It subscribes to lib/events the same way the
// teacher's GUI layer taps internal/events for its dashboard, translating
// domain events into metric updates instead of websocket pushes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropboxd/dropboxd/lib/events"
)

var (
	FilesSynced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dropboxd_files_synced_total",
		Help: "Total number of files successfully created, changed or deleted.",
	})
	FilesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dropboxd_files_failed_total",
		Help: "Total number of files aborted or rejected during sync.",
	})
	BytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dropboxd_bytes_written_total",
		Help: "Total number of file content bytes written by the receiver.",
	})
	Sessions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dropboxd_sessions_total",
		Help: "Total number of sender connections, by outcome.",
	}, []string{"result"})
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dropboxd_active_connections",
		Help: "Whether the receiver currently has an active sender connection (0 or 1).",
	})
)

// Registry is the collector set cmd/dropboxd exposes on /metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(FilesSynced, FilesFailed, BytesWritten, Sessions, ActiveConnections)
}

// AddBytesWritten records n content bytes written to a file by the
// receiver. The receiver's WRITE_BLOCK handler calls this directly rather
// than going through the event bus, since WRITE_BLOCK volume would
// otherwise dominate the event log.
func AddBytesWritten(n int) {
	BytesWritten.Add(float64(n))
}

// Subscribe starts a goroutine translating events.Default into metric
// updates, for the lifetime of the process. cmd/dropboxd calls this once
// at startup when metrics are enabled.
func Subscribe() {
	sub := events.Default.Subscribe(events.AllEvents)
	go func() {
		for ev := range sub.C() {
			switch ev.Type {
			case events.SessionStarted:
				Sessions.WithLabelValues("accepted").Inc()
				ActiveConnections.Set(1)
			case events.SessionRejected:
				Sessions.WithLabelValues("rejected").Inc()
			case events.SessionEnded:
				ActiveConnections.Set(0)
			case events.FileCreated, events.FileChanged, events.FileDeleted:
				FilesSynced.Inc()
			case events.FileSkipped, events.FileAborted:
				FilesFailed.Inc()
			}
		}
	}()
}
