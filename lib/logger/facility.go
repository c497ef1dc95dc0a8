// Copyright (C) 2014 Jakob Borg. All rights reserved. Use of this source code
// is governed by an MIT-style license that can be found in the LICENSE file.

package logger

// A Facility is a named, independently toggleable source of debug
// messages, bound to one Logger. Packages that want tracing create one
// at package init time and gate their Debugln/Debugf calls on
// ShouldDebug so that uninteresting traces cost nothing when disabled.
type Facility struct {
	logger *Logger
	name   string
}

func (f *Facility) ShouldDebug() bool {
	return f.logger.ShouldDebug(f.name)
}

func (f *Facility) Debugf(format string, vals ...interface{}) {
	if f.ShouldDebug() {
		f.logger.Debugf(format, vals...)
	}
}

func (f *Facility) Debugln(vals ...interface{}) {
	if f.ShouldDebug() {
		f.logger.Debugln(vals...)
	}
}
