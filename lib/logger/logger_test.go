// Copyright (C) 2014 Jakob Borg. All rights reserved. Use of this source code
// is governed by an MIT-style license that can be found in the LICENSE file.

package logger

import (
	"strings"
	"testing"
	"time"
)

func TestAPI(t *testing.T) {
	l := New()
	l.SetFlags(0)
	l.SetPrefix("testing")

	debug := 0
	l.AddHandler(LevelDebug, checkFunc(t, LevelDebug, &debug))
	info := 0
	l.AddHandler(LevelInfo, checkFunc(t, LevelInfo, &info))
	warn := 0
	l.AddHandler(LevelWarn, checkFunc(t, LevelWarn, &warn))

	l.Debugf("test %d", 0)
	l.Debugln("test", 0)
	l.Infof("test %d", 1)
	l.Infoln("test", 1)
	l.Warnf("test %d", 3)
	l.Warnln("test", 3)

	if debug != 6 {
		t.Errorf("Debug handler called %d != 6 times", debug)
	}
	if info != 4 {
		t.Errorf("Info handler called %d != 4 times", info)
	}
	if warn != 2 {
		t.Errorf("Warn handler called %d != 2 times", warn)
	}
}

func checkFunc(t *testing.T, expectl LogLevel, counter *int) func(LogLevel, string) {
	return func(l LogLevel, msg string) {
		*counter++
		if l < expectl {
			t.Errorf("Incorrect message level %d < %d", l, expectl)
		}
	}
}

func TestFacilityDebugging(t *testing.T) {
	l := New()
	l.SetFlags(0)

	msgs := 0
	l.AddHandler(LevelDebug, func(lv LogLevel, msg string) {
		msgs++
		if strings.Contains(msg, "f1") {
			t.Fatal("should not get message for facility f1")
		}
	})

	f0 := l.NewFacility("f0", "foo#0")
	f1 := l.NewFacility("f1", "foo#1")

	l.SetDebug("f0", true)
	l.SetDebug("f1", false)

	f0.Debugln("debug line from f0")
	f1.Debugln("debug line from f1")

	if msgs != 1 {
		t.Fatalf("incorrect number of messages, %d != 1", msgs)
	}
}

func TestSetTraceListAll(t *testing.T) {
	l := New()
	f0 := l.NewFacility("f0", "")
	f1 := l.NewFacility("f1", "")

	l.SetTraceList("all")

	if !f0.ShouldDebug() || !f1.ShouldDebug() {
		t.Fatal("expected all facilities enabled")
	}
}

func TestRecorderOrdering(t *testing.T) {
	l := New()
	l.SetFlags(0)

	r := NewRecorder(l, LevelWarn, 5, 2)

	for i := 0; i < 10; i++ {
		l.Warnf("warn#%d", i)
	}

	lines := r.Since(time.Time{})
	if len(lines) == 0 {
		t.Fatal("expected recorded lines")
	}
	if lines[0].Message != "warn#0" || lines[1].Message != "warn#1" {
		t.Fatalf("expected permanent head warn#0, warn#1, got %v, %v", lines[0].Message, lines[1].Message)
	}
	last := lines[len(lines)-1]
	if last.Message != "warn#9" {
		t.Fatalf("expected tail to end at warn#9, got %v", last.Message)
	}
}
