// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

// Package logging configures the process-wide logger once at startup.
// Components obtain a scoped entry via Component and never reconfigure
// the logger themselves.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Setup initializes the global logrus logger. level is a logrus level
// name; unknown names fall back to info.
func Setup(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(os.Stdout)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// Component returns a logger entry scoped to a named pipeline
// component.
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
