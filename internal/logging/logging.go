// Package logging builds the logrus logger shared by the binaries.
package logging

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to w. An unknown level falls back to info;
// any format other than "json" gives the text formatter.
func New(level, format string, w io.Writer) *logrus.Logger {
	l := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	if strings.ToLower(format) == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	l.SetOutput(w)
	return l
}

// Discard is a logger for tests and for components built without one.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
