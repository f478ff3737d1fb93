package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var base = logrus.New()

// Setup configures the process logger. Unknown levels fall back to info.
func Setup(level, format string, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	base.SetOutput(out)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// For returns a logger tagged with a component name.
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}

// Logger exposes the underlying logger, e.g. to attach hooks in tests.
func Logger() *logrus.Logger {
	return base
}
