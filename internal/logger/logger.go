// Package logger provides component scoped logrus entries sharing one
// process wide logger, so every shmcache process logs in the same format.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	once sync.Once
	base *logrus.Logger
)

func root() *logrus.Logger {
	once.Do(func() {
		base = logrus.New()
		base.SetOutput(os.Stderr)
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		base.SetLevel(logrus.InfoLevel)
	})
	return base
}

// Get returns a logger entry for the named component
func Get(component string) *logrus.Entry {
	return root().WithFields(logrus.Fields{"component": component, "pid": os.Getpid()})
}

// SetLevel sets the level of the shared logger; unknown levels are reported
func SetLevel(level string) error {
	if level == "" {
		return nil
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	root().SetLevel(parsed)
	return nil
}

// Level returns the shared logger level
func Level() string {
	return root().GetLevel().String()
}

// SetOutput redirects the shared logger
func SetOutput(w io.Writer) {
	root().SetOutput(w)
}
