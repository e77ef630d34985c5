package common

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logger. Subsystems log background-task
// faults (failed page writes, at Warn) and deadlock victims (at Debug)
// through it.
var Logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.SetLevel(logrus.WarnLevel)
	if EnableDebug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// SetLogLevel adjusts the level at runtime
func SetLogLevel(level logrus.Level) {
	Logger.SetLevel(level)
}
