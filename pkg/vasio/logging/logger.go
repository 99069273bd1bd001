// Package logging provides the default types.Logger implementation used by
// every vasio component, built on logrus with colorized terminal output.
package logging

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"

	"github.com/silkit-go/vasio/pkg/vasio/types"
)

// Logger wraps a logrus.Entry to satisfy types.Logger. Fatal/Fatalf log at
// Error level and call os.Exit(1) themselves rather than delegating to
// logrus's own Fatal, so the os.Exit behavior stays predictable across
// goroutines spawned by the reactor; Panic/Panicf delegate to logrus.
type Logger struct {
	entry *logrus.Entry
	debug bool
}

// New builds a Logger that writes level-tagged, colorized lines to stderr.
// name is attached as a "component" field, mirroring how participants tag
// their own log lines with their participant name.
func New(name string) *Logger {
	base := logrus.New()
	base.SetOutput(colorable.NewColorableStderr())
	base.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	base.SetLevel(logrus.InfoLevel)

	return &Logger{entry: base.WithField("component", name)}
}

func (l *Logger) Info(v ...interface{})                 { l.entry.Info(v...) }
func (l *Logger) Infof(format string, v ...interface{}) { l.entry.Infof(format, v...) }

func (l *Logger) Warn(v ...interface{}) { l.entry.Warn(v...) }
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.entry.Warnf(format, v...)
}

func (l *Logger) Error(v ...interface{}) { l.entry.Error(v...) }
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.entry.Errorf(format, v...)
}

func (l *Logger) Debug(v ...interface{}) {
	if l.debug {
		l.entry.Debug(v...)
	}
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.debug {
		l.entry.Debugf(format, v...)
	}
}

func (l *Logger) Fatal(v ...interface{}) {
	l.entry.Error(v...)
	os.Exit(1)
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.entry.Errorf(format, v...)
	os.Exit(1)
}

func (l *Logger) Panic(v ...interface{})                 { l.entry.Panic(v...) }
func (l *Logger) Panicf(format string, v ...interface{}) { l.entry.Panicf(format, v...) }

func (l *Logger) ToggleDebug(value bool) bool {
	l.debug = value
	if value {
		l.entry.Logger.SetLevel(logrus.DebugLevel)
	} else {
		l.entry.Logger.SetLevel(logrus.InfoLevel)
	}
	return l.debug
}

var _ types.Logger = (*Logger)(nil)

// Warnf formats a string in yellow, the way CLI tools in the pack color
// their stderr status lines, independent of logrus's own level coloring.
var Warnf = color.New(color.FgYellow).SprintfFunc()
