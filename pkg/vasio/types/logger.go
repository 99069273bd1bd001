package types

// Logger is the logging facade every vasio component takes as a dependency,
// mirroring the level set of the teacher's default logger but left as an
// interface so `pkg/vasio/logging` can back it with logrus instead of the
// stdlib `log` package.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
	Panic(v ...interface{})
	Panicf(format string, v ...interface{})

	// ToggleDebug flips debug-level emission and returns the new state.
	ToggleDebug(value bool) bool
}
