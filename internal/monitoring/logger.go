// Package monitoring carries the process-wide diagnostic logger the engine
// and catalog report through.
package monitoring

import "log"

// Logf emits one diagnostic line. It defaults to log.Printf; SetLogger can
// redirect it, and tests can mute it entirely.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
