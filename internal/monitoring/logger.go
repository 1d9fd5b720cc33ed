// Package monitoring is the pipeline's diagnostic logging seam. Run progress
// (rows ingested, windows built, matches archived) goes through Logf so a
// caller embedding the engine can redirect or silence it.
package monitoring

import "log"

// Logf emits one diagnostic line about run progress. Defaults to log.Printf;
// use SetLogger to route it elsewhere.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
