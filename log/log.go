// Package log is the minimal error-reporting shim this engine's best-effort
// cleanup paths use: a failure to close a handle or remove a temporary file
// is worth surfacing to stderr, never worth failing the surrounding
// operation over.
package log

import (
	"fmt"
	"os"
)

// entry carries the error being reported until Message or Messagef is
// called to emit it.
type entry struct {
	err error
}

// Error starts a log entry wrapping a non-fatal error from a best-effort
// path (closing a file, removing a temp file, syncing a directory).
func Error(err error) *entry {
	return &entry{err: err}
}

// Message writes msg and the wrapped error to stderr.
func (e *entry) Message(msg string) {
	fmt.Fprintf(os.Stderr, "kryptor: %s: %v\n", msg, e.err)
}

// Messagef formats msg per format and v before writing it with the wrapped
// error.
func (e *entry) Messagef(format string, v ...any) {
	e.Message(fmt.Sprintf(format, v...))
}
