// Package diag is the diagnostic channel invariant violations are
// reported through. Violations are logged and execution continues
// best-effort; they are never recovered or propagated as errors.
package diag

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the package-wide diagnostic sink. Replaceable by tests that
// want to capture output instead of writing to stderr.
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).With().Timestamp().Logger()

// Illegal reports a programming-error invariant violation: destroying a
// live synchronization primitive, freeing a frame outside the managed
// region, re-entering a non-reentrant lock, and so on. The caller must
// continue best-effort; this never panics and never returns an error.
func Illegal(component, msg string) {
	Logger.Error().Str("component", component).Msg("ILLEGAL: " + msg)
}

// Warn reports a recoverable but noteworthy condition, e.g. a thread
// discovering it already holds a lock it is about to wait on.
func Warn(component, msg string) {
	Logger.Warn().Str("component", component).Msg(msg)
}
