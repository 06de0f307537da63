package streamplayout

import (
	"log/slog"
	"os"
)

// FailureHandler receives unrecoverable pipeline failures: fatal bus errors
// (*PipelineError) and failed end-of-stream restarts (ErrLoopRestart).
//
// It runs on the dispatcher thread after the player has moved to StateFailed.
type FailureHandler interface {
	Fatal(err error)
}

// FailureFunc adapts a function to FailureHandler.
type FailureFunc func(err error)

// Fatal calls f(err).
func (f FailureFunc) Fatal(err error) { f(err) }

// ExitOnFailure logs err and terminates the process with status 1.
// It is the default failure handler.
var ExitOnFailure FailureHandler = FailureFunc(func(err error) {
	slog.Error("stream-playout: unrecoverable pipeline failure, exiting", "error", err)
	os.Exit(1)
})
