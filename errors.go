package streamplayout

import (
	"errors"
	"fmt"
)

var (
	// ErrParse is returned by NewPlayer when the engine cannot build the graph.
	ErrParse = errors.New("stream-playout: failed to parse pipeline description")

	// ErrNilSink is returned by NewPlayer when no consumer is supplied.
	ErrNilSink = errors.New("stream-playout: buffer sink is required")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("stream-playout: player already started")

	// ErrNotStarted is returned by Play/Pause before Start.
	ErrNotStarted = errors.New("stream-playout: player not started")

	// ErrFailed is returned by operations after a fatal pipeline error.
	ErrFailed = errors.New("stream-playout: pipeline failed")

	// ErrClosed is returned by operations after Close.
	ErrClosed = errors.New("stream-playout: player closed")

	// ErrSeekRejected is returned when the engine refuses a seek submission.
	ErrSeekRejected = errors.New("stream-playout: seek rejected by engine")

	// ErrLoopRestart is reported to the failure handler when the end-of-stream
	// seek to zero cannot be submitted.
	ErrLoopRestart = errors.New("stream-playout: EOS restart failed")

	// ErrDispatcherExists is returned by NewDispatcher while another dispatcher
	// is alive in the process.
	ErrDispatcherExists = errors.New("stream-playout: dispatcher already exists")

	// ErrDispatcherRunning is returned by a second Run.
	ErrDispatcherRunning = errors.New("stream-playout: dispatcher already running")
)

// PipelineError is a fatal error reported on the pipeline bus.
type PipelineError struct {
	// Source is the element that posted the error
	Source string
	// Message is the engine's human-readable message
	Message string
	// Debug is the engine's debug detail
	Debug string
	// Category is a coarse classification (network, codec, resource, unknown)
	Category string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("stream-playout: pipeline error from %s: %s", e.Source, e.Message)
}
