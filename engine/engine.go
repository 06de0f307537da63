// Package engine defines the narrow surface stream-playout consumes from a media
// processing engine: parse a launch description, change state, seek, look up named
// output stages, watch the status bus and pull completed samples.
//
// The GStreamer implementation lives in engine/gstreamer. engine/enginetest provides
// an in-memory engine for tests that do not have a GStreamer runtime.
package engine

import (
	"errors"
	"time"
)

// ErrNoStage is returned by Graph.Stage when the graph has no element with that name.
var ErrNoStage = errors.New("engine: no such stage")

// State mirrors the engine element states.
type State int

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// FlowReturn is handed back to the engine from a new-sample callback.
type FlowReturn int

const (
	FlowOK FlowReturn = iota
	FlowEOS
	FlowError
)

// SeekFlags select how the engine performs a seek.
type SeekFlags uint

const (
	// SeekFlagFlush discards queued data before resuming at the new position.
	SeekFlagFlush SeekFlags = 1 << iota
	// SeekFlagKeyUnit snaps the position to the nearest keyframe.
	SeekFlagKeyUnit
	// SeekFlagSkip allows the engine to skip non-keyframe data.
	SeekFlagSkip
)

// PlaybackSeek is the flag set used for every seek issued by a player.
const PlaybackSeek = SeekFlagFlush | SeekFlagKeyUnit | SeekFlagSkip

// EventKind classifies a bus message.
type EventKind int

const (
	EventOther EventKind = iota
	EventEOS
	EventError
	EventStateChanged
)

// String returns the event kind name
func (k EventKind) String() string {
	switch k {
	case EventEOS:
		return "eos"
	case EventError:
		return "error"
	case EventStateChanged:
		return "state-changed"
	default:
		return "other"
	}
}

// Event is one status message delivered by the graph's bus.
type Event struct {
	Kind EventKind
	// Source is the name of the element that posted the message
	Source string
	// Message is the human readable error text (EventError only)
	Message string
	// Debug carries engine debug detail (EventError only)
	Debug string
	// Category is a coarse classification of an error (network, codec, resource, unknown)
	Category string
	// OldState and NewState are set for EventStateChanged
	OldState State
	NewState State
}

// Engine turns a textual launch description into a runnable graph.
type Engine interface {
	Parse(description string) (Graph, error)
}

// Graph is one constructed pipeline instance.
type Graph interface {
	// Name returns the pipeline element name
	Name() string
	// SetState requests a state change and returns once it was submitted
	SetState(state State) error
	// Seek requests a time seek; false means the engine refused to submit it
	Seek(position time.Duration, flags SeekFlags) bool
	// Stage looks up a named output stage, ErrNoStage when absent
	Stage(name string) (Stage, error)
	// Watch installs fn on the status bus. fn runs on the dispatcher loop and
	// the watch is removed once fn returns false.
	Watch(fn func(Event) bool) error
	// Close moves the graph to the null state and drops the bus watch
	Close() error
}

// Stage is a named tap point producing completed samples.
type Stage interface {
	Name() string
	// EnableSignals switches on new-sample notification for this stage
	EnableSignals() error
	// OnNewSample registers the callback run for every new-sample notification
	OnNewSample(fn func() FlowReturn)
	// Detach drops the registered callback
	Detach()
	// PullSample returns the latest completed sample or nil when none is available
	PullSample() Sample
}

// Sample is one pulled unit of media. The memory returned by Payload belongs to the
// engine and is only valid until Release.
type Sample interface {
	// Payload maps the sample's buffer for reading. ok is false when the sample
	// carries no buffer.
	Payload() (data []byte, ok bool)
	// Duration reports the buffer duration; known is false when the engine has none
	Duration() (d time.Duration, known bool)
	// Release unmaps the buffer and drops the engine reference
	Release()
}

// Loop is the process event loop that delivers bus watches.
type Loop interface {
	// Run blocks until Quit is called
	Run()
	Quit()
}
