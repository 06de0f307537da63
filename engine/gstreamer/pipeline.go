// Package gstreamer implements engine.Engine on top of GStreamer through go-gst.
//
// Graphs are built from gst-launch descriptions, output stages are appsink elements
// looked up by name, and status events come from a bus watch delivered by the GLib
// default main loop (see NewMainLoop).
package gstreamer

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/stream-playout/engine"
)

var initOnce sync.Once

// Engine parses launch descriptions into GStreamer pipelines.
type Engine struct{}

// New initializes GStreamer (once per process) and returns an engine.
func New() *Engine {
	initOnce.Do(func() {
		gst.Init(nil)
	})
	return &Engine{}
}

// Parse creates a pipeline from a gst-launch description.
//
// Returns an error if the description is malformed or references an element
// factory that is not installed.
func (e *Engine) Parse(description string) (engine.Graph, error) {
	pipeline, err := gst.NewPipelineFromString(description)
	if err != nil {
		return nil, fmt.Errorf("gstreamer: failed to parse pipeline: %w", err)
	}

	slog.Debug("gstreamer: pipeline created", "name", pipeline.GetName())

	return &Graph{pipeline: pipeline}, nil
}

// Graph wraps a *gst.Pipeline.
type Graph struct {
	pipeline *gst.Pipeline
	closed   atomic.Bool
}

func (g *Graph) Name() string { return g.pipeline.GetName() }

// SetState submits a state change. GStreamer may complete it asynchronously.
func (g *Graph) SetState(state engine.State) error {
	if err := g.pipeline.SetState(toGstState(state)); err != nil {
		return fmt.Errorf("gstreamer: failed to set state %s: %w", state, err)
	}
	return nil
}

// Seek issues a time seek from the start of the stream to position.
func (g *Graph) Seek(position time.Duration, flags engine.SeekFlags) bool {
	return g.pipeline.SeekTime(position, toGstSeekFlags(flags))
}

// Stage looks up an appsink by element name.
func (g *Graph) Stage(name string) (engine.Stage, error) {
	elem, err := g.pipeline.GetElementByName(name)
	if err != nil || elem == nil {
		return nil, engine.ErrNoStage
	}

	sink := app.SinkFromElement(elem)
	if sink == nil {
		return nil, fmt.Errorf("gstreamer: element %q is not an appsink", name)
	}

	return &Stage{name: name, sink: sink}, nil
}

// Watch installs fn as the pipeline bus watch.
//
// The watch is dispatched by the default GLib main context, so a main loop must
// be running for fn to fire. It is removed when fn returns false or after Close.
func (g *Graph) Watch(fn func(engine.Event) bool) error {
	bus := g.pipeline.GetPipelineBus()
	if bus == nil {
		return fmt.Errorf("gstreamer: pipeline has no bus")
	}

	name := g.pipeline.GetName()
	bus.AddWatch(func(msg *gst.Message) bool {
		if g.closed.Load() {
			return false
		}
		return fn(toEvent(msg, name))
	})

	return nil
}

// Close sets the pipeline to NULL, which stops streaming threads and releases
// element resources. Safe to call more than once.
func (g *Graph) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return nil
	}

	if err := g.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstreamer: failed to set pipeline to NULL: %w", err)
	}

	return nil
}

func toGstState(state engine.State) gst.State {
	switch state {
	case engine.StateReady:
		return gst.StateReady
	case engine.StatePaused:
		return gst.StatePaused
	case engine.StatePlaying:
		return gst.StatePlaying
	default:
		return gst.StateNull
	}
}

func fromGstState(state gst.State) engine.State {
	switch state {
	case gst.StateReady:
		return engine.StateReady
	case gst.StatePaused:
		return engine.StatePaused
	case gst.StatePlaying:
		return engine.StatePlaying
	default:
		return engine.StateNull
	}
}

func toGstSeekFlags(flags engine.SeekFlags) gst.SeekFlags {
	var out gst.SeekFlags
	if flags&engine.SeekFlagFlush != 0 {
		out |= gst.SeekFlagFlush
	}
	if flags&engine.SeekFlagKeyUnit != 0 {
		out |= gst.SeekFlagKeyUnit
	}
	if flags&engine.SeekFlagSkip != 0 {
		out |= gst.SeekFlagSkip
	}
	return out
}
