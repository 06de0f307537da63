package gstreamer

import (
	"fmt"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/stream-playout/engine"
)

// Stage is an appsink output stage.
type Stage struct {
	name string
	sink *app.Sink
}

func (s *Stage) Name() string { return s.name }

// EnableSignals turns on new-sample emission on the appsink.
func (s *Stage) EnableSignals() error {
	if err := s.sink.SetProperty("emit-signals", true); err != nil {
		return fmt.Errorf("gstreamer: failed to enable signals on %q: %w", s.name, err)
	}
	return nil
}

// OnNewSample installs fn as the appsink new-sample callback.
func (s *Stage) OnNewSample(fn func() engine.FlowReturn) {
	s.sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(_ *app.Sink) gst.FlowReturn {
			return toGstFlow(fn())
		},
	})
}

// Detach replaces the callbacks with an empty set.
func (s *Stage) Detach() {
	s.sink.SetCallbacks(&app.SinkCallbacks{})
}

// PullSample pulls the sample that triggered the current new-sample callback.
func (s *Stage) PullSample() engine.Sample {
	sample := s.sink.PullSample()
	if sample == nil {
		return nil
	}
	return &Sample{sample: sample}
}

// Sample wraps a *gst.Sample. The mapped buffer stays valid until Release.
type Sample struct {
	sample *gst.Sample
	buffer *gst.Buffer
	mapped bool
}

// Payload maps the sample buffer read-only.
func (s *Sample) Payload() ([]byte, bool) {
	if s.buffer == nil {
		s.buffer = s.sample.GetBuffer()
	}
	if s.buffer == nil {
		return nil, false
	}

	info := s.buffer.Map(gst.MapRead)
	if info == nil {
		return nil, false
	}
	s.mapped = true

	data := info.Bytes()
	if data == nil {
		data = []byte{}
	}
	return data, true
}

// Duration returns the buffer duration. GST_CLOCK_TIME_NONE wraps to a negative
// time.Duration and is reported as unknown.
func (s *Sample) Duration() (time.Duration, bool) {
	if s.buffer == nil {
		s.buffer = s.sample.GetBuffer()
	}
	if s.buffer == nil {
		return 0, false
	}

	d := time.Duration(s.buffer.Duration())
	if d < 0 {
		return 0, false
	}
	return d, true
}

// Release unmaps the buffer and drops the references held by this wrapper.
// go-gst unrefs the underlying sample from its finalizer.
func (s *Sample) Release() {
	if s.mapped && s.buffer != nil {
		s.buffer.Unmap()
	}
	s.mapped = false
	s.buffer = nil
	s.sample = nil
}

func toGstFlow(ret engine.FlowReturn) gst.FlowReturn {
	switch ret {
	case engine.FlowEOS:
		return gst.FlowEOS
	case engine.FlowError:
		return gst.FlowError
	default:
		return gst.FlowOK
	}
}
