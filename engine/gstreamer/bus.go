package gstreamer

import (
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/stream-playout/engine"
)

// toEvent translates a bus message into an engine.Event.
//
// Only EOS, ERROR and pipeline-level STATE_CHANGED are decoded. State changes
// posted by child elements are reported as EventOther.
func toEvent(msg *gst.Message, pipelineName string) engine.Event {
	ev := engine.Event{
		Kind:   engine.EventOther,
		Source: msg.Source(),
	}

	switch msg.Type() {
	case gst.MessageEOS:
		ev.Kind = engine.EventEOS

	case gst.MessageError:
		ev.Kind = engine.EventError
		gerr := msg.ParseError()
		if gerr == nil {
			ev.Message = "unknown pipeline error"
			ev.Category = ErrCategoryUnknown.String()
			break
		}
		ev.Message = gerr.Error()
		ev.Debug = gerr.DebugString()
		ev.Category = ClassifyError(ev.Message, ev.Debug).String()

	case gst.MessageStateChanged:
		if msg.Source() != pipelineName {
			break
		}
		old, new := msg.ParseStateChanged()
		ev.Kind = engine.EventStateChanged
		ev.OldState = fromGstState(old)
		ev.NewState = fromGstState(new)
	}

	return ev
}
