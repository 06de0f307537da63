package streamplayout

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/e7canasta/stream-playout/engine"
	"github.com/e7canasta/stream-playout/engine/enginetest"
)

func TestWatcher_EOSSeeksToZeroOnce(t *testing.T) {
	tp := newStartedPlayer(t, avDescription)

	delivered, keep := tp.graph.Emit(engine.Event{Kind: engine.EventEOS, Source: "pipeline0"})
	if !delivered {
		t.Fatal("EOS not delivered to a watch")
	}
	if !keep {
		t.Error("watch removed after a successful loop restart")
	}

	seeks := tp.graph.Seeks()
	if len(seeks) != 1 {
		t.Fatalf("engine saw %d seeks, want 1", len(seeks))
	}
	if seeks[0].Position != 0 {
		t.Errorf("seek position = %v, want 0", seeks[0].Position)
	}
	if seeks[0].Flags != engine.PlaybackSeek {
		t.Errorf("seek flags = %v, want flush|key-unit|skip", seeks[0].Flags)
	}

	if got := tp.State(); got != StatePlaying {
		t.Errorf("State() = %v, want %v", got, StatePlaying)
	}
	if got := tp.Stats().LoopRestarts; got != 1 {
		t.Errorf("LoopRestarts = %d, want 1", got)
	}
	if errs := tp.failure.Errors(); len(errs) != 0 {
		t.Errorf("failure handler called: %v", errs)
	}
}

func TestWatcher_RepeatedEOSKeepsLooping(t *testing.T) {
	tp := newStartedPlayer(t, avDescription)

	for i := 0; i < 3; i++ {
		if _, keep := tp.graph.Emit(engine.Event{Kind: engine.EventEOS}); !keep {
			t.Fatalf("watch removed on EOS #%d", i+1)
		}
	}

	if got := len(tp.graph.Seeks()); got != 3 {
		t.Errorf("engine saw %d seeks, want 3", got)
	}
	if got := tp.Stats().LoopRestarts; got != 3 {
		t.Errorf("LoopRestarts = %d, want 3", got)
	}
}

func TestWatcher_EOSSeekFailureIsFatal(t *testing.T) {
	tp := newStartedPlayer(t, avDescription)
	tp.graph.SeekOK = false

	_, keep := tp.graph.Emit(engine.Event{Kind: engine.EventEOS})
	if keep {
		t.Error("watch kept after a failed loop restart")
	}

	errs := tp.failure.Errors()
	if len(errs) != 1 {
		t.Fatalf("failure handler called %d times, want 1", len(errs))
	}
	if !errors.Is(errs[0], ErrLoopRestart) {
		t.Errorf("failure = %v, want ErrLoopRestart", errs[0])
	}
	if got := tp.State(); got != StateFailed {
		t.Errorf("State() = %v, want %v", got, StateFailed)
	}
	if !bytes.Contains(tp.logs.Bytes(), []byte("EOS restart failed")) {
		t.Error("failed loop restart was not logged")
	}
}

func TestWatcher_FatalError(t *testing.T) {
	tp := newStartedPlayer(t, avDescription)
	video := tp.graph.FakeStage("video")

	video.Push(enginetest.NewSample([]byte{1, 2, 3}, time.Millisecond))

	_, keep := tp.graph.Emit(engine.Event{
		Kind:     engine.EventError,
		Source:   "decodebin0",
		Message:  "X",
		Debug:    "gstdecodebin2.c(4719): no suitable plugins found",
		Category: "codec",
	})
	if keep {
		t.Error("watch kept after a fatal error")
	}

	logs := tp.logs.String()
	if !bytes.Contains([]byte(logs), []byte("error=X")) {
		t.Errorf("log does not contain the error message, got:\n%s", logs)
	}

	errs := tp.failure.Errors()
	if len(errs) != 1 {
		t.Fatalf("failure handler called %d times, want 1", len(errs))
	}
	var perr *PipelineError
	if !errors.As(errs[0], &perr) {
		t.Fatalf("failure = %T, want *PipelineError", errs[0])
	}
	if perr.Message != "X" || perr.Source != "decodebin0" || perr.Category != "codec" {
		t.Errorf("PipelineError = %+v", perr)
	}
	if got := tp.State(); got != StateFailed {
		t.Errorf("State() = %v, want %v", got, StateFailed)
	}

	// Nothing is observed after the fatal event.
	video.Push(enginetest.NewSample([]byte{4, 5, 6}, time.Millisecond))
	if got := len(tp.sink.Buffers()); got != 1 {
		t.Errorf("got %d forwards, want only the one before the error", got)
	}
	if delivered, _ := tp.graph.Emit(engine.Event{Kind: engine.EventEOS}); delivered {
		t.Error("status event delivered after the fatal error")
	}
	if len(tp.failure.Errors()) != 1 {
		t.Error("failure handler called again after the fatal error")
	}
}

func TestWatcher_OperationsAfterFailure(t *testing.T) {
	tp := newStartedPlayer(t, avDescription)
	tp.graph.Emit(engine.Event{Kind: engine.EventError, Message: "boom"})

	if err := tp.Play(); !errors.Is(err, ErrFailed) {
		t.Errorf("Play() error = %v, want ErrFailed", err)
	}
	if err := tp.Seek(time.Second); !errors.Is(err, ErrFailed) {
		t.Errorf("Seek() error = %v, want ErrFailed", err)
	}
	if err := tp.Close(); err != nil {
		t.Errorf("Close() after failure error = %v", err)
	}
}

func TestWatcher_ErrorWithoutCategory(t *testing.T) {
	tp := newStartedPlayer(t, avDescription)
	tp.graph.Emit(engine.Event{Kind: engine.EventError, Message: "internal data stream error"})

	var perr *PipelineError
	errs := tp.failure.Errors()
	if len(errs) != 1 || !errors.As(errs[0], &perr) {
		t.Fatalf("failure = %v, want one *PipelineError", errs)
	}
	if perr.Category != "unknown" {
		t.Errorf("Category = %q, want unknown", perr.Category)
	}
}

func TestWatcher_IgnoresOtherEvents(t *testing.T) {
	tests := []struct {
		name string
		ev   engine.Event
	}{
		{"state changed", engine.Event{Kind: engine.EventStateChanged, OldState: engine.StatePaused, NewState: engine.StatePlaying}},
		{"other", engine.Event{Kind: engine.EventOther, Source: "queue0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp := newStartedPlayer(t, avDescription)

			_, keep := tp.graph.Emit(tt.ev)
			if !keep {
				t.Error("watch removed on an ignored event")
			}
			if got := len(tp.graph.Seeks()); got != 0 {
				t.Errorf("engine saw %d seeks, want 0", got)
			}
			if got := tp.State(); got != StatePlaying {
				t.Errorf("State() = %v, want %v", got, StatePlaying)
			}
		})
	}
}

func TestWatcher_EOSAfterClose(t *testing.T) {
	w := newWatcher(closedTarget{}, nil)

	if w.HandleEvent(engine.Event{Kind: engine.EventEOS}) {
		t.Error("watch kept after the player was closed")
	}
}

type closedTarget struct{}

func (closedTarget) restartLoop() error { return ErrClosed }
func (closedTarget) fail(err error)     { panic("fail called on a closed target") }
