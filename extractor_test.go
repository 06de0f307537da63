package streamplayout

import (
	"bytes"
	"testing"
	"time"

	"github.com/e7canasta/stream-playout/engine"
	"github.com/e7canasta/stream-playout/engine/enginetest"
)

func TestExtractor_ForwardsOncePerSample(t *testing.T) {
	tests := []struct {
		stage string
		want  StreamType
	}{
		{"audio", StreamAudio},
		{"video", StreamVideo},
	}

	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			tp := newStartedPlayer(t, avDescription)
			stage := tp.graph.FakeStage(tt.stage)

			payload := []byte("0123456789")
			ret, ok := stage.Push(enginetest.NewSample(payload, 33*time.Millisecond))
			if !ok {
				t.Fatal("new-sample callback not fired")
			}
			if ret != engine.FlowOK {
				t.Errorf("callback returned %v, want FlowOK", ret)
			}

			bufs := tp.sink.Buffers()
			if len(bufs) != 1 {
				t.Fatalf("got %d forwards, want 1", len(bufs))
			}
			buf := bufs[0]
			if buf.Stream != tt.want {
				t.Errorf("Stream = %v, want %v", buf.Stream, tt.want)
			}
			if int(buf.Stream) != int(tt.want) {
				t.Errorf("stream tag = %d, want %d", buf.Stream, tt.want)
			}
			if buf.Length != len(buf.Data) {
				t.Errorf("Length = %d, len(Data) = %d", buf.Length, len(buf.Data))
			}
			if buf.Length != 10 {
				t.Errorf("Length = %d, want 10", buf.Length)
			}
			if buf.Duration != 33*time.Millisecond {
				t.Errorf("Duration = %v, want 33ms", buf.Duration)
			}
			if buf.Seq != 1 {
				t.Errorf("Seq = %d, want 1", buf.Seq)
			}
		})
	}
}

func TestExtractor_NullSample(t *testing.T) {
	tp := newStartedPlayer(t, avDescription)
	stage := tp.graph.FakeStage("video")

	for i := 0; i < 5; i++ {
		ret, ok := stage.Signal()
		if !ok {
			t.Fatal("new-sample callback not fired")
		}
		if ret != engine.FlowOK {
			t.Errorf("callback returned %v, want FlowOK", ret)
		}
	}

	if got := len(tp.sink.Buffers()); got != 0 {
		t.Errorf("got %d forwards, want 0", got)
	}
	if got := tp.Stats().Stages[StreamVideo].NoSample; got != 5 {
		t.Errorf("NoSample = %d, want 5", got)
	}
	if errs := tp.failure.Errors(); len(errs) != 0 {
		t.Errorf("failure handler called: %v", errs)
	}
}

func TestExtractor_SampleWithoutBuffer(t *testing.T) {
	tp := newStartedPlayer(t, avDescription)
	stage := tp.graph.FakeStage("audio")

	sample := &enginetest.Sample{NoBuffer: true}
	if ret, _ := stage.Push(sample); ret != engine.FlowOK {
		t.Errorf("callback returned %v, want FlowOK", ret)
	}

	if got := len(tp.sink.Buffers()); got != 0 {
		t.Errorf("got %d forwards, want 0", got)
	}
	if !sample.Released() {
		t.Error("sample without buffer was not released")
	}
	if got := tp.Stats().Stages[StreamAudio].NoBuffer; got != 1 {
		t.Errorf("NoBuffer = %d, want 1", got)
	}
}

func TestExtractor_UnknownDuration(t *testing.T) {
	tp := newStartedPlayer(t, avDescription)

	tp.graph.FakeStage("video").Push(&enginetest.Sample{Data: []byte{0x00, 0x00, 0x01}})

	bufs := tp.sink.Buffers()
	if len(bufs) != 1 {
		t.Fatalf("got %d forwards, want 1", len(bufs))
	}
	if bufs[0].HasDuration() {
		t.Errorf("Duration = %v, want DurationUnknown", bufs[0].Duration)
	}
}

func TestExtractor_CopySurvivesRelease(t *testing.T) {
	tp := newStartedPlayer(t, avDescription)

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	pulled := append([]byte(nil), payload...)

	sample := enginetest.NewSample(payload, 40*time.Millisecond)
	tp.graph.FakeStage("video").Push(sample)

	if !sample.Released() {
		t.Fatal("sample not released after forwarding")
	}
	if bytes.Equal(payload, pulled) {
		t.Fatal("fake Release did not scribble over engine memory")
	}

	bufs := tp.sink.Buffers()
	if len(bufs) != 1 {
		t.Fatalf("got %d forwards, want 1", len(bufs))
	}
	if !bytes.Equal(bufs[0].Data, pulled) {
		t.Error("forwarded payload differs from the data pulled")
	}
}

func TestExtractor_SequencePerStage(t *testing.T) {
	tp := newStartedPlayer(t, avDescription)
	video := tp.graph.FakeStage("video")
	audio := tp.graph.FakeStage("audio")

	video.Push(enginetest.NewSample([]byte{1}, time.Millisecond))
	audio.Push(enginetest.NewSample([]byte{2}, time.Millisecond))
	video.Push(enginetest.NewSample([]byte{3}, time.Millisecond))

	var videoSeq, audioSeq []uint64
	for _, buf := range tp.sink.Buffers() {
		switch buf.Stream {
		case StreamVideo:
			videoSeq = append(videoSeq, buf.Seq)
		case StreamAudio:
			audioSeq = append(audioSeq, buf.Seq)
		}
	}

	if len(videoSeq) != 2 || videoSeq[0] != 1 || videoSeq[1] != 2 {
		t.Errorf("video seq = %v, want [1 2]", videoSeq)
	}
	if len(audioSeq) != 1 || audioSeq[0] != 1 {
		t.Errorf("audio seq = %v, want [1]", audioSeq)
	}
}

func TestExtractor_InactiveReleasesWithoutForwarding(t *testing.T) {
	g, err := enginetest.New().Parse("videotestsrc ! appsink name=video")
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	stage, _ := g.Stage("video")

	sink := &recordingSink{}
	ex := NewExtractor(stage, StreamVideo, sink, func() bool { return false }, nil)
	stage.EnableSignals()
	stage.OnNewSample(ex.OnNewSample)

	sample := enginetest.NewSample([]byte{1, 2, 3}, time.Millisecond)
	g.(*enginetest.Graph).FakeStage("video").Push(sample)

	if got := len(sink.Buffers()); got != 0 {
		t.Errorf("got %d forwards from inactive extractor, want 0", got)
	}
	if !sample.Released() {
		t.Error("sample not released")
	}
}
