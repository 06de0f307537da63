package streamplayout

import (
	"bytes"
	"testing"
	"time"
)

func TestTee_EachSinkOwnsItsData(t *testing.T) {
	var got [3]MediaBuffer
	sinks := make([]BufferSink, len(got))
	for i := range sinks {
		i := i
		sinks[i] = BufferSinkFunc(func(buf MediaBuffer) { got[i] = buf })
	}

	orig := MediaBuffer{Data: []byte("frame"), Length: 5, Duration: 20 * time.Millisecond, Stream: StreamAudio, Seq: 7}
	Tee(sinks...).HandleBuffer(orig)

	for i, buf := range got {
		if !bytes.Equal(buf.Data, []byte("frame")) {
			t.Errorf("sink %d: data = %q", i, buf.Data)
		}
		if buf.Seq != 7 || buf.Stream != StreamAudio || buf.Duration != 20*time.Millisecond {
			t.Errorf("sink %d: metadata not carried: %+v", i, buf)
		}
	}

	// Mutating one sink's payload must not leak into the others.
	got[0].Data[0] = 'X'
	got[1].Data[1] = 'Y'
	if got[2].Data[0] != 'f' || got[2].Data[1] != 'r' {
		t.Errorf("sink payloads alias each other: %q", got[2].Data)
	}
	if &got[0].Data[0] != &orig.Data[0] {
		t.Error("first sink should receive the original buffer")
	}
}

func TestTee_Empty(t *testing.T) {
	Tee().HandleBuffer(MediaBuffer{Data: []byte{1}})
}

func TestMediaBuffer_HasDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want bool
	}{
		{"unknown", DurationUnknown, false},
		{"zero", 0, true},
		{"frame", 33 * time.Millisecond, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (MediaBuffer{Duration: tt.d}).HasDuration(); got != tt.want {
				t.Errorf("HasDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}
