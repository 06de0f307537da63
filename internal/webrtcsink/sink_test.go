package webrtcsink

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	streamplayout "github.com/e7canasta/stream-playout"
)

type fakeWriter struct {
	mu      sync.Mutex
	samples []media.Sample
	err     error
}

func (f *fakeWriter) WriteSample(s media.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.samples = append(f.samples, s)
	return nil
}

func (f *fakeWriter) Samples() []media.Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]media.Sample(nil), f.samples...)
}

func TestTrackSink_RoutesByStreamType(t *testing.T) {
	video := &fakeWriter{}
	audio := &fakeWriter{}
	sink := NewTrackSink(video, audio, nil)

	sink.HandleBuffer(streamplayout.MediaBuffer{
		Data: []byte{0, 0, 0, 1, 0x65}, Length: 5, Duration: 40 * time.Millisecond, Stream: streamplayout.StreamVideo,
	})
	sink.HandleBuffer(streamplayout.MediaBuffer{
		Data: []byte{0xfc}, Length: 1, Duration: 20 * time.Millisecond, Stream: streamplayout.StreamAudio,
	})
	sink.HandleBuffer(streamplayout.MediaBuffer{
		Data: []byte{0xfd}, Length: 1, Duration: streamplayout.DurationUnknown, Stream: streamplayout.StreamAudio,
	})

	require.Len(t, video.Samples(), 1)
	assert.Equal(t, []byte{0, 0, 0, 1, 0x65}, video.Samples()[0].Data)
	assert.Equal(t, 40*time.Millisecond, video.Samples()[0].Duration)

	require.Len(t, audio.Samples(), 2)
	assert.Equal(t, 20*time.Millisecond, audio.Samples()[0].Duration)
	assert.Zero(t, audio.Samples()[1].Duration, "unknown duration must not become a negative sample duration")

	written, failed := sink.Stats()
	assert.Equal(t, uint64(3), written)
	assert.Zero(t, failed)
}

func TestTrackSink_MissingWriterDiscards(t *testing.T) {
	video := &fakeWriter{}
	sink := NewTrackSink(video, nil, nil)

	sink.HandleBuffer(streamplayout.MediaBuffer{Data: []byte{1}, Stream: streamplayout.StreamAudio})
	sink.HandleBuffer(streamplayout.MediaBuffer{Data: []byte{2}, Stream: streamplayout.StreamType(7)})

	assert.Empty(t, video.Samples())
	written, failed := sink.Stats()
	assert.Zero(t, written)
	assert.Zero(t, failed)
}

func TestTrackSink_WriteErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantFailed uint64
	}{
		{"closed pipe ignored", io.ErrClosedPipe, 0},
		{"wrapped closed pipe ignored", errors.Join(errors.New("binding"), io.ErrClosedPipe), 0},
		{"other error counted", errors.New("packetizer failure"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			video := &fakeWriter{err: tt.err}
			sink := NewTrackSink(video, nil, nil)

			sink.HandleBuffer(streamplayout.MediaBuffer{Data: []byte{1}, Stream: streamplayout.StreamVideo})

			written, failed := sink.Stats()
			assert.Zero(t, written)
			assert.Equal(t, tt.wantFailed, failed)
		})
	}
}

func TestNewTracks(t *testing.T) {
	tracks, err := NewTracks()
	require.NoError(t, err)

	assert.Equal(t, webrtc.MimeTypeH264, tracks.Video.Codec().MimeType)
	assert.Equal(t, "video", tracks.Video.ID())
	assert.Equal(t, StreamID, tracks.Video.StreamID())

	assert.Equal(t, webrtc.MimeTypeOpus, tracks.Audio.Codec().MimeType)
	assert.Equal(t, "audio", tracks.Audio.ID())
	assert.Equal(t, StreamID, tracks.Audio.StreamID())

	// No peer bound yet: writing must not fail.
	assert.NoError(t, tracks.Video.WriteSample(media.Sample{Data: []byte{0, 0, 0, 1, 0x65}, Duration: time.Millisecond}))
}

func TestPeer_Answer(t *testing.T) {
	tracks, err := NewTracks()
	require.NoError(t, err)

	peer, err := NewPeer(webrtc.Configuration{}, tracks)
	require.NoError(t, err)
	defer func() { assert.NoError(t, peer.Close()) }()

	viewer, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer func() { assert.NoError(t, viewer.Close()) }()

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		_, err = viewer.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		require.NoError(t, err)
	}

	offer, err := viewer.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, viewer.SetLocalDescription(offer))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	answer, err := peer.Answer(ctx, offer)
	require.NoError(t, err)
	require.NotNil(t, answer)

	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	assert.True(t, strings.Contains(answer.SDP, "m=video"), "answer has no video section")
	assert.True(t, strings.Contains(answer.SDP, "m=audio"), "answer has no audio section")
	assert.Contains(t, strings.ToLower(answer.SDP), "h264")
	assert.Contains(t, strings.ToLower(answer.SDP), "opus")

	require.NoError(t, viewer.SetRemoteDescription(*answer))
}

func TestPeer_AnswerRejectsGarbage(t *testing.T) {
	tracks, err := NewTracks()
	require.NoError(t, err)

	peer, err := NewPeer(webrtc.Configuration{}, tracks)
	require.NoError(t, err)
	defer peer.Close()

	_, err = peer.Answer(context.Background(), webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  "not sdp",
	})
	assert.Error(t, err)
}
