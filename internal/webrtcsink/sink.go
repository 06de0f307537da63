// Package webrtcsink delivers forwarded buffers to WebRTC peers.
//
// One H.264 video track and one Opus audio track are shared by every peer
// connection. TrackSink routes each buffer to the track matching its stream
// type, and pion packetizes it for every bound peer.
package webrtcsink

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	streamplayout "github.com/e7canasta/stream-playout"
)

// StreamID groups the audio and video tracks so browsers play them in sync.
const StreamID = "synced"

// SampleWriter is the part of a local track the sink writes to.
type SampleWriter interface {
	WriteSample(sample media.Sample) error
}

// Tracks are the local tracks every peer connection is given.
type Tracks struct {
	Video *webrtc.TrackLocalStaticSample
	Audio *webrtc.TrackLocalStaticSample
}

// NewTracks creates the H.264 video and Opus audio tracks.
func NewTracks() (*Tracks, error) {
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264}, "video", StreamID)
	if err != nil {
		return nil, err
	}

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", StreamID)
	if err != nil {
		return nil, err
	}

	return &Tracks{Video: video, Audio: audio}, nil
}

// TrackSink is a streamplayout.BufferSink writing each buffer as one media
// sample. A nil writer for a stream type discards that stream.
type TrackSink struct {
	video  SampleWriter
	audio  SampleWriter
	logger *slog.Logger

	written atomic.Uint64
	failed  atomic.Uint64
}

// NewTrackSink creates a sink writing video buffers to video and audio
// buffers to audio.
func NewTrackSink(video, audio SampleWriter, logger *slog.Logger) *TrackSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackSink{video: video, audio: audio, logger: logger}
}

// NewTrackSinkFor creates a sink writing to tracks.
func NewTrackSinkFor(tracks *Tracks, logger *slog.Logger) *TrackSink {
	return NewTrackSink(tracks.Video, tracks.Audio, logger)
}

// HandleBuffer implements streamplayout.BufferSink.
//
// Buffers without a duration are written with a zero duration, which keeps
// the RTP timestamp of the previous sample.
func (s *TrackSink) HandleBuffer(buf streamplayout.MediaBuffer) {
	var w SampleWriter
	switch buf.Stream {
	case streamplayout.StreamVideo:
		w = s.video
	case streamplayout.StreamAudio:
		w = s.audio
	}
	if w == nil {
		return
	}

	sample := media.Sample{Data: buf.Data}
	if buf.HasDuration() {
		sample.Duration = buf.Duration
	}

	if err := w.WriteSample(sample); err != nil {
		// ErrClosedPipe means no peer is bound right now
		if errors.Is(err, io.ErrClosedPipe) {
			return
		}
		s.failed.Add(1)
		s.logger.Warn("webrtc: failed to write sample",
			"stream", buf.Stream,
			"seq", buf.Seq,
			"error", err,
		)
		return
	}

	s.written.Add(1)
}

// Stats returns how many samples were written and how many writes failed.
func (s *TrackSink) Stats() (written, failed uint64) {
	return s.written.Load(), s.failed.Load()
}
