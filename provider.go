package streamplayout

import "time"

// BufferSink is the external consumer of extracted buffers.
//
// HandleBuffer is called synchronously on the engine's callback thread, once per
// extracted buffer, in pull order per stage. The buffer's Data is owned by the
// sink from that point on; the player never touches it again. Implementations
// should return quickly since a slow sink stalls its stage.
type BufferSink interface {
	HandleBuffer(buf MediaBuffer)
}

// BufferSinkFunc adapts a function to BufferSink.
type BufferSinkFunc func(buf MediaBuffer)

// HandleBuffer calls f(buf).
func (f BufferSinkFunc) HandleBuffer(buf MediaBuffer) { f(buf) }

// Tee forwards each buffer to every sink in order. The first sink receives the
// original buffer, the rest receive clones, so each sink owns its own Data.
func Tee(sinks ...BufferSink) BufferSink {
	return BufferSinkFunc(func(buf MediaBuffer) {
		for i, s := range sinks {
			if i == 0 {
				continue
			}
			s.HandleBuffer(buf.Clone())
		}
		if len(sinks) > 0 {
			sinks[0].HandleBuffer(buf)
		}
	})
}

// Controller is the control surface of a running pipeline.
//
// Implementations must guarantee:
//   - Start() wires the output stages and the bus watch, then plays
//   - Play() and Pause() are idempotent
//   - Seek() never validates the position itself, the engine decides
//   - Close() is idempotent
//   - Stats() and State() are safe from any goroutine
type Controller interface {
	// Start locates the "audio" and "video" stages, attaches extractors and the
	// status watcher, and sets the pipeline to PLAYING.
	Start() error

	// Play sets the pipeline to PLAYING.
	Play() error

	// Pause sets the pipeline to PAUSED.
	Pause() error

	// Seek flushes and resumes decoding at position, keyframe aligned.
	//
	// A rejected seek is logged and returned as ErrSeekRejected; the pipeline
	// keeps its previous state.
	Seek(position time.Duration) error

	// SeekSeconds is Seek with a position in seconds.
	SeekSeconds(seconds float64) error

	// State returns the current playback state.
	State() PlaybackState

	// Stats returns a counter snapshot.
	Stats() PlayerStats

	// Close tears the pipeline down.
	Close() error
}
