package streamplayout

import "time"

// StreamType tags a buffer with the output stage it was pulled from.
// The numeric values are part of the consumer contract.
type StreamType int

const (
	// StreamAudio is the tag of the "audio" stage
	StreamAudio StreamType = 0
	// StreamVideo is the tag of the "video" stage
	StreamVideo StreamType = 1
)

// String returns the stage name for the stream type
func (s StreamType) String() string {
	switch s {
	case StreamAudio:
		return "audio"
	case StreamVideo:
		return "video"
	default:
		return "unknown"
	}
}

// StageName returns the appsink name monitored for this stream type
func (s StreamType) StageName() string {
	return s.String()
}

// DurationUnknown marks a buffer whose duration the engine did not report.
const DurationUnknown time.Duration = -1

// MediaBuffer is one extracted unit of media.
//
// Data is always an independent copy of the engine buffer: it stays valid after
// the engine releases its own memory and ownership passes to the consumer on the
// forwarding call.
type MediaBuffer struct {
	// Data is the payload, owned by the receiver
	Data []byte
	// Length is len(Data) at extraction time
	Length int
	// Duration in nanoseconds, or DurationUnknown
	Duration time.Duration
	// Stream is the stage the buffer came from
	Stream StreamType
	// Seq is a per-stage monotonic sequence number starting at 1
	Seq uint64
}

// HasDuration reports whether the engine supplied a duration.
func (b MediaBuffer) HasDuration() bool {
	return b.Duration != DurationUnknown
}

// Clone returns a deep copy of the buffer.
func (b MediaBuffer) Clone() MediaBuffer {
	c := b
	c.Data = append([]byte(nil), b.Data...)
	return c
}

// PlaybackState is the controller's view of the pipeline.
type PlaybackState int

const (
	// StateConstructed: graph parsed, not started
	StateConstructed PlaybackState = iota
	// StatePlaying: graph set to PLAYING
	StatePlaying
	// StatePaused: graph set to PAUSED
	StatePaused
	// StateEnded: end-of-stream seen, loop restart pending
	StateEnded
	// StateFailed: fatal error reported, no further transitions
	StateFailed
	// StateClosed: graph torn down
	StateClosed
)

// String returns a human-readable state name
func (s PlaybackState) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StageStats are counters for one output stage
type StageStats struct {
	// Forwarded is the number of buffers handed to the consumer
	Forwarded uint64
	// Bytes is the total payload forwarded
	Bytes uint64
	// NoSample counts signals that had nothing to pull
	NoSample uint64
	// NoBuffer counts samples without a payload
	NoBuffer uint64
	// BuffersPerSecond is Forwarded divided by player uptime
	BuffersPerSecond float64
	// LastBufferAt is when the last buffer was forwarded
	LastBufferAt time.Time
}

// PlayerStats is a snapshot of player counters
type PlayerStats struct {
	State        PlaybackState
	Stages       map[StreamType]StageStats
	Seeks        uint64
	SeeksFailed  uint64
	LoopRestarts uint64
	Uptime       time.Duration
}
