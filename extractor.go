package streamplayout

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/e7canasta/stream-playout/engine"
	"github.com/e7canasta/stream-playout/internal/metrics"
)

// Extractor pulls completed samples from one output stage and forwards an owned
// copy of each payload to the sink.
//
// OnNewSample is the stage's new-sample callback. It runs on the engine's
// callback thread, never concurrently with itself for the same stage.
type Extractor struct {
	stage  engine.Stage
	stream StreamType
	sink   BufferSink
	active func() bool
	logger *slog.Logger

	seq          atomic.Uint64
	forwarded    atomic.Uint64
	bytes        atomic.Uint64
	noSample     atomic.Uint64
	noBuffer     atomic.Uint64
	lastBufferAt atomic.Int64
}

// NewExtractor creates an extractor for stage tagged with stream. active gates
// forwarding: once it reports false, samples are still pulled and released but
// nothing reaches the sink. A nil active always forwards.
func NewExtractor(stage engine.Stage, stream StreamType, sink BufferSink, active func() bool, logger *slog.Logger) *Extractor {
	if active == nil {
		active = func() bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		stage:  stage,
		stream: stream,
		sink:   sink,
		active: active,
		logger: logger,
	}
}

// Stream returns the tag bound to this extractor.
func (e *Extractor) Stream() StreamType { return e.stream }

// OnNewSample handles one new-sample signal:
//  1. Pulls the sample (nil means a spurious signal, nothing to do)
//  2. Maps its buffer (absent buffer means nothing to forward)
//  3. Copies the payload into memory the sink will own
//  4. Forwards payload, length, duration and stream tag synchronously
//  5. Releases the sample
//
// Always returns engine.FlowOK so extraction problems never stop the stage.
func (e *Extractor) OnNewSample() engine.FlowReturn {
	sample := e.stage.PullSample()
	if sample == nil {
		e.noSample.Add(1)
		metrics.ObserveSkip(e.stream.String(), "no_sample")
		e.logger.Debug("stream-playout: new-sample signal without sample", "stream", e.stream)
		return engine.FlowOK
	}
	defer sample.Release()

	data, ok := sample.Payload()
	if !ok {
		e.noBuffer.Add(1)
		metrics.ObserveSkip(e.stream.String(), "no_buffer")
		e.logger.Debug("stream-playout: sample without buffer", "stream", e.stream)
		return engine.FlowOK
	}

	if !e.active() {
		return engine.FlowOK
	}

	// The engine reuses the mapped memory after Release.
	payload := make([]byte, len(data))
	copy(payload, data)

	duration := DurationUnknown
	if d, known := sample.Duration(); known {
		duration = d
	}

	buf := MediaBuffer{
		Data:     payload,
		Length:   len(payload),
		Duration: duration,
		Stream:   e.stream,
		Seq:      e.seq.Add(1),
	}

	e.sink.HandleBuffer(buf)

	e.forwarded.Add(1)
	e.bytes.Add(uint64(buf.Length))
	e.lastBufferAt.Store(time.Now().UnixNano())
	metrics.ObserveForward(e.stream.String(), buf.Length)

	return engine.FlowOK
}

// Stats returns the extractor counters.
func (e *Extractor) Stats() StageStats {
	st := StageStats{
		Forwarded: e.forwarded.Load(),
		Bytes:     e.bytes.Load(),
		NoSample:  e.noSample.Load(),
		NoBuffer:  e.noBuffer.Load(),
	}
	if ns := e.lastBufferAt.Load(); ns != 0 {
		st.LastBufferAt = time.Unix(0, ns)
	}
	return st
}
