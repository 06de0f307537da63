// Package streamplayout supervises a media pipeline built from a textual launch
// description and forwards the buffers it produces to an external consumer.
//
// The pipeline topology is not built here. A description is handed to an
// engine (GStreamer in production, see package engine/gstreamer), and the
// player drives the resulting graph through its lifecycle: construct, play,
// pause or seek, end of stream, then either loop back to the start or fail.
//
// # Quick Start
//
//	eng := gstreamer.New()
//
//	loop := gstreamer.NewMainLoop()
//	dispatcher, err := streamplayout.NewDispatcher(loop)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dispatcher.Stop()
//	dispatcher.Start()
//
//	sink := streamplayout.BufferSinkFunc(func(buf streamplayout.MediaBuffer) {
//	    // buf.Data is an independent copy owned by this function
//	    deliver(buf.Stream, buf.Data, buf.Duration)
//	})
//
//	player, err := streamplayout.NewPlayer(eng, description, sink)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer player.Close()
//
//	if err := player.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Output Stages
//
// The player looks for two named sink stages in the graph:
//
//   - "audio": buffers are tagged StreamAudio (0)
//   - "video": buffers are tagged StreamVideo (1)
//
// Either may be absent. Signal emission is enabled only on the stages that are
// present, and each gets its own Extractor.
//
// # Buffer Forwarding
//
// For every new-sample signal the extractor pulls the sample, copies the mapped
// payload into a fresh slice and calls BufferSink.HandleBuffer synchronously
// with the payload, its length, its duration (DurationUnknown when the engine
// has none) and the stream tag. The sample is released afterwards. A signal
// with no sample, or a sample with no buffer, forwards nothing.
//
// # End of Stream and Errors
//
// The Watcher is installed on the pipeline bus:
//
//   - EOS: the player seeks back to zero (flush, keyframe aligned, skip) and
//     keeps playing. If that seek cannot be submitted the pipeline fails.
//   - ERROR: the message and debug detail are logged, the player moves to
//     StateFailed, forwarding stops and the FailureHandler is called.
//
// The default FailureHandler is ExitOnFailure, which terminates the process.
// Use WithFailureHandler to observe failures instead.
//
// # Threading
//
// Bus watches run on the Dispatcher loop. At most one Dispatcher exists per
// process; NewDispatcher returns ErrDispatcherExists while one is alive.
// Control operations may be called from any goroutine and are serialized by
// the player's mutex.
package streamplayout
