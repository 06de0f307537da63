package streamplayout

import (
	"errors"
	"log/slog"

	"github.com/e7canasta/stream-playout/engine"
	"github.com/e7canasta/stream-playout/internal/metrics"
)

// watchTarget is what the watcher drives. *Player implements it.
type watchTarget interface {
	// restartLoop performs the Ended -> Playing transition by seeking to zero.
	// It returns an error wrapping ErrLoopRestart if the seek was not submitted.
	restartLoop() error
	// fail moves the target to StateFailed and reports err.
	fail(err error)
}

// Watcher reacts to status events for one player.
//
// State machine over bus events:
//
//	EOS:           Playing -> Ended -> Playing   (action: seek to 0)
//	EOS, seek fails: Ended -> Failed             (action: failure handler)
//	ERROR:         any -> Failed                 (action: failure handler)
//	anything else: ignored
//
// HandleEvent is the bus watch callback and runs on the dispatcher loop.
type Watcher struct {
	target watchTarget
	logger *slog.Logger
}

func newWatcher(target watchTarget, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{target: target, logger: logger}
}

// HandleEvent processes one bus event. It returns false when the watch should
// be removed, which happens after a fatal error, a failed loop restart or once
// the player is closed.
func (w *Watcher) HandleEvent(ev engine.Event) bool {
	switch ev.Kind {
	case engine.EventEOS:
		w.logger.Info("stream-playout: end of stream, restarting from zero", "source", ev.Source)

		err := w.target.restartLoop()
		if err == nil {
			return true
		}
		if errors.Is(err, ErrLoopRestart) {
			w.logger.Error("stream-playout: EOS restart failed", "error", err)
			w.target.fail(err)
		}
		return false

	case engine.EventError:
		perr := &PipelineError{
			Source:   ev.Source,
			Message:  ev.Message,
			Debug:    ev.Debug,
			Category: ev.Category,
		}
		if perr.Category == "" {
			perr.Category = "unknown"
		}
		metrics.FatalErrors.WithLabelValues(perr.Category).Inc()

		w.logger.Error("stream-playout: pipeline error",
			"error", perr.Message,
			"debug", perr.Debug,
			"source", perr.Source,
			"category", perr.Category,
		)
		w.target.fail(perr)
		return false

	case engine.EventStateChanged:
		w.logger.Debug("stream-playout: pipeline state changed",
			"from", ev.OldState,
			"to", ev.NewState,
		)
		return true

	default:
		return true
	}
}
