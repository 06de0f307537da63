package streamplayout

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/stream-playout/engine"
	"github.com/e7canasta/stream-playout/internal/metrics"
)

// Player is the pipeline controller. It owns one graph and is the only thing
// that changes its state.
//
// Every control operation and every callback that touches player state holds
// mu, so the player does not rely on the engine's own thread-safety.
type Player struct {
	graph   engine.Graph
	sink    BufferSink
	logger  *slog.Logger
	failure FailureHandler

	mu          sync.Mutex
	state       PlaybackState
	started     bool
	startedAt   time.Time
	extractors  []*Extractor
	watcher     *Watcher
	seeks       uint64
	seeksFailed uint64
	loops       uint64

	// forwarding gates extractors without taking mu on the callback thread
	forwarding atomic.Bool
}

// Option configures a Player.
type Option func(*Player)

// WithLogger sets the logger used by the player, its extractors and its watcher.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Player) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithFailureHandler replaces ExitOnFailure.
func WithFailureHandler(h FailureHandler) Option {
	return func(p *Player) {
		if h != nil {
			p.failure = h
		}
	}
}

// NewPlayer parses description with eng and returns a player in StateConstructed.
//
// Returns an error wrapping ErrParse if the engine rejects the description
// (malformed syntax, unknown element). No player is created in that case and the
// caller may retry with a corrected description.
func NewPlayer(eng engine.Engine, description string, sink BufferSink, opts ...Option) (*Player, error) {
	if sink == nil {
		return nil, ErrNilSink
	}

	p := &Player{
		sink:    sink,
		logger:  slog.Default(),
		failure: ExitOnFailure,
		state:   StateConstructed,
	}
	for _, opt := range opts {
		opt(p)
	}

	graph, err := eng.Parse(description)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	p.graph = graph

	p.logger.Info("stream-playout: pipeline constructed", "pipeline", graph.Name())

	return p, nil
}

// Start wires the pipeline and begins playback.
//
// This method:
//  1. Looks up the "video" and "audio" stages (either may be absent)
//  2. Enables signal emission on each stage found
//  3. Attaches an Extractor per stage, tagged video=1 / audio=0
//  4. Installs the Watcher on the bus
//  5. Sets the pipeline to PLAYING
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.usableLocked(); err != nil {
		return err
	}
	if p.started {
		return ErrAlreadyStarted
	}

	for _, stream := range []StreamType{StreamVideo, StreamAudio} {
		stage, err := p.graph.Stage(stream.StageName())
		if errors.Is(err, engine.ErrNoStage) {
			p.logger.Info("stream-playout: output stage not present", "stage", stream.StageName())
			continue
		}
		if err != nil {
			p.rollbackLocked()
			return fmt.Errorf("stream-playout: failed to look up %s stage: %w", stream, err)
		}

		if err := stage.EnableSignals(); err != nil {
			p.rollbackLocked()
			return fmt.Errorf("stream-playout: failed to enable %s stage: %w", stream, err)
		}

		ex := NewExtractor(stage, stream, p.sink, p.forwarding.Load, p.logger)
		stage.OnNewSample(ex.OnNewSample)
		p.extractors = append(p.extractors, ex)

		p.logger.Debug("stream-playout: extractor attached", "stage", stage.Name(), "stream_type", int(stream))
	}

	if len(p.extractors) == 0 {
		p.logger.Warn("stream-playout: no output stages found, nothing will be forwarded")
	}

	p.watcher = newWatcher(p, p.logger)
	if err := p.graph.Watch(p.watcher.HandleEvent); err != nil {
		p.rollbackLocked()
		return fmt.Errorf("stream-playout: failed to watch bus: %w", err)
	}

	p.started = true
	p.startedAt = time.Now()
	p.forwarding.Store(true)

	// The bus watch cannot be removed, so the player stays started and
	// Play retries the transition.
	if err := p.graph.SetState(engine.StatePlaying); err != nil {
		p.forwarding.Store(false)
		return fmt.Errorf("stream-playout: failed to start pipeline: %w", err)
	}
	p.state = StatePlaying

	p.logger.Info("stream-playout: pipeline started",
		"pipeline", p.graph.Name(),
		"stages", len(p.extractors),
	)

	return nil
}

// Play sets the pipeline to PLAYING. A no-op when already playing.
func (p *Player) Play() error {
	return p.transition(StatePlaying, engine.StatePlaying)
}

// Pause sets the pipeline to PAUSED. A no-op when already paused.
func (p *Player) Pause() error {
	return p.transition(StatePaused, engine.StatePaused)
}

func (p *Player) transition(to PlaybackState, target engine.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.usableLocked(); err != nil {
		return err
	}
	if !p.started {
		return ErrNotStarted
	}
	if p.state == to {
		return nil
	}

	if err := p.graph.SetState(target); err != nil {
		p.logger.Warn("stream-playout: state change failed", "to", to, "error", err)
		return fmt.Errorf("stream-playout: failed to set %s: %w", to, err)
	}

	p.logger.Info("stream-playout: state changed", "from", p.state, "to", to)
	p.state = to
	if to == StatePlaying {
		p.forwarding.Store(true)
	}

	return nil
}

// Seek flushes the pipeline and resumes at position, keyframe aligned, letting
// the engine skip non-keyframe data. The position is not range checked.
//
// A rejected seek is logged and returned as ErrSeekRejected. It is not fatal:
// the player keeps its current state.
func (p *Player) Seek(position time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.usableLocked(); err != nil {
		return err
	}

	ok := p.graph.Seek(position, engine.PlaybackSeek)
	p.seeks++
	metrics.ObserveSeek("control", ok)

	if !ok {
		p.seeksFailed++
		p.logger.Warn("stream-playout: seek failed", "position", position, "state", p.state)
		return fmt.Errorf("%w: position %s", ErrSeekRejected, position)
	}

	p.logger.Info("stream-playout: seek submitted", "position", position)
	return nil
}

// SeekSeconds seeks to a position given in seconds.
func (p *Player) SeekSeconds(seconds float64) error {
	return p.Seek(time.Duration(seconds * float64(time.Second)))
}

// restartLoop implements the EOS transition Ended -> Playing.
func (p *Player) restartLoop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.usableLocked(); err != nil {
		return err
	}

	p.state = StateEnded

	ok := p.graph.Seek(0, engine.PlaybackSeek)
	p.seeks++
	metrics.ObserveSeek("loop", ok)
	if !ok {
		p.seeksFailed++
		return fmt.Errorf("%w: seek to 0 was not submitted", ErrLoopRestart)
	}

	p.state = StatePlaying
	p.loops++
	metrics.LoopRestarts.Inc()

	return nil
}

// fail moves the player to StateFailed, stops forwarding and reports err.
func (p *Player) fail(err error) {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return
	}
	p.state = StateFailed
	p.forwarding.Store(false)
	p.mu.Unlock()

	p.failure.Fatal(err)
}

// State returns the current playback state.
func (p *Player) State() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stages returns the stream types with an attached extractor.
func (p *Player) Stages() []StreamType {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]StreamType, 0, len(p.extractors))
	for _, ex := range p.extractors {
		out = append(out, ex.Stream())
	}
	return out
}

// Stats returns a snapshot of player and per-stage counters.
func (p *Player) Stats() PlayerStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PlayerStats{
		State:        p.state,
		Stages:       make(map[StreamType]StageStats, len(p.extractors)),
		Seeks:        p.seeks,
		SeeksFailed:  p.seeksFailed,
		LoopRestarts: p.loops,
	}
	if !p.startedAt.IsZero() {
		stats.Uptime = time.Since(p.startedAt)
	}

	for _, ex := range p.extractors {
		st := ex.Stats()
		if secs := stats.Uptime.Seconds(); secs > 0 {
			st.BuffersPerSecond = float64(st.Forwarded) / secs
		}
		stats.Stages[ex.Stream()] = st
	}

	return stats
}

// Close stops forwarding, detaches the extractors and moves the graph to the
// null state. Idempotent.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateClosed {
		return nil
	}

	p.forwarding.Store(false)
	p.detachLocked()

	err := p.graph.Close()
	p.state = StateClosed

	var forwarded uint64
	for _, ex := range p.extractors {
		forwarded += ex.Stats().Forwarded
	}
	p.logger.Info("stream-playout: pipeline closed",
		"buffers_forwarded", forwarded,
		"seeks", p.seeks,
		"loop_restarts", p.loops,
	)

	if err != nil {
		return fmt.Errorf("stream-playout: failed to close pipeline: %w", err)
	}
	return nil
}

func (p *Player) usableLocked() error {
	switch p.state {
	case StateClosed:
		return ErrClosed
	case StateFailed:
		return ErrFailed
	}
	return nil
}

func (p *Player) detachLocked() {
	for _, ex := range p.extractors {
		ex.stage.Detach()
	}
}

// rollbackLocked undoes a partial Start so it can be retried.
func (p *Player) rollbackLocked() {
	p.detachLocked()
	p.extractors = nil
	p.watcher = nil
}
