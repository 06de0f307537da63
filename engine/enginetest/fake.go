// Package enginetest provides an in-memory engine.Engine for tests.
//
// Launch descriptions are read with gst-launch syntax: elements separated by "!",
// "appsink name=X" declares an output stage X. Bus events and samples are injected by
// the test and delivered synchronously on the calling goroutine, which plays the role
// of the dispatcher loop.
package enginetest

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/e7canasta/stream-playout/engine"
)

// ErrSyntax is returned by Parse for blank or malformed descriptions.
var ErrSyntax = errors.New("enginetest: syntax error")

// Engine is a fake engine. Unknown lists element factory names Parse rejects.
type Engine struct {
	Unknown []string

	mu     sync.Mutex
	graphs []*Graph
}

// New returns a fake engine that knows every element name.
func New() *Engine {
	return &Engine{}
}

// Parse builds a fake graph from a launch description.
func (e *Engine) Parse(description string) (engine.Graph, error) {
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("%w: empty description", ErrSyntax)
	}

	g := &Graph{
		name:   fmt.Sprintf("pipeline%d", len(e.Graphs())),
		stages: make(map[string]*Stage),
		SeekOK: true,
	}

	for _, part := range strings.Split(description, "!") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			return nil, fmt.Errorf("%w: empty element", ErrSyntax)
		}
		factory := fields[0]
		for _, unknown := range e.Unknown {
			if factory == unknown {
				return nil, fmt.Errorf("enginetest: no element %q", factory)
			}
		}
		if factory != "appsink" {
			continue
		}
		for _, f := range fields[1:] {
			if name, ok := strings.CutPrefix(f, "name="); ok {
				g.stages[name] = &Stage{name: name}
			}
		}
	}

	e.mu.Lock()
	e.graphs = append(e.graphs, g)
	e.mu.Unlock()

	return g, nil
}

// Graphs returns every graph parsed so far.
func (e *Engine) Graphs() []*Graph {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Graph(nil), e.graphs...)
}

// Last returns the most recently parsed graph, or nil.
func (e *Engine) Last() *Graph {
	graphs := e.Graphs()
	if len(graphs) == 0 {
		return nil
	}
	return graphs[len(graphs)-1]
}

// SeekRequest records one call to Graph.Seek.
type SeekRequest struct {
	Position time.Duration
	Flags    engine.SeekFlags
}

// Graph is a fake pipeline. SeekOK controls the result of Seek and SetStateErr,
// when set, is returned from SetState.
type Graph struct {
	SeekOK      bool
	SetStateErr error

	mu     sync.Mutex
	name   string
	state  engine.State
	states []engine.State
	seeks  []SeekRequest
	stages map[string]*Stage
	watch  func(engine.Event) bool
	closed bool
}

func (g *Graph) Name() string { return g.name }

func (g *Graph) SetState(state engine.State) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.SetStateErr != nil {
		return g.SetStateErr
	}
	g.state = state
	g.states = append(g.states, state)
	return nil
}

func (g *Graph) Seek(position time.Duration, flags engine.SeekFlags) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seeks = append(g.seeks, SeekRequest{Position: position, Flags: flags})
	return g.SeekOK
}

func (g *Graph) Stage(name string) (engine.Stage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.stages[name]
	if !ok {
		return nil, engine.ErrNoStage
	}
	return s, nil
}

func (g *Graph) Watch(fn func(engine.Event) bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.watch != nil {
		return errors.New("enginetest: bus already watched")
	}
	g.watch = fn
	return nil
}

func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.state = engine.StateNull
	g.states = append(g.states, engine.StateNull)
	g.watch = nil
	return nil
}

// Emit delivers ev to the installed bus watch. It reports whether a watch was
// installed and whether it asked to stay installed.
func (g *Graph) Emit(ev engine.Event) (delivered, keep bool) {
	g.mu.Lock()
	fn := g.watch
	g.mu.Unlock()
	if fn == nil {
		return false, false
	}

	keep = fn(ev)
	if !keep {
		g.mu.Lock()
		g.watch = nil
		g.mu.Unlock()
	}
	return true, keep
}

// Watched reports whether a bus watch is installed.
func (g *Graph) Watched() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.watch != nil
}

// State returns the last state set on the graph.
func (g *Graph) State() engine.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// States returns every state set on the graph, in order.
func (g *Graph) States() []engine.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]engine.State(nil), g.states...)
}

// Seeks returns every seek requested on the graph, in order.
func (g *Graph) Seeks() []SeekRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]SeekRequest(nil), g.seeks...)
}

// Closed reports whether Close was called.
func (g *Graph) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// FakeStage returns the named fake stage, or nil.
func (g *Graph) FakeStage(name string) *Stage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stages[name]
}

// Stage is a fake appsink. Samples queued with Push are returned by PullSample.
type Stage struct {
	name string

	mu       sync.Mutex
	signals  bool
	callback func() engine.FlowReturn
	queue    []*Sample
}

func (s *Stage) Name() string { return s.name }

func (s *Stage) EnableSignals() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = true
	return nil
}

func (s *Stage) OnNewSample(fn func() engine.FlowReturn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = fn
}

func (s *Stage) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = nil
}

func (s *Stage) PullSample() engine.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	sample := s.queue[0]
	s.queue = s.queue[1:]
	return sample
}

// SignalsEnabled reports whether EnableSignals was called.
func (s *Stage) SignalsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signals
}

// Attached reports whether a new-sample callback is registered.
func (s *Stage) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callback != nil
}

// Push queues sample and fires the new-sample callback. ok is false when signals
// are disabled or no callback is attached.
func (s *Stage) Push(sample *Sample) (ret engine.FlowReturn, ok bool) {
	s.mu.Lock()
	s.queue = append(s.queue, sample)
	s.mu.Unlock()
	return s.Signal()
}

// Signal fires the new-sample callback without queueing anything.
func (s *Stage) Signal() (ret engine.FlowReturn, ok bool) {
	s.mu.Lock()
	fn := s.callback
	enabled := s.signals
	s.mu.Unlock()
	if fn == nil || !enabled {
		return engine.FlowOK, false
	}
	return fn(), true
}

// Sample is a fake pulled sample. Release overwrites Data with 0xFF to mimic the
// engine reusing the memory, so a consumer holding a view would see garbage.
type Sample struct {
	Data     []byte
	NoBuffer bool
	Dur      time.Duration
	HasDur   bool

	mu       sync.Mutex
	released bool
}

// NewSample returns a sample carrying data with a known duration.
func NewSample(data []byte, d time.Duration) *Sample {
	return &Sample{Data: data, Dur: d, HasDur: true}
}

func (s *Sample) Payload() ([]byte, bool) {
	if s.NoBuffer {
		return nil, false
	}
	return s.Data, true
}

func (s *Sample) Duration() (time.Duration, bool) {
	return s.Dur, s.HasDur
}

func (s *Sample) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	for i := range s.Data {
		s.Data[i] = 0xFF
	}
}

// Released reports whether Release was called.
func (s *Sample) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Loop is a fake event loop: Run blocks until Quit.
type Loop struct {
	once sync.Once
	quit chan struct{}
	mu   sync.Mutex
	runs int
}

// NewLoop returns a fake loop.
func NewLoop() *Loop {
	return &Loop{quit: make(chan struct{})}
}

func (l *Loop) Run() {
	l.mu.Lock()
	l.runs++
	l.mu.Unlock()
	<-l.quit
}

func (l *Loop) Quit() {
	l.once.Do(func() { close(l.quit) })
}

// Runs returns how many times Run was entered.
func (l *Loop) Runs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runs
}
