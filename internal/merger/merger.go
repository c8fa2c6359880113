// Package merger synchronises independently arriving PCM streams into a
// single output stream at a fixed cadence.
//
// Producers register a stream id and receive a [Producer] handle whose Push
// method enqueues raw 16-bit mono chunks. While the [Merger] is running, its
// loop repeatedly snapshots the live streams, waits at most one chunk period
// for the next chunk of each, mixes whatever arrived with a hard clip, and
// appends exactly one chunk to the output [Sink]. Streams that miss the
// deadline are mixed as silence for that cycle only; their chunk, if it
// arrives later, is used in a subsequent cycle.
//
// Typical usage:
//
//	m, err := merger.New(merger.WithLayout(audio.DefaultLayout()))
//	if err != nil { ... }
//	m.Start()
//	defer m.Stop()
//
//	p, err := m.Register("alice")
//	_ = p.Push(chunk)
//	out, err := m.Output().Next(ctx)
package merger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxmerge/internal/observe"
	"github.com/MrWong99/voxmerge/pkg/audio"
	"github.com/MrWong99/voxmerge/pkg/audio/mixer"
)

// FaultBackoff is how long the loop pauses after a cycle fails unexpectedly.
const FaultBackoff = 100 * time.Millisecond

// Option is a functional option for configuring a [Merger].
type Option func(*Merger)

// WithLayout sets the sample rate and chunk size. Defaults to
// [audio.DefaultLayout].
func WithLayout(l audio.Layout) Option {
	return func(m *Merger) { m.layout = l }
}

// WithMixer replaces the default [mixer.SumMixer]. The mixer must return
// chunks of the layout's canonical length.
func WithMixer(mx audio.Mixer) Option {
	return func(m *Merger) { m.mixer = mx }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Merger) { m.metrics = met }
}

// WithMaxStreams caps the number of concurrently registered streams. Values
// <= 0 or above [mixer.MaxStreams] select [mixer.MaxStreams].
func WithMaxStreams(n int) Option {
	return func(m *Merger) { m.maxStreams = n }
}

// WithFaultBackoff overrides [FaultBackoff].
func WithFaultBackoff(d time.Duration) Option {
	return func(m *Merger) { m.faultBackoff = d }
}

// statsMixer is implemented by mixers that can report clipping and missing
// stream counts alongside the mixed chunk.
type statsMixer interface {
	Mixed(chunks [][]byte, expected int) mixer.Result
}

// Merger owns the stream registry, the merge loop and the output sink.
// All exported methods are safe for concurrent use.
type Merger struct {
	layout       audio.Layout
	mixer        audio.Mixer
	metrics      *observe.Metrics
	maxStreams   int
	faultBackoff time.Duration

	registry *Registry
	sink     *Sink

	// lifecycle serialises Start and Stop so that at most one loop exists.
	lifecycle sync.Mutex
	running   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a stopped Merger. It returns an error if the layout is invalid.
func New(opts ...Option) (*Merger, error) {
	m := &Merger{
		layout:       audio.DefaultLayout(),
		faultBackoff: FaultBackoff,
	}
	for _, o := range opts {
		o(m)
	}
	if err := m.layout.Validate(); err != nil {
		return nil, fmt.Errorf("merger: %w", err)
	}
	if m.maxStreams <= 0 || m.maxStreams > mixer.MaxStreams {
		m.maxStreams = mixer.MaxStreams
	}
	if m.mixer == nil {
		m.mixer = mixer.New(m.layout)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	m.registry = NewRegistry(m.maxStreams)
	m.sink = newSink()
	return m, nil
}

// Layout returns the layout the merger was built with.
func (m *Merger) Layout() audio.Layout { return m.layout }

// MaxStreams returns the effective stream limit.
func (m *Merger) MaxStreams() int { return m.maxStreams }

// Output returns the sink merged chunks are appended to.
func (m *Merger) Output() *Sink { return m.sink }

// Running reports whether the merge loop is active.
func (m *Merger) Running() bool { return m.running.Load() }

// Streams returns the sorted ids of all registered streams.
func (m *Merger) Streams() []string { return m.registry.IDs() }

// Buffered returns the number of chunks waiting in id's input queue.
func (m *Merger) Buffered(id string) (int, error) {
	n, err := m.registry.Buffered(id)
	if err != nil {
		return 0, fmt.Errorf("merger: %w", err)
	}
	return n, nil
}

// Register adds a stream and returns the handle used to push its chunks.
// Registration works whether or not the merger is running; a stream added
// mid-cycle joins from the next cycle.
func (m *Merger) Register(id string) (*Producer, error) {
	p, err := m.registry.Register(id)
	if err != nil {
		return nil, fmt.Errorf("merger: %w", err)
	}
	m.metrics.ActiveStreams.Add(context.Background(), 1)
	slog.Info("merger: stream registered", "stream", id, "active", m.registry.Len())
	return p, nil
}

// Deregister removes a stream and discards its buffered chunks. A cycle
// already waiting on the stream stops waiting and mixes it as silence.
func (m *Merger) Deregister(id string) error {
	dropped, err := m.registry.Deregister(id)
	if err != nil {
		return fmt.Errorf("merger: %w", err)
	}
	ctx := context.Background()
	m.metrics.ActiveStreams.Add(ctx, -1)
	m.metrics.RecordDropped(ctx, "deregister", dropped)
	slog.Info("merger: stream deregistered", "stream", id, "dropped", dropped, "active", m.registry.Len())
	return nil
}

// Start launches the merge loop. Calling Start on a running merger is a
// no-op.
func (m *Merger) Start() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.running.Load() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running.Store(true)

	go m.loop(ctx, m.done)
	slog.Info("merger: started", "layout", m.layout.String(), "period", m.layout.Period())
}

// Stop cancels the merge loop, waits for it to exit and discards every
// chunk still buffered in registered input queues. Streams stay registered
// and the output sink is left untouched. Stop never fails and may be called
// any number of times.
func (m *Merger) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.running.Load() {
		m.cancel()
		<-m.done
		m.cancel, m.done = nil, nil
	}
	dropped := m.registry.clear()
	m.metrics.RecordDropped(context.Background(), "stop", dropped)
	if m.running.Swap(false) {
		slog.Info("merger: stopped", "dropped", dropped)
	}
}
