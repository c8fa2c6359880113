// Package mock provides an in-memory mock implementation of the [audio.Mixer]
// interface for use in unit tests.
//
// The mock is safe for concurrent use. It records every call so that tests
// can assert on what the merge loop handed to the mixer, and it exposes
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	m := &mock.Mixer{}
//	merger := merger.New(merger.WithMixer(m))
//	...
//	calls := m.Calls()
package mock

import (
	"sync"

	"github.com/MrWong99/voxmerge/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Mixer = (*Mixer)(nil)

// MixCall records the arguments of a single [Mixer.Mix] invocation.
type MixCall struct {
	// Chunks is a deep copy of the chunks passed to Mix.
	Chunks [][]byte

	// Expected is the expected stream count passed to Mix.
	Expected int
}

// Mixer is a mock implementation of [audio.Mixer].
type Mixer struct {
	mu sync.Mutex

	// MixFunc, when set, computes the return value of Mix. Otherwise Result
	// is returned, or a 2048-byte silent chunk if Result is nil.
	MixFunc func(chunks [][]byte, expected int) []byte

	// Result is returned by Mix when MixFunc is nil.
	Result []byte

	// PanicOnCall, when > 0, makes the Nth call to Mix (1-based) panic. Used to
	// exercise fault recovery in callers.
	PanicOnCall int

	calls []MixCall

	// notify, when non-nil, receives a value after every Mix call.
	notify chan struct{}
}

// Notify returns a channel that receives one value per Mix call. The channel
// is buffered; values are dropped when nobody reads them.
func (m *Mixer) Notify() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notify == nil {
		m.notify = make(chan struct{}, 64)
	}
	return m.notify
}

// Mix implements [audio.Mixer].
func (m *Mixer) Mix(chunks [][]byte, expected int) []byte {
	m.mu.Lock()
	cp := make([][]byte, len(chunks))
	for i, c := range chunks {
		cp[i] = append([]byte(nil), c...)
	}
	m.calls = append(m.calls, MixCall{Chunks: cp, Expected: expected})
	n := len(m.calls)
	fn := m.MixFunc
	result := m.Result
	shouldPanic := m.PanicOnCall > 0 && n == m.PanicOnCall
	notify := m.notify
	m.mu.Unlock()

	if notify != nil {
		select {
		case notify <- struct{}{}:
		default:
		}
	}
	if shouldPanic {
		panic("mock mixer: induced panic")
	}
	if fn != nil {
		return fn(chunks, expected)
	}
	if result != nil {
		return result
	}
	return audio.Silence(audio.DefaultChunkSamples)
}

// Calls returns a copy of all recorded Mix invocations.
func (m *Mixer) Calls() []MixCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MixCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times Mix was called.
func (m *Mixer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls.
func (m *Mixer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
