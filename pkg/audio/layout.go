package audio

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultSampleRate is the sample rate assumed for every stream when none
	// is configured.
	DefaultSampleRate = 44100

	// DefaultChunkSamples is the number of samples in one canonical chunk.
	DefaultChunkSamples = 1024
)

// Layout fixes the shape of the merged stream: the sample rate all producers
// agree on and the number of samples processed per merge cycle. A Layout is
// set once at construction and never changes for the lifetime of a merger.
type Layout struct {
	// SampleRate in Hz (e.g., 44100, 48000).
	SampleRate int

	// ChunkSamples is the canonical number of samples per chunk.
	ChunkSamples int
}

// DefaultLayout returns the 44.1 kHz / 1024-sample layout.
func DefaultLayout() Layout {
	return Layout{SampleRate: DefaultSampleRate, ChunkSamples: DefaultChunkSamples}
}

// Period is the wall-clock duration covered by one chunk, which is also the
// length of one merge cycle (≈23.2 ms for the default layout).
func (l Layout) Period() time.Duration {
	if l.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(l.ChunkSamples) * int64(time.Second) / int64(l.SampleRate))
}

// ChunkBytes is the byte length of a canonical chunk.
func (l Layout) ChunkBytes() int {
	return l.ChunkSamples * SampleWidth
}

// Validate reports whether both dimensions are positive and one chunk spans
// at least a nanosecond. A zero period would leave the merge loop without a
// deadline to wait on.
func (l Layout) Validate() error {
	var errs []error
	if l.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio: sample rate %d must be positive", l.SampleRate))
	}
	if l.ChunkSamples <= 0 {
		errs = append(errs, fmt.Errorf("audio: chunk samples %d must be positive", l.ChunkSamples))
	}
	if len(errs) == 0 && l.Period() <= 0 {
		errs = append(errs, fmt.Errorf("audio: %s has a zero chunk period", l))
	}
	return errors.Join(errs...)
}

// String returns e.g. "44100Hz/1024".
func (l Layout) String() string {
	return fmt.Sprintf("%dHz/%d", l.SampleRate, l.ChunkSamples)
}
